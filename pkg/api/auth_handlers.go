package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/permission"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

// AuthHandlers handles registration, login and the caller's own account.
type AuthHandlers struct {
	users  *users.Service
	tokens *auth.TokenManager
	roles  *rbac.Service
	guard  *rbac.Guard
	g      *guards
}

// NewAuthHandlers creates the account handlers.
func NewAuthHandlers(userService *users.Service, tokens *auth.TokenManager, roles *rbac.Service, guard *rbac.Guard, g *guards) *AuthHandlers {
	return &AuthHandlers{users: userService, tokens: tokens, roles: roles, guard: guard, g: g}
}

// RegisterRoutes registers the /auth routes.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.Handle("/auth/password", h.g.authenticated(h.changePassword)).Methods(http.MethodPut)
	router.Handle("/auth/me", h.g.authenticated(h.me)).Methods(http.MethodGet)
	router.Handle("/auth/me", h.g.authenticated(h.updateProfile)).Methods(http.MethodPut)
}

type registerRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=256"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=256"`
}

// TokenResponse is returned by login.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	TempPassword bool      `json:"temp_password"`
}

// MeResponse describes the caller.
type MeResponse struct {
	User           *users.User   `json:"user"`
	OrganizationID *int64        `json:"organization_id"`
	Role           *RoleResponse `json:"role,omitempty"`
	Permissions    []string      `json:"permissions"`
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), users.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, u)
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(u.ID, u.Email)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, TokenResponse{
		AccessToken:  token,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
		TempPassword: u.TempPassword,
	})
}

// changePassword handles PUT /auth/password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req changePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), ac.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	u, err := h.users.Get(r.Context(), ac.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	resp := MeResponse{User: u, Permissions: []string{}}
	if ac.InOrganization() {
		orgID := ac.OrgID()
		resp.OrganizationID = &orgID

		set, err := h.guard.Permissions(r.Context(), ac.UserID, orgID)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		resp.Permissions = permission.ToCodes(set)

		role, err := h.roles.GetRole(r.Context(), orgID, ac.RoleID)
		switch {
		case err == nil:
			resp.Role = newRoleResponse(role)
		case !apperr.Is(err, apperr.KindNotFound):
			httputil.WriteAppError(w, r, err)
			return
		}
	}
	httputil.WriteSuccess(w, resp)
}

// updateProfile handles PUT /auth/me
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req updateProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), ac.UserID, req.FirstName, req.LastName)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, u)
}
