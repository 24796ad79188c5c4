package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/permission"
)

// InvitationHandlers manages invitations and serves the public accept and
// reject links.
type InvitationHandlers struct {
	manager *invitations.Manager
	g       *guards
}

// NewInvitationHandlers creates the invitation handlers.
func NewInvitationHandlers(manager *invitations.Manager, g *guards) *InvitationHandlers {
	return &InvitationHandlers{manager: manager, g: g}
}

// RegisterRoutes registers /invitations routes.
func (h *InvitationHandlers) RegisterRoutes(router *mux.Router) {
	// Public links, followed from the invitation email.
	router.Handle("/invitations/accept", h.g.public(h.accept)).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/invitations/reject", h.g.public(h.reject)).Methods(http.MethodGet, http.MethodPost)

	router.Handle("/invitations", h.g.require(permission.InvitationView, h.list)).Methods(http.MethodGet)
	router.Handle("/invitations", h.g.require(permission.InvitationCreate, h.create)).Methods(http.MethodPost)
	router.Handle("/invitations/{id:[0-9]+}", h.g.require(permission.InvitationView, h.get)).Methods(http.MethodGet)
	router.Handle("/invitations/{id:[0-9]+}/resend", h.g.require(permission.InvitationResend, h.resend)).Methods(http.MethodPost)
	router.Handle("/invitations/{id:[0-9]+}", h.g.require(permission.InvitationDelete, h.delete)).Methods(http.MethodDelete)
}

type createInvitationRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
}

// create handles POST /invitations
func (h *InvitationHandlers) create(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req createInvitationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	inv, err := h.manager.Create(r.Context(), invitations.CreateInput{
		OrganizationID: orgID,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		RoleID:         req.RoleID,
		InvitedBy:      ac.UserID,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

// list handles GET /invitations?status=
func (h *InvitationHandlers) list(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	list, err := h.manager.List(r.Context(), orgID, httputil.ParseQueryString(r, "status", ""))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if list == nil {
		list = []*invitations.Invitation{}
	}
	httputil.WriteSuccess(w, list)
}

// get handles GET /invitations/{id}
func (h *InvitationHandlers) get(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	inv, err := h.manager.Get(r.Context(), orgID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// resend handles POST /invitations/{id}/resend
func (h *InvitationHandlers) resend(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	inv, err := h.manager.Resend(r.Context(), orgID, ac.UserID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// delete handles DELETE /invitations/{id}
func (h *InvitationHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.manager.Delete(r.Context(), orgID, ac.UserID, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// accept handles GET|POST /invitations/accept?token=
func (h *InvitationHandlers) accept(w http.ResponseWriter, r *http.Request) {
	token, err := httputil.RequireQuery(r, "token")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	inv, err := h.manager.Accept(r.Context(), token)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// reject handles GET|POST /invitations/reject?token=
func (h *InvitationHandlers) reject(w http.ResponseWriter, r *http.Request) {
	token, err := httputil.RequireQuery(r, "token")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	inv, err := h.manager.Reject(r.Context(), token)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}
