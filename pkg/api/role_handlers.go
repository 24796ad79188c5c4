package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/permission"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// RoleResponse is the wire form of a role.
type RoleResponse struct {
	ID             int64     `json:"id"`
	OrganizationID *int64    `json:"organization_id"`
	Name           string    `json:"name"`
	Permissions    []string  `json:"permissions"`
	IsSystem       bool      `json:"is_system"`
	IsGlobal       bool      `json:"is_global"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newRoleResponse(role *rbac.Role) *RoleResponse {
	return &RoleResponse{
		ID:             role.ID,
		OrganizationID: role.OrganizationID,
		Name:           role.Name,
		Permissions:    role.Codes(),
		IsSystem:       role.IsSystem,
		IsGlobal:       role.IsGlobal(),
		CreatedAt:      role.CreatedAt,
		UpdatedAt:      role.UpdatedAt,
	}
}

// RoleHandlers manages roles visible to the caller's organization.
type RoleHandlers struct {
	roles *rbac.Service
	g     *guards
}

// NewRoleHandlers creates the role handlers.
func NewRoleHandlers(roles *rbac.Service, g *guards) *RoleHandlers {
	return &RoleHandlers{roles: roles, g: g}
}

// RegisterRoutes registers /roles routes.
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/roles", h.g.require(permission.RoleView, h.list)).Methods(http.MethodGet)
	router.Handle("/roles", h.g.require(permission.RoleCreate, h.create)).Methods(http.MethodPost)
	router.Handle("/roles/{id:[0-9]+}", h.g.require(permission.RoleView, h.get)).Methods(http.MethodGet)
	router.Handle("/roles/{id:[0-9]+}", h.g.require(permission.RoleUpdate, h.update)).Methods(http.MethodPut)
	router.Handle("/roles/{id:[0-9]+}", h.g.require(permission.RoleDelete, h.delete)).Methods(http.MethodDelete)
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=100"`
	Permissions []string `json:"permissions"`
}

// list handles GET /roles
func (h *RoleHandlers) list(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	roles, err := h.roles.ListRoles(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	resp := make([]*RoleResponse, 0, len(roles))
	for _, role := range roles {
		resp = append(resp, newRoleResponse(role))
	}
	httputil.WriteSuccess(w, resp)
}

// get handles GET /roles/{id}
func (h *RoleHandlers) get(w http.ResponseWriter, r *http.Request) {
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

	role, err := h.roles.GetRole(r.Context(), orgID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// create handles POST /roles
func (h *RoleHandlers) create(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req createRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	role, err := h.roles.CreateRole(r.Context(), orgID, ac.UserID, req.Name, req.Permissions)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, newRoleResponse(role))
}

// update handles PUT /roles/{id}
func (h *RoleHandlers) update(w http.ResponseWriter, r *http.Request) {
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

	var req updateRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	role, err := h.roles.UpdateRole(r.Context(), orgID, ac.UserID, id, rbac.RoleUpdate{
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, newRoleResponse(role))
}

// delete handles DELETE /roles/{id}
func (h *RoleHandlers) delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.roles.DeleteRole(r.Context(), orgID, ac.UserID, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
