package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/permission"
)

// OrganizationHandlers handles organization creation and the caller's
// organization.
type OrganizationHandlers struct {
	orgs *orgs.Service
	g    *guards
}

// NewOrganizationHandlers creates the organization handlers.
func NewOrganizationHandlers(orgService *orgs.Service, g *guards) *OrganizationHandlers {
	return &OrganizationHandlers{orgs: orgService, g: g}
}

// RegisterRoutes registers organization routes.
func (h *OrganizationHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/organizations", h.g.authenticated(h.create)).Methods(http.MethodPost)
	router.Handle("/organization", h.g.require(permission.OrganizationView, h.get)).Methods(http.MethodGet)
	router.Handle("/organization", h.g.require(permission.OrganizationUpdate, h.update)).Methods(http.MethodPut)
	router.Handle("/organization", h.g.require(permission.OrganizationDelete, h.delete)).Methods(http.MethodDelete)
}

type createOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Slug string `json:"slug" validate:"max=255"`
}

type updateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// create handles POST /organizations
func (h *OrganizationHandlers) create(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req createOrganizationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	org, err := h.orgs.CreateOrganization(r.Context(), ac.UserID, orgs.CreateInput{Name: req.Name, Slug: req.Slug})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// get handles GET /organization
func (h *OrganizationHandlers) get(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	org, err := h.orgs.Get(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// update handles PUT /organization
func (h *OrganizationHandlers) update(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req updateOrganizationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	org, err := h.orgs.Update(r.Context(), orgID, ac.UserID, req.Name)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// delete handles DELETE /organization
func (h *OrganizationHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.orgs.Delete(r.Context(), orgID, ac.UserID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MemberHandlers manages the members of the caller's organization.
type MemberHandlers struct {
	members *orgs.MemberManager
	g       *guards
}

// NewMemberHandlers creates the member handlers.
func NewMemberHandlers(members *orgs.MemberManager, g *guards) *MemberHandlers {
	return &MemberHandlers{members: members, g: g}
}

// RegisterRoutes registers /members routes.
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/members", h.g.require(permission.MemberView, h.list)).Methods(http.MethodGet)
	router.Handle("/members", h.g.require(permission.MemberAdd, h.add)).Methods(http.MethodPost)
	router.Handle("/members/{id:[0-9]+}", h.g.require(permission.MemberView, h.get)).Methods(http.MethodGet)
	router.Handle("/members/{id:[0-9]+}", h.g.require(permission.MemberUpdate, h.updateRole)).Methods(http.MethodPut)
	router.Handle("/members/{id:[0-9]+}", h.g.require(permission.MemberRemove, h.remove)).Methods(http.MethodDelete)
}

type addMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

type updateMemberRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// list handles GET /members
func (h *MemberHandlers) list(w http.ResponseWriter, r *http.Request) {
	_, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	members, err := h.members.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if members == nil {
		members = []*orgs.Member{}
	}
	httputil.WriteSuccess(w, members)
}

// get handles GET /members/{id}
func (h *MemberHandlers) get(w http.ResponseWriter, r *http.Request) {
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

	m, err := h.members.Get(r.Context(), orgID, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// add handles POST /members
func (h *MemberHandlers) add(w http.ResponseWriter, r *http.Request) {
	ac, orgID, err := member(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req addMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	m, err := h.members.Add(r.Context(), orgID, ac.UserID, req.UserID, req.RoleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, m)
}

// updateRole handles PUT /members/{id}
func (h *MemberHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
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

	var req updateMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	m, err := h.members.UpdateRole(r.Context(), orgID, ac.UserID, id, req.RoleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// remove handles DELETE /members/{id}
func (h *MemberHandlers) remove(w http.ResponseWriter, r *http.Request) {
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

	if err := h.members.Remove(r.Context(), orgID, ac.UserID, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
