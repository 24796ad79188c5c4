package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/permission"
)

// PermissionHandlers serves the permission catalog.
type PermissionHandlers struct {
	registry *permission.Registry
	g        *guards
}

// NewPermissionHandlers creates the catalog handlers.
func NewPermissionHandlers(g *guards) *PermissionHandlers {
	return &PermissionHandlers{registry: permission.Default(), g: g}
}

// RegisterRoutes registers GET /permissions.
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/permissions", h.g.authenticated(h.list)).Methods(http.MethodGet)
}

// list handles GET /permissions
func (h *PermissionHandlers) list(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.registry.Grouped())
}
