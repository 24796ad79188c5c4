package api

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/artifacts"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

// Deps are the services the API dispatches to.
type Deps struct {
	Users       *users.Service
	Tokens      *auth.TokenManager
	Orgs        *orgs.Service
	Members     *orgs.MemberManager
	Roles       *rbac.Service
	Guard       *rbac.Guard
	Invitations *invitations.Manager
	Builds      *artifacts.Service

	// PublicLimiter throttles the unauthenticated invitation links. Nil
	// leaves them unthrottled.
	PublicLimiter middleware.Limiter
	Metrics       *observability.Metrics
	Logger        *observability.Logger
	Secure        middleware.SecureConfig
	// MaxUploadBytes caps build uploads; zero means
	// artifacts.DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Server routes API requests.
type Server struct {
	router *mux.Router
	deps   Deps
	log    *observability.Logger
	guards *guards

	authHandlers       *AuthHandlers
	permissionHandlers *PermissionHandlers
	orgHandlers        *OrganizationHandlers
	memberHandlers     *MemberHandlers
	roleHandlers       *RoleHandlers
	invitationHandlers *InvitationHandlers
	buildHandlers      *BuildHandlers
}

// NewServer wires the handlers and routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, "json", os.Stdout)
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = artifacts.DefaultMaxUploadBytes
	}

	log := deps.Logger.WithField("component", "api")
	authn := middleware.NewAuthenticator(deps.Tokens, deps.Users, deps.Members, deps.Logger.Entry())
	g := &guards{authn: authn, guard: deps.Guard}
	if deps.PublicLimiter != nil {
		g.limit = middleware.RateLimit(deps.PublicLimiter, middleware.KeyByIP, deps.Metrics, deps.Logger.Entry())
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		log:    log,
		guards: g,

		authHandlers:       NewAuthHandlers(deps.Users, deps.Tokens, deps.Roles, deps.Guard, g),
		permissionHandlers: NewPermissionHandlers(g),
		orgHandlers:        NewOrganizationHandlers(deps.Orgs, g),
		memberHandlers:     NewMemberHandlers(deps.Members, g),
		roleHandlers:       NewRoleHandlers(deps.Roles, g),
		invitationHandlers: NewInvitationHandlers(deps.Invitations, g),
		buildHandlers:      NewBuildHandlers(deps.Builds, deps.MaxUploadBytes, g),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.deps.Logger),
		httputil.LoggingMiddleware(s.deps.Logger),
		middleware.SecureHeaders(s.deps.Secure),
	)
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, r, apperr.NotFound("no route for %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	s.authHandlers.RegisterRoutes(v1)
	s.permissionHandlers.RegisterRoutes(v1)
	s.orgHandlers.RegisterRoutes(v1)
	s.memberHandlers.RegisterRoutes(v1)
	s.roleHandlers.RegisterRoutes(v1)
	s.invitationHandlers.RegisterRoutes(v1)
	s.buildHandlers.RegisterRoutes(v1)
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in OpenTelemetry server instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "warden.api")
}

// ServeHTTP implements http.Handler without tracing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// guards builds the per-route middleware chains.
type guards struct {
	authn *middleware.Authenticator
	guard *rbac.Guard
	limit func(http.Handler) http.Handler
}

// public applies the public rate limit, if configured.
func (g *guards) public(h http.HandlerFunc) http.Handler {
	if g.limit == nil {
		return h
	}
	return g.limit(h)
}

// authenticated requires a valid bearer token.
func (g *guards) authenticated(h http.HandlerFunc) http.Handler {
	return g.authn.Handler(h)
}

// require authenticates the caller and checks code in the caller's
// organization. extra middleware runs after the permission check.
func (g *guards) require(code string, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
	chain := append([]func(http.Handler) http.Handler{g.authn.Handler, g.guard.RequirePermission(code)}, extra...)
	return httputil.Chain(chain...)(h)
}

// caller returns the authenticated caller.
func caller(r *http.Request) (*auth.Context, error) {
	ac, ok := auth.FromRequest(r)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return ac, nil
}

// member returns the authenticated caller and its organization id.
func member(r *http.Request) (*auth.Context, int64, error) {
	ac, err := caller(r)
	if err != nil {
		return nil, 0, err
	}
	if !ac.InOrganization() {
		return nil, 0, apperr.Forbidden("you are not a member of any organization")
	}
	return ac, ac.OrgID(), nil
}
