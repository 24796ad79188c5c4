package rbac

import (
	"context"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permission"
)

const instrumentationName = "github.com/platinummonkey/warden/pkg/rbac"

const (
	DefaultRoleCacheSize = 1024
)

// GuardConfig configures a Guard. The role cache is off unless CacheTTL is
// positive; with it on, a role change made by another process is seen only
// after the entry expires.
type GuardConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	Metrics   *observability.Metrics
	Audit     audit.Emitter
	Log       logrus.FieldLogger
}

// Guard decides whether a user may exercise a permission in an organization.
type Guard struct {
	store     *Store
	cache     *lru.LRU[int64, permission.Set]
	metrics   *observability.Metrics
	audit     audit.Emitter
	log       logrus.FieldLogger
	tracer    trace.Tracer
	decisions otelmetric.Int64Counter
}

// NewGuard creates a guard reading from db.
func NewGuard(db database.DBTX, cfg GuardConfig) *Guard {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultRoleCacheSize
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	g := &Guard{
		store:   NewStore(db),
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		log:     cfg.Log.WithField("component", "rbac_guard"),
		tracer:  observability.Tracer(instrumentationName),
	}
	if cfg.CacheTTL > 0 {
		g.cache = lru.NewLRU[int64, permission.Set](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	counter, err := observability.Meter(instrumentationName).Int64Counter(
		"warden.authz.decisions",
		otelmetric.WithDescription("Authorization decisions by outcome"),
	)
	if err != nil {
		g.log.WithError(err).Warn("Failed to create authorization counter")
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("warden.authz.decisions")
	}
	g.decisions = counter
	return g
}

// Authorize returns nil when userID may exercise code in orgID, a Forbidden
// error when it may not, and any lookup error unchanged.
func (g *Guard) Authorize(ctx context.Context, userID int64, orgID *int64, code string) error {
	ctx, span := g.tracer.Start(ctx, "rbac.Authorize", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("permission", code),
	))
	defer span.End()

	err := g.authorize(ctx, userID, orgID, code)
	allowed := err == nil
	span.SetAttributes(attribute.Bool("authz.allowed", allowed))
	if err != nil && !apperr.Is(err, apperr.KindForbidden) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	g.record(ctx, userID, orgID, code, allowed, err)
	return err
}

func (g *Guard) authorize(ctx context.Context, userID int64, orgID *int64, code string) error {
	if orgID == nil {
		return apperr.Forbidden("not a member of any organization")
	}

	ownerID, err := g.store.OrganizationOwner(ctx, *orgID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Forbidden("not a member of this organization")
		}
		return err
	}
	if ownerID == userID {
		return nil
	}

	roleID, err := g.store.MemberRoleID(ctx, *orgID, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Forbidden("not a member of this organization")
		}
		return err
	}

	mask, err := g.roleMask(ctx, roleID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Forbidden("role is not available")
		}
		return err
	}

	if !permission.Has(mask, code) {
		return apperr.Forbidden("missing permission: %s", code)
	}
	return nil
}

// Permissions returns the effective permission set of userID in orgID. The
// owner holds every permission.
func (g *Guard) Permissions(ctx context.Context, userID, orgID int64) (permission.Set, error) {
	ownerID, err := g.store.OrganizationOwner(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if ownerID == userID {
		return permission.All(), nil
	}
	roleID, err := g.store.MemberRoleID(ctx, orgID, userID)
	if err != nil {
		return 0, err
	}
	return g.roleMask(ctx, roleID)
}

func (g *Guard) roleMask(ctx context.Context, roleID int64) (permission.Set, error) {
	if g.cache != nil {
		if mask, ok := g.cache.Get(roleID); ok {
			g.countCache("hit")
			return mask, nil
		}
		g.countCache("miss")
	}

	mask, err := g.store.PermissionMask(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if g.cache != nil {
		g.cache.Add(roleID, mask)
	}
	return mask, nil
}

// Invalidate drops the cached mask of a role.
func (g *Guard) Invalidate(roleID int64) {
	if g.cache != nil {
		g.cache.Remove(roleID)
	}
}

func (g *Guard) countCache(result string) {
	if g.metrics != nil {
		g.metrics.RoleCacheTotal.WithLabelValues(result).Inc()
	}
}

func (g *Guard) record(ctx context.Context, userID int64, orgID *int64, code string, allowed bool, denial error) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	g.decisions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("permission", code),
	))
	if g.metrics != nil {
		g.metrics.AuthzDecisionsTotal.WithLabelValues(decision, code).Inc()
	}
	if allowed {
		return
	}

	g.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"permission": code,
		"reason":     apperr.Message(denial),
	}).Debug("Authorization denied")

	g.audit.Emit(ctx, audit.Event{
		Type:           audit.EventAccessDenied,
		ActorID:        audit.Int64(userID),
		OrganizationID: orgID,
		ResourceType:   "permission",
		ResourceID:     code,
		Metadata:       map[string]interface{}{"reason": apperr.Message(denial)},
	})
}

// RequirePermission returns middleware that runs Authorize for the
// authenticated caller before the wrapped handler.
func (g *Guard) RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.FromRequest(r)
			if !ok {
				httputil.WriteAppError(w, r, apperr.Unauthorized("authentication required"))
				return
			}
			if err := g.Authorize(r.Context(), actor.UserID, actor.OrganizationID, code); err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
