package rbac

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/permission"
)

// RoleCache is invalidated whenever a role's mask changes or the role is
// deleted.
type RoleCache interface {
	Invalidate(roleID int64)
}

type nopCache struct{}

func (nopCache) Invalidate(int64) {}

// Service implements role management for an organization.
type Service struct {
	db    *sql.DB
	store *Store
	cache RoleCache
	audit audit.Emitter
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a role service. cache and emitter may be nil.
func NewService(db *sql.DB, cache RoleCache, emitter audit.Emitter, log logrus.FieldLogger) *Service {
	if cache == nil {
		cache = nopCache{}
	}
	if emitter == nil {
		emitter = audit.Nop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		db:    db,
		store: NewStore(db),
		cache: cache,
		audit: emitter,
		log:   log.WithField("component", "rbac"),
		now:   time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Store exposes the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.BadRequest("role name is required")
	}
	if len(name) > 100 {
		return "", apperr.BadRequest("role name must be at most 100 characters")
	}
	return name, nil
}

// CreateRole creates an organization role from permission codes. Unknown
// codes are rejected.
func (s *Service) CreateRole(ctx context.Context, orgID, actorID int64, name string, codes []string) (*Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	mask, err := permission.ParseCodes(codes)
	if err != nil {
		return nil, err
	}

	role := &Role{
		OrganizationID: &orgID,
		Name:           name,
		Permissions:    mask & permission.All(),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, role); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"role_id": role.ID, "organization_id": orgID}).Info("Role created")
	s.emit(ctx, audit.EventRoleCreated, actorID, orgID, role.ID, map[string]interface{}{
		"name":        role.Name,
		"permissions": role.Codes(),
	})
	return role, nil
}

// GetRole returns a role usable by orgID. Roles of other organizations are
// reported as not found.
func (s *Service) GetRole(ctx context.Context, orgID, roleID int64) (*Role, error) {
	return visibleRole(ctx, s.store, orgID, roleID)
}

func visibleRole(ctx context.Context, store *Store, orgID, roleID int64) (*Role, error) {
	role, err := store.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !role.VisibleTo(orgID) {
		return nil, apperr.NotFound("role %d not found", roleID)
	}
	return role, nil
}

// ListRoles returns the global roles and the organization's own roles.
func (s *Service) ListRoles(ctx context.Context, orgID int64) ([]*Role, error) {
	return s.store.ListForOrganization(ctx, orgID)
}

func checkMutable(role *Role) error {
	if role.IsSystem {
		return apperr.Forbidden("role %q is a system role and cannot be modified", role.Name)
	}
	if role.IsGlobal() {
		return apperr.Forbidden("role %q is shared by all organizations and cannot be modified", role.Name)
	}
	return nil
}

// UpdateRole applies a partial update to an organization role.
func (s *Service) UpdateRole(ctx context.Context, orgID, actorID, roleID int64, upd RoleUpdate) (*Role, error) {
	if upd.empty() {
		return nil, apperr.BadRequest("nothing to update")
	}

	var name *string
	if upd.Name != nil {
		n, err := normalizeName(*upd.Name)
		if err != nil {
			return nil, err
		}
		name = &n
	}
	var mask *permission.Set
	if upd.Permissions != nil {
		parsed, err := permission.ParseCodes(upd.Permissions)
		if err != nil {
			return nil, err
		}
		parsed &= permission.All()
		mask = &parsed
	}

	var updated *Role
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		role, err := visibleRole(ctx, store, orgID, roleID)
		if err != nil {
			return err
		}
		if err := checkMutable(role); err != nil {
			return err
		}

		n, err := store.Update(ctx, roleID, name, mask, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.BadRequest("role %d could not be updated", roleID)
		}

		updated, err = store.Get(ctx, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(roleID)
	s.log.WithFields(logrus.Fields{"role_id": roleID, "organization_id": orgID}).Info("Role updated")
	s.emit(ctx, audit.EventRoleUpdated, actorID, orgID, roleID, map[string]interface{}{
		"name":        updated.Name,
		"permissions": updated.Codes(),
	})
	return updated, nil
}

// DeleteRole removes an organization role that no member holds.
func (s *Service) DeleteRole(ctx context.Context, orgID, actorID, roleID int64) error {
	var name string
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		role, err := visibleRole(ctx, store, orgID, roleID)
		if err != nil {
			return err
		}
		if err := checkMutable(role); err != nil {
			return err
		}
		name = role.Name

		members, err := store.CountMembers(ctx, roleID)
		if err != nil {
			return err
		}
		if members > 0 {
			return apperr.Conflict("role %q is still assigned to %d member(s)", role.Name, members)
		}
		return store.Delete(ctx, roleID)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(roleID)
	s.log.WithFields(logrus.Fields{"role_id": roleID, "organization_id": orgID}).Info("Role deleted")
	s.emit(ctx, audit.EventRoleDeleted, actorID, orgID, roleID, map[string]interface{}{"name": name})
	return nil
}

// SeedGlobalRoles creates any missing global role. Existing roles are left
// untouched.
func (s *Service) SeedGlobalRoles(ctx context.Context, roles []GlobalRole) error {
	for _, gr := range roles {
		_, err := s.store.GetByName(ctx, nil, gr.Name)
		if err == nil {
			continue
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}

		role := &Role{
			Name:        gr.Name,
			Permissions: gr.Permissions & permission.All(),
			IsSystem:    true,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.store.Create(ctx, role); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				continue
			}
			return err
		}
		s.log.WithField("role", gr.Name).Info("Seeded global role")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType audit.EventType, actorID, orgID, roleID int64, meta map[string]interface{}) {
	s.audit.Emit(ctx, audit.Event{
		Type:           eventType,
		Timestamp:      s.now().UTC(),
		ActorID:        audit.Int64(actorID),
		OrganizationID: audit.Int64(orgID),
		ResourceType:   "role",
		ResourceID:     strconv.FormatInt(roleID, 10),
		Metadata:       meta,
	})
}
