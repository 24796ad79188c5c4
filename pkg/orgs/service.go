package orgs

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
	"github.com/platinummonkey/warden/pkg/rbac"
)

// CreateInput describes a new organization.
type CreateInput struct {
	Name string
	// Slug defaults to one derived from Name.
	Slug string
}

// Service manages organizations.
type Service struct {
	db      *sql.DB
	store   *Store
	members *MemberManager
	audit   audit.Emitter
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewService creates an organization service. emitter may be nil.
func NewService(db *sql.DB, members *MemberManager, emitter audit.Emitter, log logrus.FieldLogger) *Service {
	if emitter == nil {
		emitter = audit.Nop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		db:      db,
		store:   NewStore(db),
		members: members,
		audit:   emitter,
		log:     log.WithField("component", "orgs"),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.members.SetClock(now)
}

// Store exposes the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

// CreateOrganization creates the organization, its Owner role and the
// owner's membership in one transaction.
func (s *Service) CreateOrganization(ctx context.Context, ownerID int64, in CreateInput) (*Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.BadRequest("organization name is required")
	}
	slug := generateSlug(in.Slug)
	if slug == "" {
		slug = generateSlug(name)
	}
	if slug == "" {
		return nil, apperr.BadRequest("organization slug must contain letters or digits")
	}

	now := s.now().UTC()
	org := &Organization{Name: name, Slug: slug, OwnerID: ownerID, CreatedAt: now}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)

		if _, err := store.MembershipForUser(ctx, ownerID); err == nil {
			return apperr.Conflict("user %d already belongs to an organization", ownerID)
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}

		if err := store.Create(ctx, org); err != nil {
			return err
		}

		owner := &rbac.Role{
			OrganizationID: &org.ID,
			Name:           rbac.OwnerRoleName,
			Permissions:    permission.All(),
			IsSystem:       true,
			CreatedAt:      now,
		}
		if err := rbac.NewStore(tx).Create(ctx, owner); err != nil {
			return err
		}

		_, err := s.members.AddTx(ctx, tx, org.ID, ownerID, owner.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"organization_id": org.ID, "owner_id": ownerID}).Info("Organization created")
	s.emit(ctx, audit.EventOrganizationCreated, ownerID, org.ID, map[string]interface{}{
		"name": org.Name,
		"slug": org.Slug,
	})
	return org, nil
}

// Get returns an organization.
func (s *Service) Get(ctx context.Context, id int64) (*Organization, error) {
	return s.store.Get(ctx, id)
}

// Update changes the organization's name.
func (s *Service) Update(ctx context.Context, id, actorID int64, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("organization name is required")
	}
	if err := s.store.Rename(ctx, id, name, s.now()); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventOrganizationUpdated, actorID, id, map[string]interface{}{"name": name})
	return s.store.Get(ctx, id)
}

// Delete removes the organization and everything it owns.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("organization_id", id).Warn("Organization deleted")
	s.emit(ctx, audit.EventOrganizationDeleted, actorID, id, nil)
	return nil
}

func (s *Service) emit(ctx context.Context, eventType audit.EventType, actorID, orgID int64, meta map[string]interface{}) {
	s.audit.Emit(ctx, audit.Event{
		Type:           eventType,
		Timestamp:      s.now().UTC(),
		ActorID:        audit.Int64(actorID),
		OrganizationID: audit.Int64(orgID),
		ResourceType:   "organization",
		ResourceID:     strconv.FormatInt(orgID, 10),
		Metadata:       meta,
	})
}
