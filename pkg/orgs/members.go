package orgs

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

// MemberManager attaches users to organizations under a role.
type MemberManager struct {
	db    *sql.DB
	store *Store
	audit audit.Emitter
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewMemberManager creates a member manager. emitter may be nil.
func NewMemberManager(db *sql.DB, emitter audit.Emitter, log logrus.FieldLogger) *MemberManager {
	if emitter == nil {
		emitter = audit.Nop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MemberManager{
		db:    db,
		store: NewStore(db),
		audit: emitter,
		log:   log.WithField("component", "members"),
		now:   time.Now,
	}
}

// SetClock overrides the time source.
func (m *MemberManager) SetClock(now func() time.Time) {
	m.now = now
}

// assignableRole loads roleID and checks that orgID may use it.
func assignableRole(ctx context.Context, roles *rbac.Store, orgID, roleID int64) (*rbac.Role, error) {
	role, err := roles.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !role.VisibleTo(orgID) {
		return nil, apperr.Conflict("role %d does not belong to this organization", roleID)
	}
	return role, nil
}

// Add attaches userID to orgID under roleID.
func (m *MemberManager) Add(ctx context.Context, orgID, actorID, userID, roleID int64) (*Member, error) {
	var member *Member
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		member, err = m.AddTx(ctx, tx, orgID, userID, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{"organization_id": orgID, "user_id": userID, "role_id": roleID}).Info("Member added")
	m.emit(ctx, audit.EventMemberAdded, actorID, orgID, member.ID, map[string]interface{}{
		"user_id": userID,
		"role_id": roleID,
	})
	return member, nil
}

// AddTx is Add inside the caller's transaction. It neither logs nor emits
// audit events; the caller reports the outcome once it commits.
func (m *MemberManager) AddTx(ctx context.Context, tx *sql.Tx, orgID, userID, roleID int64) (*Member, error) {
	store := m.store.WithTx(tx)

	if _, err := assignableRole(ctx, rbac.NewStore(tx), orgID, roleID); err != nil {
		return nil, err
	}
	if _, err := users.NewStore(tx).GetByID(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := store.MembershipForUser(ctx, userID)
	switch {
	case err == nil && existing.OrganizationID == orgID:
		return nil, apperr.Conflict("user %d is already a member of this organization", userID)
	case err == nil:
		return nil, apperr.Conflict("user %d already belongs to another organization", userID)
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}

	id, err := store.CreateMember(ctx, orgID, userID, roleID, m.now())
	if err != nil {
		return nil, err
	}
	return store.GetMember(ctx, orgID, id)
}

// UpdateRole moves a member of orgID to another role.
func (m *MemberManager) UpdateRole(ctx context.Context, orgID, actorID, memberID, roleID int64) (*Member, error) {
	var member *Member
	var previous int64
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		store := m.store.WithTx(tx)
		current, err := store.GetMember(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		previous = current.RoleID

		if _, err := assignableRole(ctx, rbac.NewStore(tx), orgID, roleID); err != nil {
			return err
		}
		if err := store.UpdateMemberRole(ctx, memberID, roleID); err != nil {
			return err
		}
		member, err = store.GetMember(ctx, orgID, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{"member_id": memberID, "role_id": roleID}).Info("Member role changed")
	m.emit(ctx, audit.EventMemberRoleChanged, actorID, orgID, memberID, map[string]interface{}{
		"previous_role_id": previous,
		"role_id":          roleID,
	})
	return member, nil
}

// Remove deletes a member of orgID. The owner's membership cannot be
// removed.
func (m *MemberManager) Remove(ctx context.Context, orgID, actorID, memberID int64) error {
	var userID int64
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		store := m.store.WithTx(tx)
		member, err := store.GetMember(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		org, err := store.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if member.UserID == org.OwnerID {
			return apperr.Forbidden("the organization owner cannot be removed")
		}
		userID = member.UserID
		return store.DeleteMember(ctx, memberID)
	})
	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{"member_id": memberID, "user_id": userID}).Info("Member removed")
	m.emit(ctx, audit.EventMemberRemoved, actorID, orgID, memberID, map[string]interface{}{"user_id": userID})
	return nil
}

// List returns the members of orgID.
func (m *MemberManager) List(ctx context.Context, orgID int64) ([]*Member, error) {
	return m.store.ListMembers(ctx, orgID)
}

// Get returns a member of orgID.
func (m *MemberManager) Get(ctx context.Context, orgID, memberID int64) (*Member, error) {
	return m.store.GetMember(ctx, orgID, memberID)
}

// MembershipFor returns the user's membership or a NotFound error.
func (m *MemberManager) MembershipFor(ctx context.Context, userID int64) (*Member, error) {
	return m.store.MembershipForUser(ctx, userID)
}

func (m *MemberManager) emit(ctx context.Context, eventType audit.EventType, actorID, orgID, memberID int64, meta map[string]interface{}) {
	m.audit.Emit(ctx, audit.Event{
		Type:           eventType,
		Timestamp:      m.now().UTC(),
		ActorID:        audit.Int64(actorID),
		OrganizationID: audit.Int64(orgID),
		ResourceType:   "member",
		ResourceID:     strconv.FormatInt(memberID, 10),
		Metadata:       meta,
	})
}
