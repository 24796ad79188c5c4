package invitations

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/credentials"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/notify"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

const mailTimeout = 30 * time.Second

// Config tunes the manager.
type Config struct {
	// TTL is the answer window, DefaultTTL when zero.
	TTL time.Duration
	// PublicURL is the externally reachable base of the API, used to build
	// the accept and reject links in invitation emails.
	PublicURL string
	// PasswordLength of generated temporary passwords, credentials.DefaultLength when zero.
	PasswordLength int
}

// Deps are the manager's collaborators. Members, Hasher and DB are required.
type Deps struct {
	DB        *sql.DB
	Members   *orgs.MemberManager
	Generator *credentials.Generator
	Hasher    credentials.Hasher
	Mailer    notify.Mailer
	Audit     audit.Emitter
	Metrics   *observability.Metrics
	Log       logrus.FieldLogger
}

// CreateInput describes a new invitation.
type CreateInput struct {
	OrganizationID int64
	Email          string
	FirstName      string
	LastName       string
	RoleID         int64
	InvitedBy      int64
}

// Manager drives the invitation lifecycle.
type Manager struct {
	db        *sql.DB
	store     *Store
	members   *orgs.MemberManager
	generator *credentials.Generator
	hasher    credentials.Hasher
	mailer    notify.Mailer
	audit     audit.Emitter
	metrics   *observability.Metrics
	log       logrus.FieldLogger
	mail      *async.Group
	now       func() time.Time
	newToken  func() string

	ttl            time.Duration
	publicURL      string
	passwordLength int
}

// NewManager creates a manager.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Generator == nil {
		deps.Generator = credentials.NewGenerator(nil)
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop()
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.NewLogMailer(deps.Log)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PasswordLength == 0 {
		cfg.PasswordLength = credentials.DefaultLength
	}

	log := deps.Log.WithField("component", "invitations")
	return &Manager{
		db:             deps.DB,
		store:          NewStore(deps.DB),
		members:        deps.Members,
		generator:      deps.Generator,
		hasher:         deps.Hasher,
		mailer:         deps.Mailer,
		audit:          deps.Audit,
		metrics:        deps.Metrics,
		log:            log,
		mail:           async.NewGroup(log),
		now:            time.Now,
		newToken:       uuid.NewString,
		ttl:            cfg.TTL,
		publicURL:      strings.TrimRight(cfg.PublicURL, "/"),
		passwordLength: cfg.PasswordLength,
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Store exposes the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}

// Wait blocks until queued invitation emails have been handed to the mailer.
func (m *Manager) Wait(ctx context.Context) error {
	return m.mail.Wait(ctx)
}

// temporaryPassword returns a generated password and its hash.
func (m *Manager) temporaryPassword() (string, string, error) {
	plain, err := m.generator.Generate(m.passwordLength)
	if err != nil {
		return "", "", err
	}
	hash, err := m.hasher.Hash(plain)
	if err != nil {
		return "", "", err
	}
	return plain, hash, nil
}

// Create provisions the invitee and a pending invitation. The account, the
// membership and the invitation commit together or not at all.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Invitation, error) {
	email := users.NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.BadRequest("email is required")
	}

	plain, hash, err := m.temporaryPassword()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	inv := &Invitation{
		OrganizationID: in.OrganizationID,
		Email:          email,
		RoleID:         in.RoleID,
		InvitedBy:      &in.InvitedBy,
		Status:         StatusPending,
		Token:          m.newToken(),
		ExpiresAt:      now.Add(m.ttl),
		CreatedAt:      now,
	}
	invitee := &users.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	var org *orgs.Organization

	err = database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		userStore := users.NewStore(tx)
		exists, err := userStore.ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("a user with email %s already exists", email)
		}

		org, err = orgs.NewStore(tx).Get(ctx, in.OrganizationID)
		if err != nil {
			return err
		}
		role, err := rbac.NewStore(tx).Get(ctx, in.RoleID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		if role == nil || !role.VisibleTo(in.OrganizationID) {
			return apperr.BadRequest("role %d cannot be assigned in this organization", in.RoleID)
		}

		if err := userStore.CreateInvited(ctx, invitee); err != nil {
			return err
		}
		if _, err := m.members.AddTx(ctx, tx, in.OrganizationID, invitee.ID, in.RoleID); err != nil {
			return err
		}
		return m.store.WithTx(tx).Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"invitation_id":   inv.ID,
		"organization_id": inv.OrganizationID,
		"role_id":         inv.RoleID,
	}).Info("Invitation created")
	m.count("created")
	m.emit(ctx, audit.EventInvitationCreated, &in.InvitedBy, inv, map[string]interface{}{
		"email":   inv.Email,
		"role_id": inv.RoleID,
	})
	m.send(ctx, inv, invitee.DisplayName(), org.Name, plain)
	return inv, nil
}

// Accept answers the invitation holding token. A pending invitation past its
// expiry is recorded as expired and rejected with BadRequest.
func (m *Manager) Accept(ctx context.Context, token string) (*Invitation, error) {
	var (
		inv     *Invitation
		userID  int64
		expired bool
	)
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		store := m.store.WithTx(tx)
		var err error
		inv, err = store.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if err := answerable(inv); err != nil {
			return err
		}

		now := m.now().UTC()
		if inv.Expired(now) {
			n, err := store.ExpireIfOverdue(ctx, inv.ID, token, now)
			if err != nil {
				return err
			}
			if n == 0 {
				return apperr.BadRequest("invitation is no longer pending")
			}
			expired = true
			inv, err = store.Get(ctx, inv.ID)
			return err
		}

		n, err := store.Transition(ctx, inv.ID, token, StatusPending, StatusAccepted, &now, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.BadRequest("invitation is no longer pending")
		}

		userStore := users.NewStore(tx)
		invitee, err := userStore.GetByEmail(ctx, inv.Email)
		if err != nil {
			return err
		}
		userID = invitee.ID
		if invitee.Status == users.StatusInvited {
			if err := userStore.Activate(ctx, invitee.ID, now); err != nil {
				return err
			}
		}

		inv, err = store.Get(ctx, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if expired {
		m.log.WithField("invitation_id", inv.ID).Info("Invitation expired on accept")
		m.count("expired")
		m.emit(ctx, audit.EventInvitationExpired, nil, inv, nil)
		return nil, apperr.BadRequest("invitation has expired")
	}

	m.log.WithFields(logrus.Fields{"invitation_id": inv.ID, "user_id": userID}).Info("Invitation accepted")
	m.count("accepted")
	m.emit(ctx, audit.EventInvitationAccepted, &userID, inv, nil)
	return inv, nil
}

// Reject declines the invitation holding token and withdraws the membership
// provisioned for it.
func (m *Manager) Reject(ctx context.Context, token string) (*Invitation, error) {
	var (
		inv    *Invitation
		userID *int64
	)
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		store := m.store.WithTx(tx)
		var err error
		inv, err = store.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if err := answerable(inv); err != nil {
			return err
		}

		now := m.now().UTC()
		n, err := store.Transition(ctx, inv.ID, token, StatusPending, StatusRejected, &now, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.BadRequest("invitation is no longer pending")
		}

		invitee, err := users.NewStore(tx).GetByEmail(ctx, inv.Email)
		switch {
		case err == nil:
			userID = &invitee.ID
			if err := orgs.NewStore(tx).DeleteMembership(ctx, inv.OrganizationID, invitee.ID); err != nil {
				return err
			}
		case !apperr.Is(err, apperr.KindNotFound):
			return err
		}

		inv, err = store.Get(ctx, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.WithField("invitation_id", inv.ID).Info("Invitation rejected")
	m.count("rejected")
	m.emit(ctx, audit.EventInvitationRejected, userID, inv, nil)
	return inv, nil
}

func answerable(inv *Invitation) error {
	switch inv.Status {
	case StatusPending:
		return nil
	case StatusExpired:
		return apperr.BadRequest("invitation has expired")
	default:
		return apperr.BadRequest("invitation has already been %s", inv.Status)
	}
}

// Resend rotates the invitee's temporary password, issues a new token and
// expiry and resets the invitation to pending. The previous token stops
// resolving.
func (m *Manager) Resend(ctx context.Context, orgID, actorID, id int64) (*Invitation, error) {
	plain, hash, err := m.temporaryPassword()
	if err != nil {
		return nil, err
	}

	var (
		inv     *Invitation
		invitee *users.User
		org     *orgs.Organization
	)
	err = database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		store := m.store.WithTx(tx)
		var err error
		inv, err = getInOrganization(ctx, store, orgID, id)
		if err != nil {
			return err
		}
		if !inv.Status.Resendable() {
			return apperr.BadRequest("cannot resend an invitation that has been accepted or rejected")
		}

		userStore := users.NewStore(tx)
		invitee, err = userStore.GetByEmail(ctx, inv.Email)
		if err != nil {
			return err
		}
		org, err = orgs.NewStore(tx).Get(ctx, orgID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		if err := userStore.SetTemporaryPassword(ctx, invitee.ID, hash, now); err != nil {
			return err
		}
		n, err := store.Reissue(ctx, inv.ID, m.newToken(), now.Add(m.ttl), now)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.BadRequest("cannot resend an invitation that has been accepted or rejected")
		}

		inv, err = store.Get(ctx, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.WithField("invitation_id", inv.ID).Info("Invitation resent")
	m.count("resent")
	m.emit(ctx, audit.EventInvitationResent, &actorID, inv, nil)
	m.send(ctx, inv, invitee.DisplayName(), org.Name, plain)
	return inv, nil
}

// Delete removes an invitation of orgID whatever its state.
func (m *Manager) Delete(ctx context.Context, orgID, actorID, id int64) error {
	inv, err := getInOrganization(ctx, m.store, orgID, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.log.WithField("invitation_id", id).Info("Invitation deleted")
	m.count("deleted")
	m.emit(ctx, audit.EventInvitationDeleted, &actorID, inv, map[string]interface{}{"status": string(inv.Status)})
	return nil
}

// Get returns an invitation of orgID.
func (m *Manager) Get(ctx context.Context, orgID, id int64) (*Invitation, error) {
	return getInOrganization(ctx, m.store, orgID, id)
}

// List returns the invitations of orgID, optionally filtered by status name.
func (m *Manager) List(ctx context.Context, orgID int64, status string) ([]*Invitation, error) {
	var filter Status
	if status != "" {
		var err error
		if filter, err = ParseStatus(status); err != nil {
			return nil, err
		}
	}
	return m.store.List(ctx, orgID, filter)
}

// ExpireSweep moves every overdue pending invitation to expired and returns
// how many changed. Nothing changes unless both status ids resolve.
func (m *Manager) ExpireSweep(ctx context.Context) (int64, error) {
	pendingID, err := m.store.StatusID(ctx, StatusPending)
	if err != nil {
		return 0, err
	}
	expiredID, err := m.store.StatusID(ctx, StatusExpired)
	if err != nil {
		return 0, err
	}

	n, err := m.store.ExpireOverdue(ctx, pendingID, expiredID, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.WithField("count", n).Info("Expired overdue invitations")
		if m.metrics != nil {
			m.metrics.InvitationsExpiredTotal.Add(float64(n))
		}
	}
	return n, nil
}

func getInOrganization(ctx context.Context, store *Store, orgID, id int64) (*Invitation, error) {
	inv, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OrganizationID != orgID {
		return nil, apperr.NotFound("invitation %d not found", id)
	}
	return inv, nil
}

// send hands the invitation email to the mailer in the background. Delivery
// failures are logged and never reach the caller.
func (m *Manager) send(ctx context.Context, inv *Invitation, name, orgName, password string) {
	msg := notify.InvitationEmail{
		To:               inv.Email,
		Name:             name,
		OrganizationName: orgName,
		TempPassword:     password,
		Token:            inv.Token,
		AcceptURL:        m.link("accept", inv.Token),
		RejectURL:        m.link("reject", inv.Token),
		ExpiresAt:        inv.ExpiresAt,
	}
	m.mail.Go(ctx, mailTimeout, "invitation-email", func(ctx context.Context) error {
		return m.mailer.SendInvitation(ctx, msg)
	})
}

func (m *Manager) link(action, token string) string {
	return m.publicURL + "/api/v1/invitations/" + action + "?token=" + url.QueryEscape(token)
}

func (m *Manager) count(transition string) {
	if m.metrics != nil {
		m.metrics.InvitationTransitionsTotal.WithLabelValues(transition).Inc()
	}
}

func (m *Manager) emit(ctx context.Context, eventType audit.EventType, actorID *int64, inv *Invitation, meta map[string]interface{}) {
	m.audit.Emit(ctx, audit.Event{
		Type:           eventType,
		Timestamp:      m.now().UTC(),
		ActorID:        actorID,
		OrganizationID: audit.Int64(inv.OrganizationID),
		ResourceType:   "invitation",
		ResourceID:     strconv.FormatInt(inv.ID, 10),
		Metadata:       meta,
	})
}
