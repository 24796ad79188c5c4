package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/credentials"
)

// MinPasswordLength applies to passwords chosen by users.
const MinPasswordLength = 8

// RegisterInput is a self-registration request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Service implements the account operations exposed over HTTP.
type Service struct {
	store  *Store
	hasher credentials.Hasher
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a user service.
func NewService(db *sql.DB, hasher credentials.Hasher, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:  NewStore(db),
		hasher: hasher,
		log:    log.WithField("component", "users"),
		now:    time.Now,
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

// Register creates an active account with a user-chosen password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.BadRequest("email is required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.BadRequest("password must be at least %d characters", MinPasswordLength)
	}

	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("a user with email %s already exists", email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.WithField("user_id", u.ID).Info("User registered")
	return u, nil
}

// Authenticate checks an email and password. Every failure is reported as
// the same Unauthorized error so callers cannot probe for accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, invalid
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("Stored password hash could not be verified")
		return nil, invalid
	}
	if !ok {
		return nil, invalid
	}

	switch u.Status {
	case StatusActive:
		return u, nil
	case StatusInvited:
		return nil, apperr.Unauthorized("invitation has not been accepted")
	default:
		return nil, apperr.Unauthorized("account is disabled")
	}
}

// ChangePassword replaces the caller's password and clears the
// temporary-password flag.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < MinPasswordLength {
		return apperr.BadRequest("password must be at least %d characters", MinPasswordLength)
	}
	if current == next {
		return apperr.BadRequest("new password must differ from the current password")
	}

	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(current, u.PasswordHash)
	if err != nil || !ok {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, userID, hash, false, s.now()); err != nil {
		return err
	}

	s.log.WithField("user_id", userID).Info("Password changed")
	return nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.GetByEmail(ctx, email)
}

// UpdateProfile changes the caller's name fields.
func (s *Service) UpdateProfile(ctx context.Context, id int64, firstName, lastName string) (*User, error) {
	if err := s.store.UpdateProfile(ctx, id, firstName, lastName, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}
