package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
)

const selectUser = `
	SELECT u.id, u.first_name, u.last_name, u.email, u.password_hash, u.temp_password,
	       s.name, u.created_at, u.updated_at
	FROM users u
	JOIN user_statuses s ON s.id = u.status_id
`

// Store persists users.
type Store struct {
	db database.DBTX
}

// NewStore creates a store over db, which may be a transaction.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a copy of the store bound to tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Create inserts u and sets its ID. The email must already be normalized.
func (s *Store) Create(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt

	query := `
		INSERT INTO users (first_name, last_name, email, password_hash, temp_password, status_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, (SELECT id FROM user_statuses WHERE name = $6), $7, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.TempPassword, string(u.Status), u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("a user with email %s already exists", u.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	var status string
	if err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.TempPassword,
		&status, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Status = Status(status)
	return u, nil
}

// GetByID returns the user or a NotFound error.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE u.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail returns the user or a NotFound error.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE u.email = $1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ExistsByEmail reports whether an account uses email.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)", NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// SetPassword replaces the password hash and the temporary-password flag.
func (s *Store) SetPassword(ctx context.Context, id int64, hash string, temp bool, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, temp_password = $2, updated_at = $3 WHERE id = $4",
		hash, temp, now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user %d not found", id)
		}
		return err
	}
	return nil
}

// SetStatus moves the user to status.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET status_id = (SELECT id FROM user_statuses WHERE name = $1), updated_at = $2 WHERE id = $3",
		string(status), now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user %d not found", id)
		}
		return err
	}
	return nil
}

// UpdateProfile changes the name fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, firstName, lastName string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET first_name = $1, last_name = $2, updated_at = $3 WHERE id = $4",
		firstName, lastName, now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user %d not found", id)
		}
		return err
	}
	return nil
}

// CreateInvited inserts a provisional account holding a temporary password.
func (s *Store) CreateInvited(ctx context.Context, u *User) error {
	u.Status = StatusInvited
	u.TempPassword = true
	return s.Create(ctx, u)
}

// SetTemporaryPassword replaces the password with a system-generated one
// that must be rotated on first use.
func (s *Store) SetTemporaryPassword(ctx context.Context, id int64, hash string, now time.Time) error {
	return s.SetPassword(ctx, id, hash, true, now)
}

// Activate moves an invited user to active.
func (s *Store) Activate(ctx context.Context, id int64, now time.Time) error {
	return s.SetStatus(ctx, id, StatusActive, now)
}
