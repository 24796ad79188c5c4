package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
)

const selectInvitation = `
	SELECT i.id, i.organization_id, i.email, i.role_id, i.invited_by, s.name, i.token,
	       i.expires_at, i.responded_at, i.created_at, i.updated_at
	FROM invitations i
	JOIN invitation_statuses s ON s.id = i.status_id
`

// Store persists invitations.
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

// Create inserts inv and sets its ID.
func (s *Store) Create(ctx context.Context, inv *Invitation) error {
	inv.UpdatedAt = inv.CreatedAt

	query := `
		INSERT INTO invitations (organization_id, email, role_id, invited_by, status_id, token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, (SELECT id FROM invitation_statuses WHERE name = $5), $6, $7, $8, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		inv.OrganizationID, inv.Email, inv.RoleID, inv.InvitedBy, string(inv.Status), inv.Token,
		inv.ExpiresAt.UTC(), inv.CreatedAt.UTC(),
	).Scan(&inv.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("invitation token collision")
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func scanInvitation(row interface{ Scan(...interface{}) error }) (*Invitation, error) {
	inv := &Invitation{}
	var (
		status      string
		invitedBy   sql.NullInt64
		respondedAt sql.NullTime
	)
	if err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.RoleID, &invitedBy, &status, &inv.Token,
		&inv.ExpiresAt, &respondedAt, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	if invitedBy.Valid {
		inv.InvitedBy = &invitedBy.Int64
	}
	if respondedAt.Valid {
		inv.RespondedAt = &respondedAt.Time
	}
	return inv, nil
}

// Get returns the invitation or a NotFound error.
func (s *Store) Get(ctx context.Context, id int64) (*Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, selectInvitation+" WHERE i.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invitation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetByToken returns the invitation currently holding token or a NotFound
// error. Tokens replaced by a resend no longer resolve.
func (s *Store) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, apperr.NotFound("invitation not found")
	}
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, selectInvitation+" WHERE i.token = $1", token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// List returns the invitations of orgID, newest first. An empty status lists
// every state.
func (s *Store) List(ctx context.Context, orgID int64, status Status) ([]*Invitation, error) {
	query := selectInvitation + " WHERE i.organization_id = $1"
	args := []interface{}{orgID}
	if status != "" {
		query += " AND s.name = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY i.created_at DESC, i.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Transition moves the invitation from one state to another if it is still
// in from and still holds token. It returns the number of rows changed, zero
// when another writer got there first or the token was reissued.
func (s *Store) Transition(ctx context.Context, id int64, token string, from, to Status, respondedAt *time.Time, now time.Time) (int64, error) {
	var responded interface{}
	if respondedAt != nil {
		responded = respondedAt.UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET status_id = (SELECT id FROM invitation_statuses WHERE name = $1),
		    responded_at = $2,
		    updated_at = $3
		WHERE id = $4
		  AND status_id = (SELECT id FROM invitation_statuses WHERE name = $5)
		  AND token = $6
	`, string(to), responded, now.UTC(), id, string(from), token)
	if err != nil {
		return 0, fmt.Errorf("failed to update invitation status: %w", err)
	}
	return result.RowsAffected()
}

// ExpireIfOverdue marks a single pending invitation expired, provided it
// still holds token and its expiry is before now.
func (s *Store) ExpireIfOverdue(ctx context.Context, id int64, token string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET status_id = (SELECT id FROM invitation_statuses WHERE name = $1),
		    updated_at = $2
		WHERE id = $3
		  AND status_id = (SELECT id FROM invitation_statuses WHERE name = $4)
		  AND token = $5
		  AND expires_at < $6
	`, string(StatusExpired), now.UTC(), id, string(StatusPending), token, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitation: %w", err)
	}
	return result.RowsAffected()
}

// Reissue replaces the token and expiry and resets the invitation to pending
// in a single statement. Only pending or expired invitations are touched.
func (s *Store) Reissue(ctx context.Context, id int64, token string, expiresAt, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET token = $1,
		    expires_at = $2,
		    status_id = (SELECT id FROM invitation_statuses WHERE name = $3),
		    responded_at = NULL,
		    updated_at = $4
		WHERE id = $5
		  AND status_id IN (SELECT id FROM invitation_statuses WHERE name IN ($3, $6))
	`, token, expiresAt.UTC(), string(StatusPending), now.UTC(), id, string(StatusExpired))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, apperr.Conflict("invitation token collision")
		}
		return 0, fmt.Errorf("failed to reissue invitation: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes the invitation.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM invitations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("invitation %d not found", id)
		}
		return err
	}
	return nil
}

// StatusID resolves a status name to its row id.
func (s *Store) StatusID(ctx context.Context, status Status) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM invitation_statuses WHERE name = $1", string(status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up invitation status %s: %w", status, err)
	}
	return id, nil
}

// ExpireOverdue moves every invitation in pendingID whose expiry is before
// now to expiredID and returns how many changed.
func (s *Store) ExpireOverdue(ctx context.Context, pendingID, expiredID int64, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE invitations SET status_id = $1, updated_at = $2 WHERE status_id = $3 AND expires_at < $4",
		expiredID, now.UTC(), pendingID, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return result.RowsAffected()
}
