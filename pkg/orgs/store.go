package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/users"
)

const selectMember = `
	SELECT m.id, m.organization_id, m.user_id, m.role_id, m.joined_at,
	       u.email, u.first_name, u.last_name, s.name, r.name
	FROM organization_members m
	JOIN users u ON u.id = m.user_id
	JOIN user_statuses s ON s.id = u.status_id
	JOIN roles r ON r.id = m.role_id
`

// Store persists organizations and memberships.
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

// Create inserts org and sets its ID.
func (s *Store) Create(ctx context.Context, org *Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	org.UpdatedAt = org.CreatedAt

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, org.Name, org.Slug, org.OwnerID, org.CreatedAt).Scan(&org.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("organization slug %q is already taken", org.Slug)
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Get returns an organization or a NotFound error.
func (s *Store) Get(ctx context.Context, id int64) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("organization %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// Rename changes the organization's display name.
func (s *Store) Rename(ctx context.Context, id int64, name string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE organizations SET name = $1, updated_at = $2 WHERE id = $3",
		name, now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return notFoundIfNone(result, "organization %d not found", id)
}

// Delete removes an organization; roles, members, invitations and builds
// cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return notFoundIfNone(result, "organization %d not found", id)
}

// CreateMember inserts a membership and sets its ID.
func (s *Store) CreateMember(ctx context.Context, orgID, userID, roleID int64, joinedAt time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role_id, joined_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, orgID, userID, roleID, joinedAt.UTC()).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, apperr.Conflict("user %d already belongs to an organization", userID)
		}
		return 0, fmt.Errorf("failed to add member: %w", err)
	}
	return id, nil
}

func scanMember(row interface{ Scan(...interface{}) error }) (*Member, error) {
	m := &Member{}
	var status string
	if err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.RoleID, &m.JoinedAt,
		&m.Email, &m.FirstName, &m.LastName, &status, &m.RoleName,
	); err != nil {
		return nil, err
	}
	m.UserStatus = users.Status(status)
	return m, nil
}

// GetMember returns a membership of orgID or a NotFound error.
func (s *Store) GetMember(ctx context.Context, orgID, memberID int64) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		selectMember+" WHERE m.id = $1 AND m.organization_id = $2", memberID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("member %d not found", memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// MembershipForUser returns the user's membership in any organization.
func (s *Store) MembershipForUser(ctx context.Context, userID int64) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, selectMember+" WHERE m.user_id = $1", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d is not a member of any organization", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembers returns the members of an organization in join order.
func (s *Store) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMember+" WHERE m.organization_id = $1 ORDER BY m.joined_at, m.id", orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a membership's role.
func (s *Store) UpdateMemberRole(ctx context.Context, memberID, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE organization_members SET role_id = $1 WHERE id = $2", roleID, memberID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return notFoundIfNone(result, "member %d not found", memberID)
}

// DeleteMember removes a membership.
func (s *Store) DeleteMember(ctx context.Context, memberID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM organization_members WHERE id = $1", memberID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return notFoundIfNone(result, "member %d not found", memberID)
}

// DeleteMembership removes the user's membership in orgID, if any.
func (s *Store) DeleteMembership(ctx context.Context, orgID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2", orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	return nil
}

func notFoundIfNone(result sql.Result, format string, args ...interface{}) error {
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound(format, args...)
		}
		return err
	}
	return nil
}
