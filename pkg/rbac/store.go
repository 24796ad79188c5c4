package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/permission"
)

const selectRole = `
	SELECT id, organization_id, name, permissions, is_system, created_at, updated_at
	FROM roles
`

// Store persists roles and answers the membership lookups the Guard needs.
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

// Create inserts role and sets its ID. The stored mask is exactly
// role.Permissions; callers mask it against the catalog first.
func (s *Store) Create(ctx context.Context, role *Role) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	role.UpdatedAt = role.CreatedAt

	query := `
		INSERT INTO roles (organization_id, name, permissions, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		role.OrganizationID, role.Name, role.Permissions.Int64(), role.IsSystem, role.CreatedAt,
	).Scan(&role.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("role %q already exists", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func scanRole(row interface{ Scan(...interface{}) error }) (*Role, error) {
	role := &Role{}
	var orgID sql.NullInt64
	var mask int64
	if err := row.Scan(&role.ID, &orgID, &role.Name, &mask, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if orgID.Valid {
		role.OrganizationID = &orgID.Int64
	}
	role.Permissions = permission.FromInt64(mask)
	return role, nil
}

// Get returns a role or a NotFound error.
func (s *Store) Get(ctx context.Context, id int64) (*Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx, selectRole+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("role %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetByName finds a role by name. A nil orgID looks up a global role.
func (s *Store) GetByName(ctx context.Context, orgID *int64, name string) (*Role, error) {
	var row *sql.Row
	if orgID == nil {
		row = s.db.QueryRowContext(ctx, selectRole+" WHERE organization_id IS NULL AND name = $1", name)
	} else {
		row = s.db.QueryRowContext(ctx, selectRole+" WHERE organization_id = $1 AND name = $2", *orgID, name)
	}
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("role %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListForOrganization returns the global roles followed by the
// organization's own roles.
func (s *Store) ListForOrganization(ctx context.Context, orgID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, selectRole+`
		WHERE organization_id IS NULL OR organization_id = $1
		ORDER BY CASE WHEN organization_id IS NULL THEN 0 ELSE 1 END, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// Update applies a partial update to a non-system role and returns the
// number of rows changed. System roles are never touched, so zero means the
// role is missing or immutable.
func (s *Store) Update(ctx context.Context, id int64, name *string, perms *permission.Set, now time.Time) (int64, error) {
	var nameArg, permsArg interface{}
	if name != nil {
		nameArg = *name
	}
	if perms != nil {
		permsArg = perms.Int64()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = COALESCE($1, name),
		    permissions = COALESCE($2, permissions),
		    updated_at = $3
		WHERE id = $4 AND is_system = FALSE
	`, nameArg, permsArg, now.UTC(), id)
	if err != nil {
		if database.IsUniqueViolation(err) && name != nil {
			return 0, apperr.Conflict("role %q already exists", *name)
		}
		return 0, fmt.Errorf("failed to update role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Delete removes a role. Callers check CountMembers first.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("role %d not found", id)
		}
		return err
	}
	return nil
}

// CountMembers returns how many memberships reference the role.
func (s *Store) CountMembers(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM organization_members WHERE role_id = $1", id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count role members: %w", err)
	}
	return n, nil
}

// PermissionMask returns the stored mask of a role.
func (s *Store) PermissionMask(ctx context.Context, id int64) (permission.Set, error) {
	var mask int64
	err := s.db.QueryRowContext(ctx, "SELECT permissions FROM roles WHERE id = $1", id).Scan(&mask)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("role %d not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get role permissions: %w", err)
	}
	return permission.FromInt64(mask), nil
}

// OrganizationOwner returns the owner user id of an organization.
func (s *Store) OrganizationOwner(ctx context.Context, orgID int64) (int64, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM organizations WHERE id = $1", orgID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("organization %d not found", orgID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get organization owner: %w", err)
	}
	return ownerID, nil
}

// MemberRoleID returns the role of the user's membership in orgID.
func (s *Store) MemberRoleID(ctx context.Context, orgID, userID int64) (int64, error) {
	var roleID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT role_id FROM organization_members WHERE organization_id = $1 AND user_id = $2",
		orgID, userID,
	).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("user %d is not a member of organization %d", userID, orgID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get membership: %w", err)
	}
	return roleID, nil
}
