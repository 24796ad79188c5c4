package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
)

// Build is an uploaded build file.
type Build struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	URL            string    `json:"url"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedBy     *int64    `json:"uploaded_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const selectBuild = `
	SELECT id, organization_id, name, path, url, size_bytes, uploaded_by, created_at
	FROM builds
`

// Store persists build records.
type Store struct {
	db database.DBTX
}

// NewStore creates a store over db.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// Create inserts b and sets its ID.
func (s *Store) Create(ctx context.Context, b *Build) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO builds (organization_id, name, path, url, size_bytes, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, b.OrganizationID, b.Name, b.Path, b.URL, b.SizeBytes, b.UploadedBy, b.CreatedAt.UTC()).Scan(&b.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("a build already exists at %s", b.Path)
		}
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

func scanBuild(row interface{ Scan(...interface{}) error }) (*Build, error) {
	b := &Build{}
	var uploadedBy sql.NullInt64
	if err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Path, &b.URL, &b.SizeBytes, &uploadedBy, &b.CreatedAt); err != nil {
		return nil, err
	}
	if uploadedBy.Valid {
		b.UploadedBy = &uploadedBy.Int64
	}
	return b, nil
}

// Get returns a build of orgID or a NotFound error.
func (s *Store) Get(ctx context.Context, orgID, id int64) (*Build, error) {
	b, err := scanBuild(s.db.QueryRowContext(ctx, selectBuild+" WHERE id = $1 AND organization_id = $2", id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("build %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return b, nil
}

// List returns the builds of orgID, newest first.
func (s *Store) List(ctx context.Context, orgID int64) ([]*Build, error) {
	rows, err := s.db.QueryContext(ctx, selectBuild+" WHERE organization_id = $1 ORDER BY created_at DESC, id DESC", orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Delete removes a build record.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM builds WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}
	if err := database.CheckAffected(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("build %d not found", id)
		}
		return err
	}
	return nil
}
