package dbtest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/platinummonkey/warden/pkg/credentials"
)

// Hasher returns an argon2 hasher with the cheapest accepted parameters.
func Hasher(t *testing.T) credentials.Hasher {
	t.Helper()
	h, err := credentials.NewArgon2Hasher(credentials.Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("Failed to create hasher: %v", err)
	}
	return h
}

// InsertUser inserts an active user with an unusable password hash.
func InsertUser(t *testing.T, db *sql.DB, email string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO users (email, password_hash, status_id, created_at, updated_at)
		VALUES ($1, 'x', (SELECT id FROM user_statuses WHERE name = 'active'), $2, $2)
		RETURNING id
	`, email, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	return id
}

// InsertOrganization inserts an organization owned by ownerID without any
// roles or members.
func InsertOrganization(t *testing.T, db *sql.DB, name string, ownerID int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO organizations (name, slug, owner_id, created_at, updated_at)
		VALUES ($1, $1, $2, $3, $3)
		RETURNING id
	`, name, ownerID, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert organization: %v", err)
	}
	return id
}

// InsertRole inserts a role. orgID 0 creates a global role.
func InsertRole(t *testing.T, db *sql.DB, orgID int64, name string, mask int64) int64 {
	t.Helper()
	var org interface{}
	if orgID != 0 {
		org = orgID
	}
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO roles (organization_id, name, permissions, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		RETURNING id
	`, org, name, mask, now).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert role: %v", err)
	}
	return id
}

// InsertMember binds a user to an organization under a role.
func InsertMember(t *testing.T, db *sql.DB, orgID, userID, roleID int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO organization_members (organization_id, user_id, role_id, joined_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, orgID, userID, roleID, time.Now().UTC()).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert member: %v", err)
	}
	return id
}
