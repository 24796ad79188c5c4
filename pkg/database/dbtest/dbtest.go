// Package dbtest provides an in-memory SQLite database carrying the same
// schema as production, for store and service tests.
package dbtest

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/database"
)

// New opens a fresh in-memory database with all migrations applied. The pool
// is pinned to one connection because every SQLite :memory: connection is a
// separate database.
func New(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	log := logrus.New()
	log.SetOutput(io.Discard)

	if err := database.RunMigrations(context.Background(), db, Migrations(), log); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// Migrations is the SQLite rendition of database.PostgresMigrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create users",
			SQL: `
				CREATE TABLE user_statuses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE
				);
				INSERT INTO user_statuses (name) VALUES ('invited'), ('active'), ('disabled');

				CREATE TABLE users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					temp_password BOOLEAN NOT NULL DEFAULT 0,
					status_id INTEGER NOT NULL REFERENCES user_statuses(id),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations, roles and members",
			SQL: `
				CREATE TABLE organizations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					owner_id INTEGER NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					organization_id INTEGER REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					permissions INTEGER NOT NULL DEFAULT 0,
					is_system BOOLEAN NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE UNIQUE INDEX idx_roles_org_name ON roles (COALESCE(organization_id, 0), name);

				CREATE TABLE organization_members (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id INTEGER NOT NULL REFERENCES roles(id),
					joined_at TIMESTAMP NOT NULL,
					UNIQUE (organization_id, user_id),
					UNIQUE (user_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create invitations",
			SQL: `
				CREATE TABLE invitation_statuses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE
				);
				INSERT INTO invitation_statuses (name) VALUES ('pending'), ('accepted'), ('rejected'), ('expired');

				CREATE TABLE invitations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email TEXT NOT NULL,
					role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					invited_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
					status_id INTEGER NOT NULL REFERENCES invitation_statuses(id),
					token TEXT NOT NULL UNIQUE,
					expires_at TIMESTAMP NOT NULL,
					responded_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     4,
			Description: "Create builds",
			SQL: `
				CREATE TABLE builds (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					path TEXT NOT NULL UNIQUE,
					url TEXT NOT NULL,
					size_bytes INTEGER NOT NULL,
					uploaded_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL
				);
			`,
		},
	}
}
