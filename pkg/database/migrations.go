package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, each in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, migrations []Migration, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Infof("Running migration %d: %s", m.Version, m.Description)

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				m.Version, m.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// PostgresMigrations returns the production schema.
func PostgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_statuses (
					id SMALLSERIAL PRIMARY KEY,
					name VARCHAR(32) NOT NULL UNIQUE
				);
				INSERT INTO user_statuses (name) VALUES ('invited'), ('active'), ('disabled')
					ON CONFLICT (name) DO NOTHING;

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					first_name VARCHAR(100) NOT NULL DEFAULT '',
					last_name VARCHAR(100) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					temp_password BOOLEAN NOT NULL DEFAULT FALSE,
					status_id SMALLINT NOT NULL REFERENCES user_statuses(id),
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations, roles and members",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					owner_id BIGINT NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(100) NOT NULL,
					permissions BIGINT NOT NULL DEFAULT 0,
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_org_name ON roles (COALESCE(organization_id, 0), name);

				CREATE TABLE IF NOT EXISTS organization_members (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					joined_at TIMESTAMPTZ NOT NULL,
					UNIQUE (organization_id, user_id),
					UNIQUE (user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_members_role_id ON organization_members(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create invitations",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitation_statuses (
					id SMALLSERIAL PRIMARY KEY,
					name VARCHAR(32) NOT NULL UNIQUE
				);
				INSERT INTO invitation_statuses (name) VALUES ('pending'), ('accepted'), ('rejected'), ('expired')
					ON CONFLICT (name) DO NOTHING;

				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					status_id SMALLINT NOT NULL REFERENCES invitation_statuses(id),
					token VARCHAR(64) NOT NULL UNIQUE,
					expires_at TIMESTAMPTZ NOT NULL,
					responded_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_invitations_org ON invitations(organization_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_status_expires ON invitations(status_id, expires_at);
				CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);
			`,
		},
		{
			Version:     4,
			Description: "Create builds",
			SQL: `
				CREATE TABLE IF NOT EXISTS builds (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					path TEXT NOT NULL UNIQUE,
					url TEXT NOT NULL,
					size_bytes BIGINT NOT NULL,
					uploaded_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_builds_org ON builds(organization_id);
			`,
		},
	}
}
