//go:build integration

package invitations_test

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/database/dbtest"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/permission"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

// setupPostgres starts a PostgreSQL container and applies the production
// migrations.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(ctx, database.Config{URL: connStr, MaxOpenConns: 5, ConnectTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	require.NoError(t, database.RunMigrations(ctx, db, database.PostgresMigrations(), log))
	// A second run is a no-op.
	require.NoError(t, database.RunMigrations(ctx, db, database.PostgresMigrations(), log))
	return db
}

func TestPostgresInvitationLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupPostgres(t)
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)
	hasher := dbtest.Hasher(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	userService := users.NewService(db, hasher, log)
	members := orgs.NewMemberManager(db, nil, log)
	orgService := orgs.NewService(db, members, nil, log)
	roles := rbac.NewService(db, nil, nil, log)
	require.NoError(t, roles.SeedGlobalRoles(ctx, rbac.DefaultGlobalRoles()))
	require.NoError(t, roles.SeedGlobalRoles(ctx, rbac.DefaultGlobalRoles()))

	owner, err := userService.Register(ctx, users.RegisterInput{Email: "owner@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	org, err := orgService.CreateOrganization(ctx, owner.ID, orgs.CreateInput{Name: "Acme"})
	require.NoError(t, err)

	role, err := roles.CreateRole(ctx, org.ID, owner.ID, "Developer", []string{permission.BuildView})
	require.NoError(t, err)
	_, err = roles.CreateRole(ctx, org.ID, owner.ID, "Developer", nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate role names are a conflict: %v", err)

	mailer := &recordingMailer{}
	manager := invitations.NewManager(invitations.Deps{
		DB:      db,
		Members: members,
		Hasher:  hasher,
		Mailer:  mailer,
		Log:     log,
	}, invitations.Config{PublicURL: "https://warden.example.com"})
	manager.SetClock(clock)

	invite := func(email string) *invitations.Invitation {
		inv, err := manager.Create(ctx, invitations.CreateInput{
			OrganizationID: org.ID,
			Email:          email,
			RoleID:         role.ID,
			InvitedBy:      owner.ID,
		})
		require.NoError(t, err)
		require.NoError(t, manager.Wait(ctx))
		return inv
	}

	invite("accepted@example.com")
	token := mailer.last(t).Token
	accepted, err := manager.Accept(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, invitations.StatusAccepted, accepted.Status)

	_, err = manager.Accept(ctx, token)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	user, err := userService.GetByEmail(ctx, "accepted@example.com")
	require.NoError(t, err)
	assert.Equal(t, users.StatusActive, user.Status)

	stale := invite("stale@example.com")

	now = now.Add(invitations.DefaultTTL + time.Hour)
	expired, err := manager.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	got, err := manager.Get(ctx, org.ID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, invitations.StatusExpired, got.Status)

	require.NoError(t, orgService.Delete(ctx, org.ID, owner.ID))
	list, err := manager.List(ctx, org.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
