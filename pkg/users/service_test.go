package users_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/database/dbtest"
	"github.com/platinummonkey/warden/pkg/users"
)

func newService(t *testing.T) *users.Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return users.NewService(dbtest.New(t), dbtest.Hasher(t), log)
}

func TestRegister(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, users.RegisterInput{
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "  Alice@Example.com ",
		Password:  "correct horse",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, users.StatusActive, u.Status)
	assert.False(t, u.TempPassword)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", got.DisplayName())
	assert.Equal(t, users.StatusActive, got.Status)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, users.RegisterInput{Email: "ALICE@example.com", Password: "another pass"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, users.RegisterInput{Email: "bob@example.com", Password: "short"})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := svc.Register(ctx, users.RegisterInput{Password: "long enough"})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, users.RegisterInput{Email: "carol@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "Carol@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", u.Email)

	_, err = svc.Authenticate(ctx, "carol@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, "invalid email or password", apperr.Message(err))
}

func TestAuthenticate_Status(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, users.RegisterInput{Email: "dave@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	require.NoError(t, svc.Store().SetStatus(ctx, u.ID, users.StatusInvited, time.Now()))
	_, err = svc.Authenticate(ctx, "dave@example.com", "s3cret-pass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, "invitation has not been accepted", apperr.Message(err))

	require.NoError(t, svc.Store().SetStatus(ctx, u.ID, users.StatusDisabled, time.Now()))
	_, err = svc.Authenticate(ctx, "dave@example.com", "s3cret-pass")
	assert.Equal(t, "account is disabled", apperr.Message(err))
}

func TestChangePassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, users.RegisterInput{Email: "erin@example.com", Password: "first-pass"})
	require.NoError(t, err)
	require.NoError(t, svc.Store().SetPassword(ctx, u.ID, u.PasswordHash, true, time.Now()))

	err = svc.ChangePassword(ctx, u.ID, "wrong-pass", "second-pass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	err = svc.ChangePassword(ctx, u.ID, "first-pass", "first-pass")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	err = svc.ChangePassword(ctx, u.ID, "first-pass", "short")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "first-pass", "second-pass"))

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.TempPassword)

	_, err = svc.Authenticate(ctx, "erin@example.com", "second-pass")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "erin@example.com", "first-pass")
	assert.Error(t, err)
}

func TestStore_NotFound(t *testing.T) {
	store := users.NewStore(dbtest.New(t))
	ctx := context.Background()

	_, err := store.GetByID(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = store.GetByEmail(ctx, "missing@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = store.SetPassword(ctx, 999, "x", false, time.Now())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	exists, err := store.ExistsByEmail(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_CreateDuplicate(t *testing.T) {
	store := users.NewStore(dbtest.New(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &users.User{Email: "frank@example.com", PasswordHash: "x", Status: users.StatusActive}))
	err := store.Create(ctx, &users.User{Email: "frank@example.com", PasswordHash: "x", Status: users.StatusActive})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
