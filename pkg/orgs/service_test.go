package orgs_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/database/dbtest"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/permission"
	"github.com/platinummonkey/warden/pkg/rbac"
)

type recordingEmitter struct {
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Event) {
	r.events = append(r.events, e)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(db *sql.DB, emitter audit.Emitter) *orgs.Service {
	log := quietLogger()
	return orgs.NewService(db, orgs.NewMemberManager(db, emitter, log), emitter, log)
}

func TestCreateOrganization(t *testing.T) {
	db := dbtest.New(t)
	emitter := &recordingEmitter{}
	svc := newService(db, emitter)
	ctx := context.Background()

	ownerID := dbtest.InsertUser(t, db, "founder@example.com")

	org, err := svc.CreateOrganization(ctx, ownerID, orgs.CreateInput{Name: "Acme Mobile  Co."})
	require.NoError(t, err)
	assert.NotZero(t, org.ID)
	assert.Equal(t, "acme-mobile-co", org.Slug)
	assert.Equal(t, ownerID, org.OwnerID)

	owner, err := rbac.NewStore(db).GetByName(ctx, &org.ID, rbac.OwnerRoleName)
	require.NoError(t, err)
	assert.True(t, owner.IsSystem)
	assert.Equal(t, permission.All(), owner.Permissions)

	member, err := svc.Store().MembershipForUser(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, member.OrganizationID)
	assert.Equal(t, owner.ID, member.RoleID)
	assert.Equal(t, rbac.OwnerRoleName, member.RoleName)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, audit.EventOrganizationCreated, emitter.events[0].Type)

	t.Run("owner cannot create a second organization", func(t *testing.T) {
		_, err := svc.CreateOrganization(ctx, ownerID, orgs.CreateInput{Name: "Second"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("slug taken", func(t *testing.T) {
		other := dbtest.InsertUser(t, db, "other@example.com")
		_, err := svc.CreateOrganization(ctx, other, orgs.CreateInput{Name: "Different", Slug: "acme-mobile-co"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		_, err = svc.Store().MembershipForUser(ctx, other)
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "failed create must not leave a membership")
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := svc.CreateOrganization(ctx, ownerID, orgs.CreateInput{Name: "  "})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("unknown owner", func(t *testing.T) {
		_, err := svc.CreateOrganization(ctx, 9999, orgs.CreateInput{Name: "Ghost"})
		assert.Error(t, err)
	})
}

func TestCreateOrganization_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := newService(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE m.user_id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO organizations`).
		WithArgs("Acme", "acme", int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO roles`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = svc.CreateOrganization(context.Background(), 7, orgs.CreateInput{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameAndDelete(t *testing.T) {
	db := dbtest.New(t)
	emitter := &recordingEmitter{}
	svc := newService(db, emitter)
	ctx := context.Background()

	ownerID := dbtest.InsertUser(t, db, "founder@example.com")
	org, err := svc.CreateOrganization(ctx, ownerID, orgs.CreateInput{Name: "Acme"})
	require.NoError(t, err)

	renamed, err := svc.Update(ctx, org.ID, ownerID, "Acme Labs")
	require.NoError(t, err)
	assert.Equal(t, "Acme Labs", renamed.Name)
	assert.Equal(t, "acme", renamed.Slug)

	require.NoError(t, svc.Delete(ctx, org.ID, ownerID))

	_, err = svc.Get(ctx, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Store().MembershipForUser(ctx, ownerID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	var roles int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM roles WHERE organization_id = $1", org.ID).Scan(&roles))
	assert.Zero(t, roles)

	err = svc.Delete(ctx, org.ID, ownerID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Equal(t, audit.EventOrganizationDeleted, emitter.events[len(emitter.events)-1].Type)
}
