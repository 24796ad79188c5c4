package artifacts_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/artifacts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/database/dbtest"
)

type memoryStorage struct {
	objects  map[string][]byte
	storeErr error
}

func (m *memoryStorage) Store(_ context.Context, data []byte, key string) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	m.objects[key] = data
	return "mem://" + key, nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) HealthCheck(context.Context) error { return nil }

type recordingEmitter struct {
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Event) {
	r.events = append(r.events, e)
}

func TestBuildService(t *testing.T) {
	db := dbtest.New(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx := context.Background()

	userID := dbtest.InsertUser(t, db, "dev@example.com")
	orgID := dbtest.InsertOrganization(t, db, "acme", userID)
	otherOrg := dbtest.InsertOrganization(t, db, "globex", userID)

	storage := &memoryStorage{objects: map[string][]byte{}}
	emitter := &recordingEmitter{}
	svc := artifacts.NewService(db, storage, emitter, log)

	build, err := svc.Upload(ctx, artifacts.UploadInput{
		OrganizationID: orgID,
		UploadedBy:     userID,
		Name:           "Release 1.2",
		FileName:       "../../My App (final).apk",
		Data:           []byte("PK\x03\x04"),
	})
	require.NoError(t, err)
	assert.NotZero(t, build.ID)
	assert.Equal(t, "Release 1.2", build.Name)
	assert.True(t, strings.HasPrefix(build.Path, "orgs/"), build.Path)
	assert.True(t, strings.HasSuffix(build.Path, "/My_App__final_.apk"), build.Path)
	assert.Equal(t, "mem://"+build.Path, build.URL)
	assert.Equal(t, int64(4), build.SizeBytes)
	assert.Contains(t, storage.objects, build.Path)

	list, err := svc.List(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, build.ID, list[0].ID)

	list, err = svc.List(ctx, otherOrg)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, otherOrg, build.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(svc.Delete(ctx, otherOrg, userID, build.ID), apperr.KindNotFound))

	require.NoError(t, svc.Delete(ctx, orgID, userID, build.ID))
	assert.Empty(t, storage.objects)
	_, err = svc.Get(ctx, orgID, build.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.Len(t, emitter.events, 2)
	assert.Equal(t, audit.EventBuildUploaded, emitter.events[0].Type)
	assert.Equal(t, audit.EventBuildDeleted, emitter.events[1].Type)
}

func TestBuildUploadValidation(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.InsertUser(t, db, "dev@example.com")
	orgID := dbtest.InsertOrganization(t, db, "acme", userID)

	storage := &memoryStorage{objects: map[string][]byte{}}
	svc := artifacts.NewService(db, storage, nil, nil)

	_, err := svc.Upload(ctx, artifacts.UploadInput{OrganizationID: orgID, UploadedBy: userID, FileName: "app.apk"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = svc.Upload(ctx, artifacts.UploadInput{OrganizationID: orgID, UploadedBy: userID, FileName: "..", Data: []byte("x")})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	build, err := svc.Upload(ctx, artifacts.UploadInput{OrganizationID: orgID, UploadedBy: userID, FileName: "app.apk", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "app.apk", build.Name, "name defaults to the file name")

	storage.storeErr = errors.New("disk full")
	_, err = svc.Upload(ctx, artifacts.UploadInput{OrganizationID: orgID, UploadedBy: userID, FileName: "b.apk", Data: []byte("x")})
	assert.Error(t, err)
}

func TestBuildUploadRemovesObjectWhenRecordFails(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.InsertUser(t, db, "dev@example.com")

	storage := &memoryStorage{objects: map[string][]byte{}}
	svc := artifacts.NewService(db, storage, nil, nil)

	_, err := svc.Upload(ctx, artifacts.UploadInput{OrganizationID: 9999, UploadedBy: userID, FileName: "app.apk", Data: []byte("x")})
	require.Error(t, err)
	assert.Empty(t, storage.objects)
}
