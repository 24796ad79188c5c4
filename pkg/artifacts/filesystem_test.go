package artifacts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/artifacts"
)

func TestFilesystemStorage(t *testing.T) {
	root := t.TempDir()
	storage, err := artifacts.NewFilesystemStorage(root, "https://files.example.com/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := storage.Store(ctx, []byte("apk bytes"), "orgs/1/builds/abc/app.apk")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/orgs/1/builds/abc/app.apk", url)

	data, err := os.ReadFile(filepath.Join(root, "orgs", "1", "builds", "abc", "app.apk"))
	require.NoError(t, err)
	assert.Equal(t, "apk bytes", string(data))

	require.NoError(t, storage.HealthCheck(ctx))

	require.NoError(t, storage.Delete(ctx, "orgs/1/builds/abc/app.apk"))
	_, err = os.Stat(filepath.Join(root, "orgs", "1", "builds", "abc", "app.apk"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, storage.Delete(ctx, "orgs/1/builds/abc/app.apk"), "deleting a missing object succeeds")

	for _, key := range []string{"", "/etc/passwd", "../escape", "orgs/../../escape"} {
		_, err := storage.Store(ctx, []byte("x"), key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestNewFilesystemStorageRequiresRoot(t *testing.T) {
	_, err := artifacts.NewFilesystemStorage("", "")
	assert.Error(t, err)
}
