package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets", "refresh_token")
	store := NewStore(path, "correct horse")

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "refresh-abc123"))

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-abc123", token)
}

func TestSavedFileIsEncryptedWithRestrictedMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	store := NewStore(path, "correct horse")

	require.NoError(t, store.Save(context.Background(), "refresh-abc123"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "enc:"))
	assert.NotContains(t, content, "refresh-abc123")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadMigratesLegacyPlaintextFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	require.NoError(t, os.WriteFile(path, []byte("legacy-token\n"), 0o600))

	store := NewStore(path, "correct horse")

	token, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", token)

	// The file is rewritten encrypted on the same load.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "enc:"))

	token, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", token)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "absent"), "correct horse")

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	store := NewStore(path, "correct horse")

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestLoadWithWrongPassphrase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	require.NoError(t, NewStore(path, "correct horse").Save(context.Background(), "refresh-abc123"))

	_, err := NewStore(path, "battery staple").Load(context.Background())
	require.ErrorIs(t, err, ErrBadPassphrase)
}

func TestLoadWithTruncatedPayload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	require.NoError(t, os.WriteFile(path, []byte("enc:AAAA\n"), 0o600))

	_, err := NewStore(path, "correct horse").Load(context.Background())
	require.ErrorIs(t, err, ErrBadPassphrase)
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "refresh_token"), "correct horse")

	err := store.Save(context.Background(), "   ")
	require.Error(t, err)
}

func TestSaveOverwritesPreviousToken(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "refresh_token")
	store := NewStore(path, "correct horse")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "refresh-old"))
	require.NoError(t, store.Save(ctx, "refresh-new"))

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-new", token)
}
