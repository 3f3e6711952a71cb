package idempotency

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRecord(ttl time.Duration) Record {
	body := []byte(`{"mint":{"id":1,"state":"submitted"}}`)
	return Record{
		Intent:      "mint",
		Fingerprint: Fingerprint("mint", nil),
		StatusCode:  202,
		Response:    body,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().Add(ttl).UTC(),
	}
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	rec, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, rec)

	want := sampleRecord(time.Minute)
	require.NoError(t, store.Save(ctx, "live", want))
	got, err := store.Get(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want.Intent, got.Intent)
	require.Equal(t, want.Fingerprint, got.Fingerprint)
	require.Equal(t, want.StatusCode, got.StatusCode)
	require.Equal(t, want.Response, got.Response)

	require.NoError(t, store.Save(ctx, "stale", sampleRecord(-time.Second)))
	got, err = store.Get(ctx, "stale")
	require.NoError(t, err)
	require.Nil(t, got)

	overwrite := sampleRecord(time.Minute)
	overwrite.StatusCode = 409
	require.NoError(t, store.Save(ctx, "live", overwrite))
	got, err = store.Get(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, 409, got.StatusCode)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, mustFileStore(t, filepath.Join(t.TempDir(), "idem.json")))
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "idem.json")
	store := mustFileStore(t, path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "key", sampleRecord(time.Hour)))
	require.NoError(t, store.Save(ctx, "old", sampleRecord(-time.Hour)))
	_, err := os.Stat(path)
	require.NoError(t, err)

	reopened := mustFileStore(t, path)
	got, err := reopened.Get(ctx, "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 202, got.StatusCode)
	require.NotContains(t, reopened.data, "old")
}

func mustFileStore(t *testing.T, path string) *FileStore {
	t.Helper()
	store, err := NewFileStore(path)
	require.NoError(t, err)
	return store
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, Fingerprint("mint", []byte("a")), Fingerprint("mint", []byte("a")))
	require.NotEqual(t, Fingerprint("mint", []byte("a")), Fingerprint("mint", []byte("b")))
	require.NotEqual(t, Fingerprint("mint", nil), Fingerprint("connect", nil))
}

func TestOpenPicksStore(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, filepath.Join(t.TempDir(), "idem.json"))
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, store)

	store, err = Open(ctx, "sqlite::memory:")
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())
}
