package idempotency

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idem.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	want := sampleRecord(time.Hour)
	require.NoError(t, store.Save(ctx, "key", want))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want.ExpiresAt.UnixNano(), got.ExpiresAt.UnixNano())
}
