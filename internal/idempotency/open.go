package idempotency

import (
	"context"
	"fmt"
	"strings"
)

// Open picks a store from dsn: empty for memory, postgres:// or
// postgresql:// for Postgres, sqlite: for SQLite, anything else is a file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		store, err := NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		store, err := NewFileStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return store, nil
	}
}
