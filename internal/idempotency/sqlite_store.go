package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps intent records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const createIntentTableSQLite = `
CREATE TABLE IF NOT EXISTS mint_intents (
    key TEXT PRIMARY KEY,
    intent TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    response BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens the database at dataSourceName and ensures the table
// exists. ":memory:" works for tests.
func NewSQLiteStore(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection, so an in-memory database is not split across the pool
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createIntentTableSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT intent, fingerprint, status_code, response, created_at, expires_at
FROM mint_intents
WHERE key = ?
`, key)

	var (
		rec                Record
		created, expiresAt int64
	)
	if err := row.Scan(&rec.Intent, &rec.Fingerprint, &rec.StatusCode, &rec.Response, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.ExpiresAt = time.Unix(0, expiresAt)

	if rec.Expired(time.Now()) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM mint_intents WHERE key = ?`, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, record Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO mint_intents (key, intent, fingerprint, status_code, response, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE
SET intent = excluded.intent,
    fingerprint = excluded.fingerprint,
    status_code = excluded.status_code,
    response = excluded.response,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at
`, key, record.Intent, record.Fingerprint, record.StatusCode, record.Response,
		record.CreatedAt.UnixNano(), record.ExpiresAt.UnixNano())
	return err
}
