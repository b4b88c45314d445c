package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/rocketcart/pkg/database"
)

const (
	selectValueSQL = `SELECT value FROM kv_store WHERE key = $1`
	upsertValueSQL = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
)

// Store implements repository.KeyValueStore on the kv_store table.
type Store struct {
	db database.DBTX
}

// NewStore creates a new PostgreSQL-backed key-value store.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// Get returns the value stored under key. A missing row reports ok=false.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	ctx, end := database.TraceQuery(ctx, "GetValue", selectValueSQL)
	defer func() { end(err) }()

	err = s.db.QueryRow(ctx, selectValueSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select kv_store %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or overwrites the value stored under key.
func (s *Store) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, "SetValue", upsertValueSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, upsertValueSQL, key, value); err != nil {
		return fmt.Errorf("upsert kv_store %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
