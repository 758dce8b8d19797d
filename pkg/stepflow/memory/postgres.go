package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createFlowMemoryTable = `
	CREATE TABLE IF NOT EXISTS flow_memory (
		flow_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		data JSONB NOT NULL
	)`

// PostgresStore persists flow memory in PostgreSQL, one row per flow.
type PostgresStore struct {
	db     *pgxpool.Pool
	owned  bool
	closed atomic.Bool
}

// NewPostgresStore wraps an existing pool and creates the flow_memory table
// if needed. Close does not close the pool.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createFlowMemoryTable); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// OpenPostgresStore connects using a postgres:// connection string.
// Close closes the pool.
func OpenPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, flowID string) (map[string]any, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var data []byte
	err := s.db.QueryRow(ctx, "SELECT data FROM flow_memory WHERE flow_id = $1", flowID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load memory for %s: %w", flowID, err)
	}
	return decode(data)
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, flowID string, data map[string]any) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	encoded, err := encode(flowID, data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO flow_memory (flow_id, version, saved_at, data)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (flow_id) DO UPDATE SET
			version = excluded.version,
			saved_at = excluded.saved_at,
			data = excluded.data`,
		flowID, Version, encoded)
	if err != nil {
		return fmt.Errorf("save memory for %s: %w", flowID, err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, flowID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(ctx, "DELETE FROM flow_memory WHERE flow_id = $1", flowID); err != nil {
		return fmt.Errorf("delete memory for %s: %w", flowID, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.owned {
		s.db.Close()
	}
	return nil
}
