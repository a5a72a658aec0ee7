package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS kv_records (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists records in a single jsonb key/value table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return unavailable("migrate", "kv_records", err)
	}
	return nil
}

// Get fetches a record by key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_records WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(key)
		}
		return nil, unavailable("get", key, err)
	}
	return value, nil
}

// Set upserts a record.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Exec(ctx, `INSERT INTO kv_records (key, value, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value)
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Scan returns every record whose key starts with prefix.
func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM kv_records WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, unavailable("scan", prefix, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	return out, nil
}
