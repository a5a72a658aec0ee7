package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropwise/dispatch/internal/ledger"
)

// openPostgres connects a pool and prepares the ledger table.
func openPostgres(ctx context.Context, url string) (*pgxpool.Pool, *ledger.PostgresStore, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := ledger.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return pool, store, nil
}
