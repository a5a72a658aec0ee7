// Package infra opens the storage backends selected by configuration.
package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dropwise/dispatch/internal/config"
	"github.com/dropwise/dispatch/internal/ledger"
)

// Backends holds the ledger store, the locker guarding it and the raw
// clients the HTTP layer uses for health checks, idempotency and rate limits.
type Backends struct {
	Store  ledger.Store
	Locker ledger.Locker
	DB     *pgxpool.Pool
	Cache  *redis.Client
}

// Open connects the backends named by cfg.StoreBackend. Redis, when
// configured, also serves as the distributed locker; otherwise locks are
// in-process and the service must run as a single instance.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.RedisURL != "" {
		cache, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.Cache = cache
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, store, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.DB = pool
		b.Store = store
	case config.BackendRedis:
		b.Store = ledger.NewRedisStore(b.Cache)
	default:
		b.Store = ledger.NewInMemory()
	}

	if b.Cache != nil {
		b.Locker = ledger.NewRedisLocker(b.Cache, cfg.LockTTL, cfg.LockWait)
	} else {
		b.Locker = ledger.NewMemoryLocker()
		if cfg.StoreBackend != config.BackendMemory {
			logger.Warn("using in-process locks; run a single instance or set REDIS_URL",
				slog.String("store_backend", cfg.StoreBackend))
		}
	}

	logger.Info("backends ready",
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("postgres", b.DB != nil),
		slog.Bool("redis", b.Cache != nil),
	)
	return b, nil
}

// Close releases every connected backend.
func (b *Backends) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
}
