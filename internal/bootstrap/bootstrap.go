package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medigo/appointment-service/internal/appointment"
	"github.com/medigo/appointment-service/internal/config"
	"github.com/medigo/appointment-service/internal/db"
	redisclient "github.com/medigo/appointment-service/internal/redis"
)

// Deps holds the wired backends shared by the binaries.
type Deps struct {
	Config  config.Config
	Log     *logrus.Logger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Repo    appointment.Repository
	Locker  redisclient.Locker
	Service *appointment.Service
}

// Open connects the configured store and lock backends and builds the
// appointment service on top of them.
func Open(ctx context.Context, cfg config.Config, log *logrus.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Log: log}

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection error: %w", err)
		}
		d.PgPool = pool
		log.Info("connected to Postgres")

		if err := db.Migrate(ctx, pool); err != nil {
			d.Close()
			return nil, err
		}
		d.Repo = appointment.NewPgRepository(pool)
	default:
		d.Repo = appointment.NewMemoryRepository()
		log.Warn("using in-memory store, data is lost on restart")
	}

	switch cfg.LockBackend {
	case config.LockBackendRedis:
		opts, err := redisclient.ClientOptions(cfg.RedisURL, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			d.Close()
			return nil, err
		}
		rdb, err := redisclient.NewRedisClient(ctx, opts)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		d.Redis = rdb
		d.Locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		log.Info("connected to Redis")
	default:
		d.Locker = redisclient.NewLocalSlotLocker(cfg.LockWait)
		log.Warn("using process-local slot locks, run a single instance only")
	}

	d.Service = appointment.NewService(d.Repo, d.Locker, cfg, log)
	return d, nil
}

func (d *Deps) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Log.WithError(err).Warn("error closing redis")
		}
	}
	if d.PgPool != nil {
		d.PgPool.Close()
	}
}
