package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

type Config struct {
	Env             string         // dev, prod
	Version         string         // reported by health endpoints
	HTTPPort        string         // default 8080
	LogLevel        string         // logrus level name
	StoreBackend    string         // postgres or memory
	PostgresDSN     string         // required when StoreBackend is postgres
	LockBackend     string         // redis or local
	RedisURL        string         // redis:// or rediss:// URL, wins over the discrete fields
	RedisAddr       string         // host:port
	RedisUsername   string         // redis username
	RedisPassword   string         // redis password
	LockTTL         time.Duration  // how long a Redis slot lock lives
	LockWait        time.Duration  // how long a booking queues for a busy provider day
	ShutdownTimeout time.Duration  // graceful shutdown timeout
	WorkerInterval  time.Duration  // how often the no-show worker runs
	NoShowGrace     time.Duration  // how long after end time an unattended appointment becomes no-show
	Location        *time.Location // clinic time zone used to interpret dates and times
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             getEnv("APP_ENV", "dev"),
		Version:         getEnv("APP_VERSION", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		LockBackend:     strings.ToLower(getEnv("LOCK_BACKEND", LockBackendRedis)),
		LockTTL:         getDuration("LOCK_TTL", 5*time.Second),
		LockWait:        getDuration("LOCK_WAIT", 3*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		WorkerInterval:  getDuration("WORKER_INTERVAL", time.Minute),
		NoShowGrace:     getDuration("NO_SHOW_GRACE", 30*time.Minute),
	}

	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, errors.New("POSTGRES_DSN is required")
		}
	case StoreBackendMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.LockBackend {
	case LockBackendRedis, LockBackendLocal:
	default:
		return Config{}, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cfg.RedisURL = redisURL
		cfg.RedisAddr = opts.Addr
		cfg.RedisUsername = opts.Username
		cfg.RedisPassword = opts.Password
	} else {
		cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
		cfg.RedisUsername = getEnv("REDIS_USERNAME", "")
		cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}
