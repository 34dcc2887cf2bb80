package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"postsync/internal/infrastructure/database"
)

// The store serializes every write and reads the table once at startup,
// so the pool only needs room for the writer, the health check and a
// migration.
const (
	defaultDBMaxConns       = 4
	defaultDBMinConns       = 1
	defaultDBConnLifetime   = 30 * time.Minute
	defaultDBConnIdleTime   = 10 * time.Minute
	defaultDBHealthCheck    = 30 * time.Second
	defaultDBConnectRetries = 10
	defaultDBRetryDelay     = 500 * time.Millisecond
	defaultDBConnectTimeout = 5 * time.Second
)

// envReader parses DB_* variables strictly and keeps every failure, unlike
// getEnvInt which falls back silently: a typo in a pool setting should stop
// startup.
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

// LoadDatabaseConfig reads the Postgres settings used by STORE_BACKEND=postgres.
// DATABASE_URL takes precedence over the DB_HOST/DB_PORT/... fields.
func LoadDatabaseConfig() (*database.DBConfig, error) {
	r := &envReader{}
	cfg := &database.DBConfig{
		URL:               getEnv("DATABASE_URL", ""),
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              r.int("DB_PORT", 5432),
		Username:          getEnv("DB_USER", "postsync"),
		Password:          getEnv("DB_PASSWORD", "secret"),
		DBName:            getEnv("DB_NAME", "postsync"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(r.int("DB_MAX_CONNECTIONS", defaultDBMaxConns)),
		MinConns:          int32(r.int("DB_MIN_CONNECTIONS", defaultDBMinConns)),
		MaxConnLifetime:   r.duration("DB_MAX_CONN_LIFETIME", defaultDBConnLifetime),
		MaxConnIdleTime:   r.duration("DB_MAX_CONN_IDLE_TIME", defaultDBConnIdleTime),
		HealthCheckPeriod: r.duration("DB_HEALTH_CHECK_PERIOD", defaultDBHealthCheck),
		MaxRetries:        r.int("DB_MAX_RETRIES", defaultDBConnectRetries),
		RetryDelay:        r.duration("DB_RETRY_DELAY", defaultDBRetryDelay),
		ConnectTimeout:    r.duration("DB_CONNECT_TIMEOUT", defaultDBConnectTimeout),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}

	switch {
	case cfg.MaxConns < 1:
		return nil, fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	case cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns:
		return nil, fmt.Errorf("DB_MIN_CONNECTIONS must be between 0 and DB_MAX_CONNECTIONS")
	case cfg.MaxRetries < 1:
		return nil, fmt.Errorf("DB_MAX_RETRIES must be at least 1")
	}
	return cfg, nil
}
