package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const defaultPeerSecret = "change-me-peer-secret"

// Roles
const (
	RoleReplica = "replica" // local store, replicates with REPLICATION_REMOTE_URL
	RoleHub     = "hub"     // serves its store to replicas
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the whole application configuration, read from the environment.
type Config struct {
	App         AppConfig
	Redis       RedisConfig
	Store       StoreConfig
	Replication ReplicationConfig
	Peer        PeerConfig
	Worker      WorkerConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	Role        string
	LogLevel    string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type StoreConfig struct {
	Backend string // memory, postgres
}

type ReplicationConfig struct {
	RemoteURL         string
	ReplicaID         string
	InitialMode       string
	BatchSize         int
	RetryMin          time.Duration
	RetryMax          time.Duration
	RequestTimeout    time.Duration
	CheckpointBackend string // memory, redis
	SyncInterval      time.Duration
}

type PeerConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type WorkerConfig struct {
	Enabled     bool
	Concurrency int
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "postsync"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Role:        strings.ToLower(getEnv("APP_ROLE", RoleReplica)),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		},
		Replication: ReplicationConfig{
			RemoteURL:         getEnv("REPLICATION_REMOTE_URL", ""),
			ReplicaID:         getEnv("REPLICATION_REPLICA_ID", getEnv("HOSTNAME", hostname)),
			InitialMode:       strings.ToLower(getEnv("REPLICATION_INITIAL_MODE", "online")),
			BatchSize:         getEnvInt("REPLICATION_BATCH_SIZE", 100),
			RetryMin:          getEnvDuration("REPLICATION_RETRY_MIN", 500*time.Millisecond),
			RetryMax:          getEnvDuration("REPLICATION_RETRY_MAX", 30*time.Second),
			RequestTimeout:    getEnvDuration("REPLICATION_REQUEST_TIMEOUT", 15*time.Second),
			CheckpointBackend: strings.ToLower(getEnv("REPLICATION_CHECKPOINT_BACKEND", BackendMemory)),
			SyncInterval:      getEnvDuration("REPLICATION_SYNC_INTERVAL", 0),
		},
		Peer: PeerConfig{
			Secret:   getEnv("PEER_SECRET", defaultPeerSecret),
			TokenTTL: getEnvDuration("PEER_TOKEN_TTL", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Enabled:     getEnvBool("WORKER_ENABLED", false),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Replicates reports whether this process runs a replication manager.
func (c *Config) Replicates() bool {
	return c.App.Role == RoleReplica && c.Replication.RemoteURL != ""
}

// UsesRedis reports whether any component needs the Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Worker.Enabled || c.Replication.CheckpointBackend == BackendRedis
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(&c.App,
		validation.Field(&c.App.Port, validation.Required),
		validation.Field(&c.App.Role, validation.In(RoleReplica, RoleHub)),
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Backend, validation.In(BackendMemory, BackendPostgres)),
	); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	r := &c.Replication
	if err := validation.ValidateStruct(r,
		validation.Field(&r.ReplicaID, validation.Required),
		validation.Field(&r.InitialMode, validation.In("online", "offline")),
		validation.Field(&r.BatchSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&r.RetryMin, validation.Min(time.Millisecond)),
		validation.Field(&r.RetryMax, validation.Min(r.RetryMin)),
		validation.Field(&r.CheckpointBackend, validation.In(BackendMemory, BackendRedis)),
		validation.Field(&r.SyncInterval, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("replication: %w", err)
	}

	// A memory store starts over on every restart while Redis keeps the
	// checkpoints, so the pair cannot describe the same data set.
	if c.Store.Backend == BackendMemory && r.CheckpointBackend == BackendRedis {
		return fmt.Errorf("replication: REPLICATION_CHECKPOINT_BACKEND=redis requires STORE_BACKEND=postgres")
	}

	if err := validation.ValidateStruct(&c.Worker,
		validation.Field(&c.Worker.Concurrency, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	// Production must not run with the default peer secret
	if c.App.Environment == "production" && c.Peer.Secret == defaultPeerSecret {
		return fmt.Errorf("PEER_SECRET must be set in production")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
