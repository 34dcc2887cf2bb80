package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REPLICATION_REPLICA_ID", "replica-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, RoleReplica, cfg.App.Role)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "replica-test", cfg.Replication.ReplicaID)
	assert.Equal(t, "online", cfg.Replication.InitialMode)
	assert.Equal(t, 100, cfg.Replication.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Replication.RetryMin)
	assert.Equal(t, 30*time.Second, cfg.Replication.RetryMax)
	assert.False(t, cfg.Replicates(), "no remote configured")
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ROLE", "Replica")
	t.Setenv("REPLICATION_REPLICA_ID", "r1")
	t.Setenv("REPLICATION_REMOTE_URL", "http://hub:8080")
	t.Setenv("REPLICATION_INITIAL_MODE", "OFFLINE")
	t.Setenv("REPLICATION_RETRY_MIN", "50ms")
	t.Setenv("REPLICATION_RETRY_MAX", "2s")
	t.Setenv("REPLICATION_CHECKPOINT_BACKEND", "redis")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("WORKER_ENABLED", "true")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Replicates())
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, "offline", cfg.Replication.InitialMode)
	assert.Equal(t, 50*time.Millisecond, cfg.Replication.RetryMin)
	assert.Equal(t, 2*time.Second, cfg.Replication.RetryMax)
	assert.Zero(t, cfg.Redis.DB, "unparsable values fall back to the default")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown role", env: map[string]string{"APP_ROLE": "mirror"}},
		{name: "unknown store backend", env: map[string]string{"STORE_BACKEND": "sqlite"}},
		{name: "unknown mode", env: map[string]string{"REPLICATION_INITIAL_MODE": "sometimes"}},
		{name: "batch too large", env: map[string]string{"REPLICATION_BATCH_SIZE": "5000"}},
		{name: "retry max below min", env: map[string]string{"REPLICATION_RETRY_MIN": "2s", "REPLICATION_RETRY_MAX": "1s"}},
		{name: "default secret in production", env: map[string]string{"APP_ENV": "production"}},
		{name: "memory store with redis checkpoints", env: map[string]string{"STORE_BACKEND": "memory", "REPLICATION_CHECKPOINT_BACKEND": "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPLICATION_REPLICA_ID", "r1")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestHubDoesNotReplicate(t *testing.T) {
	t.Setenv("APP_ROLE", RoleHub)
	t.Setenv("REPLICATION_REPLICA_ID", "hub-1")
	t.Setenv("REPLICATION_REMOTE_URL", "http://elsewhere:8080")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Replicates())
}
