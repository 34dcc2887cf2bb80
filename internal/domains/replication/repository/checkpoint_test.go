package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsync/internal/domains/replication/model"
)

// mapCache is a pkg/cache.Cache that round-trips values through JSON like
// the Redis implementation does.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return false, errors.New("connection refused")
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	c.sets++
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func checkpointStores(t *testing.T) map[string]CheckpointStore {
	t.Helper()
	return map[string]CheckpointStore{
		"memory": NewMemoryCheckpointStore(),
		"cache":  NewCacheCheckpointStore(newMapCache()),
	}
}

func TestCheckpointStoreOnlyMovesForward(t *testing.T) {
	for name, store := range checkpointStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cp, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, model.Checkpoint{ReplicaID: "r1"}, cp)

			cp, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PullSeq: 5})
			require.NoError(t, err)
			assert.Equal(t, uint64(5), cp.PullSeq)
			assert.False(t, cp.UpdatedAt.IsZero())

			// Push progress does not reset pull progress.
			cp, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PushSeq: 3})
			require.NoError(t, err)
			assert.Equal(t, uint64(5), cp.PullSeq)
			assert.Equal(t, uint64(3), cp.PushSeq)

			cp, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PullSeq: 2, PushSeq: 1})
			require.NoError(t, err)
			assert.Equal(t, uint64(5), cp.PullSeq)
			assert.Equal(t, uint64(3), cp.PushSeq)

			loaded, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, cp.PullSeq, loaded.PullSeq)
			assert.Equal(t, cp.PushSeq, loaded.PushSeq)

			other, err := store.Load(ctx, "r2")
			require.NoError(t, err)
			assert.Zero(t, other.PullSeq)
		})
	}
}

func TestCacheCheckpointStoreSkipsNoopWrites(t *testing.T) {
	ctx := context.Background()
	c := newMapCache()
	store := NewCacheCheckpointStore(c)

	_, err := store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PullSeq: 4})
	require.NoError(t, err)
	_, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PullSeq: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, c.sets)

	assert.True(t, c.has(checkpointKey("r1")))
}

func TestCacheCheckpointStoreLoadError(t *testing.T) {
	ctx := context.Background()
	c := newMapCache()
	c.failGet = true
	store := NewCacheCheckpointStore(c)

	_, err := store.Load(ctx, "r1")
	assert.Error(t, err)
	_, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", PullSeq: 1})
	assert.Error(t, err)
	assert.Zero(t, c.sets)
}

func TestCheckpointAdvance(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := model.Checkpoint{ReplicaID: "r1", LocalEpoch: "l1", RemoteEpoch: "h1", PullSeq: 2, PushSeq: 2}

	same := cp.Advance(model.Checkpoint{PullSeq: 1, PushSeq: 2}, now)
	assert.Equal(t, cp, same, "nothing moved, UpdatedAt untouched")

	moved := cp.Advance(model.Checkpoint{LocalEpoch: "l1", RemoteEpoch: "h1", PullSeq: 3}, now)
	assert.Equal(t, uint64(3), moved.PullSeq)
	assert.Equal(t, uint64(2), moved.PushSeq)
	assert.Equal(t, now, moved.UpdatedAt)

	stale := cp.Advance(model.Checkpoint{LocalEpoch: "l1", RemoteEpoch: "h0", PullSeq: 9, PushSeq: 9}, now)
	assert.Equal(t, cp, stale, "progress against another remote store is ignored")
}

func TestCheckpointRebase(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := model.Checkpoint{ReplicaID: "r1", LocalEpoch: "l1", RemoteEpoch: "h1", PullSeq: 4, PushSeq: 6}

	assert.Equal(t, cp, cp.Rebase("l1", "h1", now), "same epochs keep the checkpoint")

	local := cp.Rebase("l2", "h1", now)
	assert.Equal(t, "l2", local.LocalEpoch)
	assert.Zero(t, local.PullSeq)
	assert.Zero(t, local.PushSeq)

	remote := cp.Rebase("l1", "h2", now)
	assert.Equal(t, "h2", remote.RemoteEpoch)
	assert.Zero(t, remote.PullSeq)
	assert.Zero(t, remote.PushSeq)
	assert.Equal(t, now, remote.UpdatedAt)

	learned := model.Checkpoint{ReplicaID: "r1", LocalEpoch: "l1"}.Rebase("l1", "h1", now)
	assert.Equal(t, "h1", learned.RemoteEpoch)

	untagged := model.Checkpoint{ReplicaID: "r1", PullSeq: 3, PushSeq: 3}.Rebase("l1", "", now)
	assert.Zero(t, untagged.PullSeq, "seqs without any epoch cannot be trusted")
	assert.Zero(t, untagged.PushSeq)
}

func TestCheckpointStoreRebase(t *testing.T) {
	for name, store := range checkpointStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cp, err := store.Rebase(ctx, "r1", "l1", "h1")
			require.NoError(t, err)
			assert.Equal(t, "l1", cp.LocalEpoch)
			assert.Equal(t, "h1", cp.RemoteEpoch)

			_, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", LocalEpoch: "l1", RemoteEpoch: "h1", PullSeq: 7, PushSeq: 5})
			require.NoError(t, err)

			// The hub was rebuilt: its seqs start over.
			cp, err = store.Rebase(ctx, "r1", "l1", "h2")
			require.NoError(t, err)
			assert.Zero(t, cp.PullSeq)
			assert.Zero(t, cp.PushSeq)

			// A loop still holding the old epochs cannot move it.
			cp, err = store.Save(ctx, model.Checkpoint{ReplicaID: "r1", LocalEpoch: "l1", RemoteEpoch: "h1", PullSeq: 8})
			require.NoError(t, err)
			assert.Zero(t, cp.PullSeq)

			loaded, err := store.Load(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "h2", loaded.RemoteEpoch)
			assert.Zero(t, loaded.PullSeq)
		})
	}
}
