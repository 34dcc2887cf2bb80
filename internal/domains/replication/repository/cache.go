package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postsync/internal/domains/replication/model"
	"postsync/pkg/cache"
)

const checkpointKeyPrefix = "replication:checkpoint:"

// cacheCheckpointStore keeps checkpoints in a pkg/cache.Cache (Redis in
// production). A replica id has a single owning process, so the
// load-merge-store sequence only needs a local lock.
type cacheCheckpointStore struct {
	mu    sync.Mutex
	cache cache.Cache
}

func NewCacheCheckpointStore(c cache.Cache) CheckpointStore {
	return &cacheCheckpointStore{cache: c}
}

func checkpointKey(replicaID string) string {
	return checkpointKeyPrefix + replicaID
}

func (s *cacheCheckpointStore) Load(ctx context.Context, replicaID string) (model.Checkpoint, error) {
	cp := model.Checkpoint{ReplicaID: replicaID}
	if _, err := s.cache.Get(ctx, checkpointKey(replicaID), &cp); err != nil {
		return model.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", replicaID, err)
	}
	return cp, nil
}

func (s *cacheCheckpointStore) Save(ctx context.Context, cp model.Checkpoint) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Load(ctx, cp.ReplicaID)
	if err != nil {
		return model.Checkpoint{}, err
	}
	return s.storeLocked(ctx, current, current.Advance(cp, time.Now().UTC()))
}

func (s *cacheCheckpointStore) Rebase(ctx context.Context, replicaID, localEpoch, remoteEpoch string) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Load(ctx, replicaID)
	if err != nil {
		return model.Checkpoint{}, err
	}
	return s.storeLocked(ctx, current, current.Rebase(localEpoch, remoteEpoch, time.Now().UTC()))
}

// storeLocked writes next unless nothing changed.
func (s *cacheCheckpointStore) storeLocked(ctx context.Context, current, next model.Checkpoint) (model.Checkpoint, error) {
	if next == current {
		return current, nil
	}
	if err := s.cache.Set(ctx, checkpointKey(next.ReplicaID), next, 0); err != nil {
		return model.Checkpoint{}, fmt.Errorf("save checkpoint %s: %w", next.ReplicaID, err)
	}
	return next, nil
}
