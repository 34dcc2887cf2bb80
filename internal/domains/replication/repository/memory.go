package repository

import (
	"context"
	"sync"
	"time"

	"postsync/internal/domains/replication/model"
)

type memoryCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]model.Checkpoint
}

func NewMemoryCheckpointStore() CheckpointStore {
	return &memoryCheckpointStore{checkpoints: make(map[string]model.Checkpoint)}
}

func (s *memoryCheckpointStore) Load(ctx context.Context, replicaID string) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[replicaID]
	if !ok {
		return model.Checkpoint{ReplicaID: replicaID}, nil
	}
	return cp, nil
}

func (s *memoryCheckpointStore) Save(ctx context.Context, cp model.Checkpoint) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.checkpoints[cp.ReplicaID]
	if !ok {
		current = model.Checkpoint{ReplicaID: cp.ReplicaID}
	}
	next := current.Advance(cp, time.Now().UTC())
	s.checkpoints[cp.ReplicaID] = next
	return next, nil
}

func (s *memoryCheckpointStore) Rebase(ctx context.Context, replicaID, localEpoch, remoteEpoch string) (model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.checkpoints[replicaID]
	if !ok {
		current = model.Checkpoint{ReplicaID: replicaID}
	}
	next := current.Rebase(localEpoch, remoteEpoch, time.Now().UTC())
	s.checkpoints[replicaID] = next
	return next, nil
}
