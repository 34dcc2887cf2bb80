package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"postsync/internal/domains/post/model"
)

// memoryPersister keeps records in a map. Used for STORE_BACKEND=memory
// and in tests; reopening a Store on the same persister restores its state.
type memoryPersister struct {
	mu      sync.Mutex
	epoch   string
	records map[string]Record
}

func NewMemoryPersister() Persister {
	return &memoryPersister{
		epoch:   uuid.NewString(),
		records: make(map[string]Record),
	}
}

func (p *memoryPersister) Epoch(ctx context.Context) (string, error) {
	return p.epoch, nil
}

func (p *memoryPersister) Load(ctx context.Context) ([]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, 0, len(p.records))
	for _, rec := range p.records {
		rec.Doc = rec.Doc.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (p *memoryPersister) Save(ctx context.Context, rec Record, prevRev string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.records[rec.Doc.ID]
	switch {
	case !ok && prevRev != "":
		return model.NewConflictError(rec.Doc.ID, prevRev, "")
	case ok && stored.Doc.Rev != prevRev:
		return model.NewConflictError(rec.Doc.ID, prevRev, stored.Doc.Rev)
	}
	rec.Doc = rec.Doc.Clone()
	p.records[rec.Doc.ID] = rec
	return nil
}

func (p *memoryPersister) Close() error {
	return nil
}
