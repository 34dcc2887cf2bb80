package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"postsync/internal/domains/post/model"
)

// =====================================================
// STORE IMPLEMENTATION
// =====================================================

type entry struct {
	doc    *model.Post
	seq    uint64
	order  uint64
	origin model.Origin
}

func (e *entry) live() bool {
	return e != nil && !e.doc.Deleted
}

// Store is the in-process document store. Documents live in memory with
// their indexes; every write goes through the Persister first, so a write
// either reaches both or neither.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]*entry
	byName    nameIndex
	byScore   scoreIndex
	feed      *changeFeed
	persister Persister
	epoch     string
	nextOrder uint64
	closed    bool
}

var _ DocumentStore = (*Store)(nil)

// Open loads every record from the persister and builds the indexes and
// the change feed before returning.
func Open(ctx context.Context, persister Persister) (*Store, error) {
	epoch, err := persister.Epoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store epoch: %w", err)
	}
	records, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	s := &Store{
		docs:      make(map[string]*entry, len(records)),
		feed:      newChangeFeed(),
		persister: persister,
		epoch:     epoch,
	}
	for _, rec := range records {
		e := &entry{doc: rec.Doc.Clone(), seq: rec.Seq, order: rec.Order, origin: rec.Origin}
		s.docs[e.doc.ID] = e
		if e.live() {
			s.indexLocked(e)
		}
		if rec.Order > s.nextOrder {
			s.nextOrder = rec.Order
		}
		s.feed.append(changeFor(e, kindOf(e.doc, false)))
	}

	log.Info().
		Str("epoch", epoch).
		Int("documents", len(records)).
		Uint64("last_seq", s.feed.lastSeq()).
		Msg("Document store opened")
	return s, nil
}

// =====================================================
// READS
// =====================================================

func (s *Store) Get(ctx context.Context, id string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrStoreClosed
	}
	e, ok := s.docs[id]
	if !ok || !e.live() {
		return nil, model.NewNotFoundError(id)
	}
	return e.doc.Clone(), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrStoreClosed
	}
	live := make([]*entry, 0, len(s.docs))
	for _, e := range s.docs {
		if e.live() {
			live = append(live, e)
		}
	}
	slices.SortFunc(live, func(a, b *entry) int {
		switch {
		case a.order < b.order:
			return -1
		case a.order > b.order:
			return 1
		}
		return 0
	})
	out := make([]*model.Post, 0, len(live))
	for _, e := range live {
		out = append(out, e.doc.Clone())
	}
	return out, nil
}

func (s *Store) ScanByName(ctx context.Context, substr string) ([]*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrStoreClosed
	}
	return s.resolveLocked(s.byName.contains(substr)), nil
}

func (s *Store) ScanByScore(ctx context.Context, limit int) ([]*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, model.ErrStoreClosed
	}
	return s.resolveLocked(s.byScore.top(limit)), nil
}

func (s *Store) resolveLocked(ids []string) []*model.Post {
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if e := s.docs[id]; e.live() {
			out = append(out, e.doc.Clone())
		}
	}
	return out
}

// =====================================================
// WRITES
// =====================================================

func (s *Store) Put(ctx context.Context, doc *model.Post) (*model.Post, error) {
	if doc == nil {
		return nil, model.NewValidationError(fmt.Errorf("document is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, model.ErrStoreClosed
	}

	next := doc.Clone()
	next.Deleted = false
	if next.ID == "" {
		next.ID = uuid.NewString()
	}

	current := s.docs[next.ID]
	var prevRev string
	var rev model.Revision
	switch {
	case current == nil:
		rev = model.NewRevision()
	case current.doc.Deleted:
		// Re-inserting over a tombstone continues its revision history so
		// the new document supersedes the deletion on every replica.
		prevRev = current.doc.Rev
		r, err := model.ParseRevision(prevRev)
		if err != nil {
			return nil, fmt.Errorf("stored revision of %s: %w", next.ID, err)
		}
		rev = r.Next()
	default:
		if next.Rev != current.doc.Rev {
			return nil, model.NewConflictError(next.ID, next.Rev, current.doc.Rev)
		}
		prevRev = current.doc.Rev
		r, err := model.ParseRevision(prevRev)
		if err != nil {
			return nil, fmt.Errorf("stored revision of %s: %w", next.ID, err)
		}
		rev = r.Next()
	}
	next.Rev = rev.String()

	if err := s.commitLocked(ctx, next, prevRev, model.OriginLocal); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *Store) Remove(ctx context.Context, id, rev string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", model.ErrStoreClosed
	}

	current := s.docs[id]
	if !current.live() {
		return "", model.NewNotFoundError(id)
	}
	if rev != current.doc.Rev {
		return "", model.NewConflictError(id, rev, current.doc.Rev)
	}
	r, err := model.ParseRevision(current.doc.Rev)
	if err != nil {
		return "", fmt.Errorf("stored revision of %s: %w", id, err)
	}
	tomb := current.doc.Tombstone(r.Next().String())
	if err := s.commitLocked(ctx, tomb, current.doc.Rev, model.OriginLocal); err != nil {
		return "", err
	}
	return tomb.Rev, nil
}

func (s *Store) ApplyRemote(ctx context.Context, doc *model.Post) (bool, error) {
	if err := validateReplicated(doc); err != nil {
		return false, model.NewValidationError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, model.ErrStoreClosed
	}

	var prevRev string
	if current := s.docs[doc.ID]; current != nil {
		prevRev = current.doc.Rev
	}
	newer, err := model.IsNewerRevision(doc.Rev, prevRev)
	if err != nil {
		return false, model.NewValidationError(err)
	}
	if !newer {
		return false, nil
	}

	next := doc.Clone()
	if next.Deleted {
		next = next.Tombstone(next.Rev)
	}
	if err := s.commitLocked(ctx, next, prevRev, model.OriginRemote); err != nil {
		return false, err
	}
	return true, nil
}

func validateReplicated(doc *model.Post) error {
	switch {
	case doc == nil:
		return fmt.Errorf("document is required")
	case doc.ID == "":
		return fmt.Errorf("id is required")
	case doc.Rev == "":
		return fmt.Errorf("rev is required")
	case doc.Deleted:
		return nil
	case doc.Name == "" || doc.Content == "":
		return fmt.Errorf("document %s has empty name or content", doc.ID)
	case doc.Score < 0:
		return fmt.Errorf("document %s has negative score", doc.ID)
	}
	return nil
}

// commitLocked persists next, then updates memory, indexes and the feed.
// Caller holds s.mu for writing.
func (s *Store) commitLocked(ctx context.Context, next *model.Post, prevRev string, origin model.Origin) error {
	current := s.docs[next.ID]
	wasLive := current.live()

	order := s.nextOrder + 1
	if wasLive && !next.Deleted {
		order = current.order
	}

	e := &entry{
		doc:    next.Clone(),
		seq:    s.feed.lastSeq() + 1,
		order:  order,
		origin: origin,
	}
	rec := Record{Doc: e.doc, Seq: e.seq, Order: e.order, Origin: origin}
	if err := s.persister.Save(ctx, rec, prevRev); err != nil {
		return fmt.Errorf("failed to persist %s: %w", next.ID, err)
	}

	if order > s.nextOrder {
		s.nextOrder = order
	}
	if wasLive {
		s.unindexLocked(current)
	}
	s.docs[next.ID] = e
	if e.live() {
		s.indexLocked(e)
	}
	s.feed.append(changeFor(e, kindOf(e.doc, wasLive)))
	return nil
}

func (s *Store) indexLocked(e *entry) {
	s.byName.insert(e.doc.Name, e.order, e.doc.ID)
	s.byScore.insert(e.doc.Score, e.order, e.doc.ID)
}

func (s *Store) unindexLocked(e *entry) {
	s.byName.remove(e.doc.Name, e.order)
	s.byScore.remove(e.doc.Score, e.order)
}

func kindOf(doc *model.Post, wasLive bool) model.ChangeKind {
	switch {
	case doc.Deleted:
		return model.ChangeDelete
	case wasLive:
		return model.ChangeUpdate
	}
	return model.ChangeInsert
}

func changeFor(e *entry, kind model.ChangeKind) model.Change {
	return model.Change{
		Seq:    e.seq,
		ID:     e.doc.ID,
		Rev:    e.doc.Rev,
		Kind:   kind,
		Origin: e.origin,
		Doc:    e.doc.Clone(),
	}
}

// =====================================================
// CHANGE FEED
// =====================================================

func (s *Store) Changes(since uint64) ChangeCursor {
	return s.feed.cursor(since)
}

func (s *Store) ChangesSince(since uint64, limit int) model.ChangeBatch {
	batch := s.feed.since(since, limit)
	batch.Epoch = s.epoch
	return batch
}

func (s *Store) LastSeq() uint64 {
	return s.feed.lastSeq()
}

func (s *Store) Epoch() string {
	return s.epoch
}

// Close stops accepting operations, wakes every cursor and closes the persister.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.feed.close()
	return s.persister.Close()
}
