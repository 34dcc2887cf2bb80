package repository

import (
	"context"

	"postsync/internal/domains/post/model"
)

// =====================================================
// DOCUMENT STORE INTERFACE
// =====================================================

// DocumentStore is the local replica. All writes are serialized by the
// implementation; callers never lock around it.
type DocumentStore interface {
	// ========================================
	// CRUD Operations
	// ========================================

	// Get returns a live document or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Post, error)

	// Put inserts when the id is unknown (assigning one if empty), otherwise
	// requires doc.Rev to match the current revision. Returns the committed copy.
	Put(ctx context.Context, doc *model.Post) (*model.Post, error)

	// Remove deletes the document at rev and returns the tombstone revision.
	Remove(ctx context.Context, id, rev string) (string, error)

	// ListAll returns every live document in insertion order.
	ListAll(ctx context.Context) ([]*model.Post, error)

	// ========================================
	// INDEX SCANS
	// ========================================

	// ScanByName returns documents whose name contains substr, case-insensitively,
	// ordered by name.
	ScanByName(ctx context.Context, substr string) ([]*model.Post, error)

	// ScanByScore returns documents by descending score, ties in insertion
	// order. A negative limit returns all documents.
	ScanByScore(ctx context.Context, limit int) ([]*model.Post, error)

	// ========================================
	// REPLICATION
	// ========================================

	// ApplyRemote commits doc with its own revision when it supersedes the
	// local one. Reports whether anything was written.
	ApplyRemote(ctx context.Context, doc *model.Post) (bool, error)

	// Changes opens a blocking cursor positioned after since.
	Changes(since uint64) ChangeCursor

	// ChangesSince returns up to limit changes after since without blocking.
	// limit <= 0 means no limit.
	ChangesSince(since uint64, limit int) model.ChangeBatch

	// LastSeq is the sequence number of the latest committed change.
	LastSeq() uint64

	// Epoch identifies the persisted data set the seqs count within.
	Epoch() string

	Close() error
}

// ChangeCursor reads the change feed from its own position.
type ChangeCursor interface {
	// Next blocks until a change is available, ctx is done or the store closes.
	Next(ctx context.Context) (model.Change, error)
	Close() error
}

// =====================================================
// PERSISTENCE
// =====================================================

// Record is one document as persisted, with its feed bookkeeping.
type Record struct {
	Doc    *model.Post
	Seq    uint64
	Order  uint64
	Origin model.Origin
}

// Persister is the durable backend behind the store. Save must be atomic
// per record and reject the write when the stored revision is not prevRev
// ("" meaning the id must not exist yet). Epoch returns an id created
// together with the data set and stable for as long as it is kept.
type Persister interface {
	Epoch(ctx context.Context) (string, error)
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, rec Record, prevRev string) error
	Close() error
}
