package remote

import (
	"context"

	postModel "postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
	"postsync/internal/domains/replication/model"
)

// Peer is the replication contract of the other side. It mirrors the
// local store: a pageable change feed, a blocking watch, and an apply
// primitive that keeps last-writer-wins by revision.
type Peer interface {
	// Changes returns up to limit changes after since.
	Changes(ctx context.Context, since uint64, limit int) (postModel.ChangeBatch, error)

	// Apply commits docs with their own revisions on the peer.
	Apply(ctx context.Context, docs []*postModel.Post) (model.ApplyResponse, error)

	// Watch streams changes after since until ctx is done or the stream is closed.
	Watch(ctx context.Context, since uint64) (ChangeStream, error)
}

// ChangeStream is a single-consumer stream of peer changes. Epoch is the
// epoch of the peer store the stream's seqs belong to.
type ChangeStream interface {
	Next(ctx context.Context) (postModel.Change, error)
	Epoch() string
	Close() error
}

// ApplyDocs applies each document to store and reports per-document
// results. A rejected document does not stop the batch; store-level
// failures (closed store, persistence errors) do.
func ApplyDocs(ctx context.Context, store repository.DocumentStore, docs []*postModel.Post) (model.ApplyResponse, error) {
	resp := model.ApplyResponse{Results: make([]model.ApplyResult, 0, len(docs))}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return resp, err
		}

		res := model.ApplyResult{}
		if doc != nil {
			res.ID, res.Rev = doc.ID, doc.Rev
		}

		applied, err := store.ApplyRemote(ctx, doc)
		switch {
		case err == nil:
			res.Applied = applied
		case postModel.CodeOf(err) == postModel.ErrCodeValidation:
			res.Error = err.Error()
		default:
			return resp, err
		}
		resp.Results = append(resp.Results, res)
	}
	resp.LastSeq = store.LastSeq()
	resp.Epoch = store.Epoch()
	return resp, nil
}

// =====================================================
// LOCAL PEER
// =====================================================

// LocalPeer exposes an in-process document store as a Peer. The hub role
// serves one over HTTP; tests replicate between two stores with it.
type LocalPeer struct {
	store repository.DocumentStore
}

var _ Peer = (*LocalPeer)(nil)

func NewLocalPeer(store repository.DocumentStore) *LocalPeer {
	return &LocalPeer{store: store}
}

func (p *LocalPeer) Changes(ctx context.Context, since uint64, limit int) (postModel.ChangeBatch, error) {
	if err := ctx.Err(); err != nil {
		return postModel.ChangeBatch{}, err
	}
	return p.store.ChangesSince(since, limit), nil
}

func (p *LocalPeer) Apply(ctx context.Context, docs []*postModel.Post) (model.ApplyResponse, error) {
	return ApplyDocs(ctx, p.store, docs)
}

func (p *LocalPeer) Watch(ctx context.Context, since uint64) (ChangeStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localStream{ChangeCursor: p.store.Changes(since), epoch: p.store.Epoch()}, nil
}

type localStream struct {
	repository.ChangeCursor
	epoch string
}

func (s *localStream) Epoch() string {
	return s.epoch
}
