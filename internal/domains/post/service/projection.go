package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
)

// View is what the presentation layer renders.
type View struct {
	Items       []*model.Post    `json:"items"`
	Params      model.ViewParams `json:"params"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	Seq         uint64           `json:"seq"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// Projection holds the currently displayed, ordered list of posts.
//
// It is recomputed from QueryService.Combined whenever a mutation commits,
// a remote change is applied, or the parameters change. Refreshes are
// serialized; readers always see the last complete result.
type Projection struct {
	store repository.DocumentStore
	query QueryService

	refreshMu sync.Mutex

	mu   sync.RWMutex
	view View
}

var _ Refresher = (*Projection)(nil)

func NewProjection(store repository.DocumentStore, query QueryService) *Projection {
	return &Projection{
		store: store,
		query: query,
		view:  View{Items: []*model.Post{}},
	}
}

// Refresh re-runs the query with the current parameters.
func (p *Projection) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	p.mu.Lock()
	p.view.Loading = true
	params := p.view.Params
	p.mu.Unlock()

	// Read the seq before querying: the result reflects at least this point.
	seq := p.store.LastSeq()
	items, err := p.query.Combined(ctx, params)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.Loading = false
	if err != nil {
		p.view.Error = err.Error()
		return err
	}
	p.view.Items = items
	p.view.Error = ""
	p.view.Seq = seq
	p.view.RefreshedAt = time.Now().UTC()
	return nil
}

// SetParams replaces the active filter/sort and refreshes.
func (p *Projection) SetParams(ctx context.Context, params model.ViewParams) (View, error) {
	p.mu.Lock()
	p.view.Params = params
	p.mu.Unlock()

	err := p.Refresh(ctx)
	return p.Snapshot(), err
}

// Snapshot returns a copy of the current view.
func (p *Projection) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.view
	out.Items = make([]*model.Post, len(p.view.Items))
	for i, item := range p.view.Items {
		out.Items[i] = item.Clone()
	}
	return out
}

// Watch consumes the store's change feed with its own cursor and refreshes
// on changes not yet covered by the last refresh. The cursor starts at the
// seq the view already reflects so nothing committed in between is missed.
// It returns when ctx is done or the store closes.
func (p *Projection) Watch(ctx context.Context) error {
	p.mu.RLock()
	since := p.view.Seq
	p.mu.RUnlock()

	cursor := p.store.Changes(since)
	defer cursor.Close()

	for {
		change, err := cursor.Next(ctx)
		if err != nil {
			if errors.Is(err, model.ErrStoreClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		p.mu.RLock()
		covered := change.Seq <= p.view.Seq
		p.mu.RUnlock()
		if covered {
			continue
		}

		if err := p.Refresh(ctx); err != nil {
			log.Warn().Err(err).Uint64("seq", change.Seq).Msg("View refresh from change feed failed")
		}
	}
}
