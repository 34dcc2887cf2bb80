package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"postsync/internal/domains/post/model"
)

const cursorPageSize = 64

// changeFeed is an append-only log with a single producer (the store's
// write path) and any number of cursors, each holding its own position.
// Waiters are woken by closing the current update channel and replacing it.
// TODO: compact the log down to the latest change per document once it
// grows past a multiple of the live document count.
type changeFeed struct {
	mu     sync.RWMutex
	log    []model.Change
	last   uint64
	update chan struct{}
	closed bool
}

func newChangeFeed() *changeFeed {
	return &changeFeed{update: make(chan struct{})}
}

func (f *changeFeed) append(c model.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.log = append(f.log, c)
	f.last = c.Seq
	close(f.update)
	f.update = make(chan struct{})
}

func (f *changeFeed) lastSeq() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// page returns changes after since plus the channel that will be closed on
// the next append, read under one lock so no wakeup is missed.
func (f *changeFeed) page(since uint64, limit int) ([]model.Change, <-chan struct{}, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	start := sort.Search(len(f.log), func(i int) bool { return f.log[i].Seq > since })
	end := len(f.log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	var out []model.Change
	if start < end {
		out = append([]model.Change(nil), f.log[start:end]...)
	}
	return out, f.update, f.closed
}

func (f *changeFeed) since(since uint64, limit int) model.ChangeBatch {
	changes, _, _ := f.page(since, limit)
	batch := model.ChangeBatch{Changes: changes, LastSeq: since}
	if changes == nil {
		batch.Changes = []model.Change{}
	}
	if n := len(changes); n > 0 {
		batch.LastSeq = changes[n-1].Seq
	}
	return batch
}

func (f *changeFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.update)
	}
}

// =====================================================
// CURSOR
// =====================================================

// feedCursor is owned by a single consumer; Next must not be called
// concurrently on the same cursor.
type feedCursor struct {
	feed   *changeFeed
	pos    uint64
	buf    []model.Change
	closed atomic.Bool
}

func (f *changeFeed) cursor(since uint64) *feedCursor {
	return &feedCursor{feed: f, pos: since}
}

func (c *feedCursor) Next(ctx context.Context) (model.Change, error) {
	for {
		if c.closed.Load() {
			return model.Change{}, model.ErrStoreClosed
		}
		if len(c.buf) > 0 {
			ch := c.buf[0]
			c.buf = c.buf[1:]
			c.pos = ch.Seq
			return ch, nil
		}
		changes, wait, closed := c.feed.page(c.pos, cursorPageSize)
		if len(changes) > 0 {
			c.buf = changes
			continue
		}
		if closed {
			return model.Change{}, model.ErrStoreClosed
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return model.Change{}, ctx.Err()
		}
	}
}

func (c *feedCursor) Close() error {
	c.closed.Store(true)
	return nil
}
