package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsync/internal/domains/post/model"
)

func appendChanges(f *changeFeed, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		f.append(model.Change{Seq: seq, ID: fmt.Sprintf("doc-%d", seq), Kind: model.ChangeInsert})
	}
}

func TestChangeFeedSince(t *testing.T) {
	f := newChangeFeed()
	appendChanges(f, 1, 5)

	batch := f.since(0, 2)
	require.Len(t, batch.Changes, 2)
	assert.Equal(t, uint64(2), batch.LastSeq)

	batch = f.since(batch.LastSeq, 0)
	require.Len(t, batch.Changes, 3)
	assert.Equal(t, uint64(3), batch.Changes[0].Seq)
	assert.Equal(t, uint64(5), batch.LastSeq)

	empty := f.since(5, 10)
	assert.NotNil(t, empty.Changes)
	assert.Empty(t, empty.Changes)
	assert.Equal(t, uint64(5), empty.LastSeq, "an empty page keeps the caller's cursor")
}

func TestCursorReadsBacklogThenBlocks(t *testing.T) {
	f := newChangeFeed()
	appendChanges(f, 1, cursorPageSize+3)

	c := f.cursor(0)
	for want := uint64(1); want <= cursorPageSize+3; want++ {
		ch, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, ch.Seq)
	}

	got := make(chan model.Change, 1)
	go func() {
		ch, err := c.Next(context.Background())
		if err == nil {
			got <- ch
		}
	}()

	select {
	case <-got:
		t.Fatal("cursor returned without a new change")
	case <-time.After(20 * time.Millisecond):
	}

	appendChanges(f, cursorPageSize+4, cursorPageSize+4)
	select {
	case ch := <-got:
		assert.Equal(t, uint64(cursorPageSize+4), ch.Seq)
	case <-time.After(time.Second):
		t.Fatal("cursor was not woken by append")
	}
}

func TestCursorsAreIndependent(t *testing.T) {
	f := newChangeFeed()
	appendChanges(f, 1, 3)

	a := f.cursor(0)
	b := f.cursor(2)

	ch, err := a.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ch.Seq)

	ch, err = b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ch.Seq)
}

func TestCursorStopsOnContextAndClose(t *testing.T) {
	f := newChangeFeed()
	c := f.cursor(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		_, err := c.Next(context.Background())
		done <- err
	}()
	f.close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, model.ErrStoreClosed)
	case <-time.After(time.Second):
		t.Fatal("cursor was not woken by close")
	}

	// Appends after close are dropped.
	appendChanges(f, 1, 1)
	assert.Zero(t, f.lastSeq())
}

func TestCursorClose(t *testing.T) {
	f := newChangeFeed()
	appendChanges(f, 1, 1)
	c := f.cursor(0)
	require.NoError(t, c.Close())

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrStoreClosed)
}

func TestStoreChangesCursorSeesWrites(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	cur := s.Changes(s.LastSeq())
	defer cur.Close()

	created, err := s.Put(ctx, newPost("Alpha", 0))
	require.NoError(t, err)
	_, err = s.Remove(ctx, created.ID, created.Rev)
	require.NoError(t, err)

	ch, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeInsert, ch.Kind)
	assert.Equal(t, model.OriginLocal, ch.Origin)
	assert.Equal(t, created.ID, ch.ID)

	ch, err = cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeDelete, ch.Kind)
	assert.True(t, ch.Doc.Deleted)
}
