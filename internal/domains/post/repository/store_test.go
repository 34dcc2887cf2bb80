package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsync/internal/domains/post/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), NewMemoryPersister())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPost(name string, score int) *model.Post {
	return &model.Post{
		Name:       name,
		Content:    "content of " + name,
		Attributes: []string{},
		Score:      score,
		Comments:   []model.Comment{},
		CreatedAt:  time.Now().UTC(),
	}
}

func names(posts []*model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Name)
	}
	return out
}

func TestStorePutAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.Put(ctx, newPost("Alpha", 0))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "1", created.Rev[:1])

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Returned copies are detached from the store.
	got.Name = "changed"
	again, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", again.Name)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStorePutRequiresCurrentRevision(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.Put(ctx, newPost("Alpha", 0))
	require.NoError(t, err)

	created.Score = 1
	updated, err := s.Put(ctx, created)
	require.NoError(t, err)
	assert.NotEqual(t, created.Rev, updated.Rev)

	// Writing again at the old revision is a conflict.
	_, err = s.Put(ctx, created)
	require.ErrorIs(t, err, model.ErrConflict)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, updated.Rev, conflict.CurrentRevision)
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.Put(ctx, newPost("Alpha", 5))
	require.NoError(t, err)

	_, err = s.Remove(ctx, created.ID, "1-stale")
	require.ErrorIs(t, err, model.ErrConflict)

	tombRev, err := s.Remove(ctx, created.ID, created.Rev)
	require.NoError(t, err)
	assert.NotEqual(t, created.Rev, tombRev)

	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	top, err := s.ScanByScore(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = s.Remove(ctx, created.ID, tombRev)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoreScanByName(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, n := range []string{"Beta", "alphabet", "Alpha", "Gamma"} {
		_, err := s.Put(ctx, newPost(n, 0))
		require.NoError(t, err)
	}

	found, err := s.ScanByName(ctx, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "alphabet"}, names(found))

	found, err = s.ScanByName(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, found, 4)

	found, err = s.ScanByName(ctx, "zeta")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStoreScanByScoreTracksUpdates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	a, err := s.Put(ctx, newPost("a", 3))
	require.NoError(t, err)
	_, err = s.Put(ctx, newPost("b", 1))
	require.NoError(t, err)
	_, err = s.Put(ctx, newPost("c", 5))
	require.NoError(t, err)

	top, err := s.ScanByScore(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, names(top))

	a.Score = 10
	_, err = s.Put(ctx, a)
	require.NoError(t, err)

	top, err = s.ScanByScore(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, names(top))

	top, err = s.ScanByScore(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestStoreScoreTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, n := range []string{"first", "second", "third"} {
		_, err := s.Put(ctx, newPost(n, 7))
		require.NoError(t, err)
	}

	top, err := s.ScanByScore(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, names(top))
}

func TestStoreApplyRemote(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	doc := newPost("Remote", 2)
	doc.ID = "r1"
	doc.Rev = "2-b"

	applied, err := s.ApplyRemote(ctx, doc)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "2-b", got.Rev, "remote revisions are kept as-is")

	// Same revision again is a no-op.
	applied, err = s.ApplyRemote(ctx, doc)
	require.NoError(t, err)
	assert.False(t, applied)

	// Older revisions lose.
	older := doc.Clone()
	older.Rev = "1-z"
	older.Name = "Older"
	applied, err = s.ApplyRemote(ctx, older)
	require.NoError(t, err)
	assert.False(t, applied)

	// A newer tombstone deletes.
	tomb := doc.Tombstone("3-a")
	applied, err = s.ApplyRemote(ctx, tomb)
	require.NoError(t, err)
	assert.True(t, applied)
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	last := s.ChangesSince(0, 0)
	require.Len(t, last.Changes, 2)
	assert.Equal(t, model.OriginRemote, last.Changes[0].Origin)
	assert.Equal(t, model.ChangeInsert, last.Changes[0].Kind)
	assert.Equal(t, model.ChangeDelete, last.Changes[1].Kind)
}

func TestStoreApplyRemoteRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	tests := []struct {
		name string
		doc  *model.Post
	}{
		{name: "nil", doc: nil},
		{name: "missing id", doc: &model.Post{Rev: "1-a", Name: "n", Content: "c"}},
		{name: "missing rev", doc: &model.Post{ID: "x", Name: "n", Content: "c"}},
		{name: "bad rev", doc: &model.Post{ID: "x", Rev: "nope", Name: "n", Content: "c"}},
		{name: "empty name", doc: &model.Post{ID: "x", Rev: "1-a", Content: "c"}},
		{name: "negative score", doc: &model.Post{ID: "x", Rev: "1-a", Name: "n", Content: "c", Score: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, err := s.ApplyRemote(ctx, tt.doc)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.False(t, applied)
		})
	}
	assert.Zero(t, s.LastSeq())
}

func TestStorePutOverTombstoneSupersedesIt(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.Put(ctx, newPost("Alpha", 0))
	require.NoError(t, err)
	tombRev, err := s.Remove(ctx, created.ID, created.Rev)
	require.NoError(t, err)

	again := newPost("Alpha again", 0)
	again.ID = created.ID
	revived, err := s.Put(ctx, again)
	require.NoError(t, err)

	newer, err := model.IsNewerRevision(revived.Rev, tombRev)
	require.NoError(t, err)
	assert.True(t, newer)
}

func TestStoreReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()

	s, err := Open(ctx, p)
	require.NoError(t, err)
	a, err := s.Put(ctx, newPost("Alpha", 4))
	require.NoError(t, err)
	b, err := s.Put(ctx, newPost("Beta", 9))
	require.NoError(t, err)
	_, err = s.Remove(ctx, b.ID, b.Rev)
	require.NoError(t, err)
	lastSeq := s.LastSeq()
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, p)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Rev, got.Rev)

	_, err = reopened.Get(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// The feed keeps the latest change per document.
	assert.Equal(t, lastSeq, reopened.LastSeq())
	batch := reopened.ChangesSince(0, 0)
	assert.Len(t, batch.Changes, 2)

	c, err := reopened.Put(ctx, newPost("Gamma", 1))
	require.NoError(t, err)
	all, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Gamma"}, names(all))
	assert.Greater(t, reopened.LastSeq(), lastSeq)
	assert.NotEmpty(t, c.ID)
}

func TestStoreEpochFollowsPersistedData(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()

	s, err := Open(ctx, p)
	require.NoError(t, err)
	epoch := s.Epoch()
	require.NotEmpty(t, epoch)
	_, err = s.Put(ctx, newPost("Alpha", 1))
	require.NoError(t, err)
	assert.Equal(t, epoch, s.ChangesSince(0, 0).Epoch)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, p)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, epoch, reopened.Epoch(), "same data, same seq space")

	// An empty replacement store restarts its seqs under a new epoch.
	other := openStore(t)
	assert.NotEqual(t, epoch, other.Epoch())
	assert.Equal(t, other.Epoch(), other.ChangesSince(5, 0).Epoch)
}

type failingPersister struct {
	Persister
	fail bool
}

func (p *failingPersister) Save(ctx context.Context, rec Record, prevRev string) error {
	if p.fail {
		return errors.New("disk full")
	}
	return p.Persister.Save(ctx, rec, prevRev)
}

func TestStoreFailedPersistLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{Persister: NewMemoryPersister()}
	s, err := Open(ctx, p)
	require.NoError(t, err)
	defer s.Close()

	created, err := s.Put(ctx, newPost("Alpha", 1))
	require.NoError(t, err)
	seq := s.LastSeq()

	p.fail = true
	created.Score = 50
	_, err = s.Put(ctx, created)
	require.Error(t, err)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
	assert.Equal(t, seq, s.LastSeq())

	top, err := s.ScanByScore(ctx, -1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].Score)
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, NewMemoryPersister())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, model.ErrStoreClosed)
	_, err = s.Put(ctx, newPost("Alpha", 0))
	assert.ErrorIs(t, err, model.ErrStoreClosed)
	_, err = s.ListAll(ctx)
	assert.ErrorIs(t, err, model.ErrStoreClosed)
}
