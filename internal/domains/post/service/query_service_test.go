package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsync/internal/domains/post/model"
)

func namesOf(posts []*model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Name)
	}
	return out
}

// seedPosts creates posts in order with the given scores through the
// mutation service, so createdAt grows with each one.
func seedPosts(t *testing.T, svc *mutationService, scores map[string]int, order ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range order {
		p, err := svc.Create(ctx, model.CreatePostRequest{Name: name, Content: "about " + name})
		require.NoError(t, err)
		for i := 0; i < scores[name]; i++ {
			p, err = svc.Like(ctx, p.ID)
			require.NoError(t, err)
		}
	}
}

func TestTopByScore(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestMutations(t)
	q := NewQueryService(store)

	seedPosts(t, svc, map[string]int{"A": 3, "B": 1, "C": 5}, "A", "B", "C")

	top, err := q.TopByScore(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, namesOf(top))

	all, err := q.TopByScore(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, namesOf(all))

	none, err := q.TopByScore(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = q.TopByScore(ctx, -1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestFindByName(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestMutations(t)
	q := NewQueryService(store)

	seedPosts(t, svc, nil, "Alpha", "Beta", "Alphabet")

	found, err := q.FindByName(ctx, "alp")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha", "Alphabet"}, namesOf(found))

	found, err = q.FindByName(ctx, "")
	require.NoError(t, err)
	assert.Len(t, found, 3)

	found, err = q.FindByName(ctx, "omega")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestMutations(t)
	q := NewQueryService(store)

	created, err := svc.Create(ctx, model.CreatePostRequest{Name: "Alpha", Content: "c"})
	require.NoError(t, err)

	got, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Rev, got.Rev)

	_, err = q.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCombined(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestMutations(t)
	q := NewQueryService(store)

	seedPosts(t, svc, map[string]int{"Alpha": 2, "Beta": 9, "Alphabet": 4}, "Alpha", "Beta", "Alphabet")

	tests := []struct {
		name   string
		params model.ViewParams
		want   []string
	}{
		{name: "newest first", params: model.ViewParams{}, want: []string{"Alphabet", "Beta", "Alpha"}},
		{name: "by score", params: model.ViewParams{SortByScore: true}, want: []string{"Beta", "Alphabet", "Alpha"}},
		{name: "filtered newest first", params: model.ViewParams{Name: "alpha"}, want: []string{"Alphabet", "Alpha"}},
		{name: "filtered by score", params: model.ViewParams{Name: "alpha", SortByScore: true}, want: []string{"Alphabet", "Alpha"}},
		{name: "no match", params: model.ViewParams{Name: "gamma", SortByScore: true}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Combined(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, namesOf(got))
		})
	}
}
