package service

import (
	"context"
	"fmt"
	"slices"

	"postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
)

// queryService reads through the store's indexes.
//
// Name matching is a case-insensitive substring match: "alp" finds
// "Alpha" and "Alphabet". An empty pattern matches every post.
type queryService struct {
	store repository.DocumentStore
}

func NewQueryService(store repository.DocumentStore) QueryService {
	return &queryService{store: store}
}

func (s *queryService) Get(ctx context.Context, id string) (*model.Post, error) {
	return s.store.Get(ctx, id)
}

func (s *queryService) FindByName(ctx context.Context, substr string) ([]*model.Post, error) {
	return s.store.ScanByName(ctx, substr)
}

func (s *queryService) TopByScore(ctx context.Context, limit int) ([]*model.Post, error) {
	if limit < 0 {
		return nil, model.NewValidationError(fmt.Errorf("limit must not be negative"))
	}
	if limit == 0 {
		return []*model.Post{}, nil
	}
	return s.store.ScanByScore(ctx, limit)
}

func (s *queryService) Combined(ctx context.Context, params model.ViewParams) ([]*model.Post, error) {
	if params.SortByScore {
		all, err := s.store.ScanByScore(ctx, -1)
		if err != nil {
			return nil, err
		}
		if params.Name == "" {
			return all, nil
		}
		matched, err := s.matchingIDs(ctx, params.Name)
		if err != nil {
			return nil, err
		}
		return slices.DeleteFunc(all, func(p *model.Post) bool {
			_, ok := matched[p.ID]
			return !ok
		}), nil
	}

	var posts []*model.Post
	var err error
	if params.Name == "" {
		posts, err = s.store.ListAll(ctx)
	} else {
		posts, err = s.store.ScanByName(ctx, params.Name)
	}
	if err != nil {
		return nil, err
	}

	// Newest first; equal timestamps keep the store's order.
	slices.SortStableFunc(posts, func(a, b *model.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return posts, nil
}

func (s *queryService) matchingIDs(ctx context.Context, name string) (map[string]struct{}, error) {
	posts, err := s.store.ScanByName(ctx, name)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		ids[p.ID] = struct{}{}
	}
	return ids, nil
}
