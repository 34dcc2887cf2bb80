package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"postsync/internal/domains/post/model"
	"postsync/internal/domains/post/repository"
)

// =====================================================
// SERVICE IMPLEMENTATION
// =====================================================

type mutationService struct {
	store     repository.DocumentStore
	refresher Refresher
	now       func() time.Time
}

// NewMutationService builds the mutation service. refresher may be nil.
func NewMutationService(
	store repository.DocumentStore,
	refresher Refresher,
) MutationService {
	return &mutationService{
		store:     store,
		refresher: refresher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// =====================================================
// CREATE
// =====================================================

func (s *mutationService) Create(ctx context.Context, req model.CreatePostRequest) (*model.Post, error) {
	doc, err := s.newPost(req)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.Put(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.refresh(ctx)
	return saved, nil
}

// newPost normalizes and validates req into an unsaved post.
func (s *mutationService) newPost(req model.CreatePostRequest) (*model.Post, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError(err)
	}

	return &model.Post{
		Name:       req.Name,
		Content:    req.Content,
		Attributes: []string(req.Attributes),
		Score:      0,
		Comments:   []model.Comment{},
		CreatedAt:  s.now(),
	}, nil
}

// =====================================================
// UPDATE
// =====================================================

func (s *mutationService) Update(ctx context.Context, id string, req model.UpdatePostRequest) (*model.Post, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError(err)
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Rev != req.Rev {
		return nil, model.NewConflictError(id, req.Rev, current.Rev)
	}

	// createdAt, score and comments are carried over untouched
	now := s.now()
	next := current.Clone()
	next.Name = req.Name
	next.Content = req.Content
	next.Attributes = []string(req.Attributes)
	next.UpdatedAt = &now

	saved, err := s.store.Put(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	s.refresh(ctx)
	return saved, nil
}

// =====================================================
// REMOVE
// =====================================================

func (s *mutationService) Remove(ctx context.Context, id, rev string) error {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(rev) == "" {
		return model.NewValidationError(errors.New("id and rev are required"))
	}

	if _, err := s.store.Remove(ctx, id, rev); err != nil {
		return fmt.Errorf("failed to remove post: %w", err)
	}

	s.refresh(ctx)
	return nil
}

// =====================================================
// LIKE
// =====================================================

func (s *mutationService) Like(ctx context.Context, id string) (*model.Post, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := current.Clone()
	next.Score++
	next.UpdatedAt = &now

	// Put checks next.Rev against the store, so a concurrent writer makes
	// this a Conflict instead of a lost increment.
	saved, err := s.store.Put(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to like post: %w", err)
	}

	s.refresh(ctx)
	return saved, nil
}

// =====================================================
// ADD COMMENT
// =====================================================

func (s *mutationService) AddComment(ctx context.Context, id string, req model.AddCommentRequest) (*model.Post, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return current, nil
	}

	now := s.now()
	next := current.Clone()
	next.Comments = append(next.Comments, model.Comment{Text: text, CreatedAt: now})
	next.UpdatedAt = &now

	saved, err := s.store.Put(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	s.refresh(ctx)
	return saved, nil
}

// =====================================================
// SEED
// =====================================================

var (
	seedAdjectives = []string{"Quiet", "Bright", "Offline", "Rapid", "Hidden", "Golden", "Silent", "Early", "Shared", "Local"}
	seedNouns      = []string{"Harbor", "Notebook", "Replica", "Signal", "Garden", "Archive", "Journey", "Draft", "Beacon", "Ledger"}
	seedTags       = []string{"news", "draft", "travel", "tech", "ideas", "sync", "demo", "notes"}
)

func (s *mutationService) Seed(ctx context.Context, n int) ([]*model.Post, error) {
	if err := (model.SeedRequest{Count: n}).Validate(); err != nil {
		return nil, model.NewValidationError(err)
	}

	created := make([]*model.Post, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		req := model.CreatePostRequest{
			Name:       fmt.Sprintf("%s %s %d", pick(seedAdjectives), pick(seedNouns), i+1),
			Content:    fmt.Sprintf("Synthetic post #%d generated for load testing.", i+1),
			Attributes: model.Attributes{pick(seedTags), pick(seedTags)},
		}
		doc, err := s.newPost(req)
		if err != nil {
			return created, err
		}
		doc.Score = rand.IntN(model.MaxSeedScore)

		saved, err := s.store.Put(ctx, doc)
		if err != nil {
			return created, fmt.Errorf("failed to seed post %d: %w", i+1, err)
		}
		created = append(created, saved)
	}

	log.Info().Int("count", len(created)).Msg("Seeded posts")
	s.refresh(ctx)
	return created, nil
}

func pick(values []string) string {
	return values[rand.IntN(len(values))]
}

// refresh recomputes the view after a commit. A failed refresh does not
// undo the commit, so it is only logged.
func (s *mutationService) refresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("View refresh after mutation failed")
	}
}
