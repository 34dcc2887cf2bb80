package service

import (
	"context"

	"postsync/internal/domains/post/model"
)

// =====================================================
// POST SERVICE INTERFACES
// =====================================================

// MutationService applies user edits as read-modify-write cycles on the
// document store. Conflicts are returned, never retried.
type MutationService interface {
	// Create creates a new post with score 0 and no comments
	Create(ctx context.Context, req model.CreatePostRequest) (*model.Post, error)

	// Update replaces name, content and attributes at the given revision
	Update(ctx context.Context, id string, req model.UpdatePostRequest) (*model.Post, error)

	// Remove deletes the post at the given revision
	Remove(ctx context.Context, id, rev string) error

	// Like increments the score of the current revision by one
	Like(ctx context.Context, id string) (*model.Post, error)

	// AddComment appends a comment; blank text leaves the post unchanged
	AddComment(ctx context.Context, id string, req model.AddCommentRequest) (*model.Post, error)

	// Seed bulk-creates n synthetic posts with random scores
	Seed(ctx context.Context, n int) ([]*model.Post, error)
}

// QueryService answers read-only queries against the store's indexes.
type QueryService interface {
	Get(ctx context.Context, id string) (*model.Post, error)
	FindByName(ctx context.Context, substr string) ([]*model.Post, error)
	TopByScore(ctx context.Context, limit int) ([]*model.Post, error)

	// Combined is the single entry point of the list view: optional name
	// filter, then score-descending or newest-first order.
	Combined(ctx context.Context, params model.ViewParams) ([]*model.Post, error)
}

// Refresher is notified after a write so the view can be recomputed.
type Refresher interface {
	Refresh(ctx context.Context) error
}
