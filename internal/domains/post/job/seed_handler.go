package job

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"postsync/internal/domains/post/service"
	"postsync/internal/shared"
	"postsync/internal/shared/utils"
	"postsync/pkg/logger"
)

// SeedHandler runs bulk seeding off the request path.
type SeedHandler struct {
	mutations service.MutationService
}

func NewSeedHandler(mutations service.MutationService) *SeedHandler {
	return &SeedHandler{mutations: mutations}
}

// ProcessTask
// 1. Parse payload.
// 2. Seed; posts created before a failure stay committed.
func (h *SeedHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.SeedPostsPayload
	if err := utils.UnmarshalTask(task, &payload); err != nil {
		logger.Error("SeedPosts: Failed to unmarshal payload", err)
		// Retrying cannot fix a broken payload
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	posts, err := h.mutations.Seed(ctx, payload.Count)
	if err != nil {
		logger.Error("SeedPosts: Seed failed", err)
		return err
	}

	logger.Info("SeedPosts: Completed", map[string]interface{}{
		"requested": payload.Count,
		"created":   len(posts),
	})
	return nil
}
