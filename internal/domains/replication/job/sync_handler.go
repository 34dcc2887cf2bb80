package job

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"postsync/internal/domains/replication/model"
	"postsync/internal/domains/replication/service"
	"postsync/pkg/logger"
)

// SyncHandler runs a scheduled SyncOnce.
type SyncHandler struct {
	replication service.ServiceInterface
}

func NewSyncHandler(replication service.ServiceInterface) *SyncHandler {
	return &SyncHandler{replication: replication}
}

// ProcessTask
// 1. Skip while offline: local writes keep accumulating until the next online transition.
// 2. Sync; network failures are returned so asynq retries the task.
func (h *SyncHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if h.replication.Mode() == model.ModeOffline {
		logger.Debug("ScheduledSync: Skipped, replication is offline")
		return nil
	}

	result, err := h.replication.SyncOnce(ctx)
	if err != nil {
		if errors.Is(err, model.ErrOffline) {
			return nil
		}
		logger.Error("ScheduledSync: SyncOnce failed", err)
		return err
	}

	if result.Rejected > 0 {
		logger.Warn("ScheduledSync: Documents rejected", map[string]interface{}{
			"rejected": result.Rejected,
		})
	}

	logger.Info("ScheduledSync: Completed", map[string]interface{}{
		"pulled":   result.Pulled,
		"applied":  result.Applied,
		"pushed":   result.Pushed,
		"accepted": result.Accepted,
	})
	return nil
}
