package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	postJob "postsync/internal/domains/post/job"
	replJob "postsync/internal/domains/replication/job"
	"postsync/internal/infrastructure/queue"
	"postsync/internal/shared"
	"postsync/pkg/container"
)

// backgroundWorker runs the asynq server and scheduler in this process:
// jobs act on the in-process document store, so they cannot run elsewhere.
type backgroundWorker struct {
	server    *asynq.Server
	scheduler *queue.Scheduler
}

func startWorker(c *container.Container) (*backgroundWorker, error) {
	cfg := c.Config

	// ========================================
	// HANDLERS
	// ========================================
	mux := asynq.NewServeMux()
	mux.HandleFunc(shared.TypeSeedPosts, postJob.NewSeedHandler(c.MutationService).ProcessTask)
	if c.Replication != nil {
		mux.HandleFunc(shared.TypeReplicationSync, replJob.NewSyncHandler(c.Replication).ProcessTask)
	}

	// ========================================
	// SERVER
	// ========================================
	srv := asynq.NewServer(
		c.RedisConnOpt(),
		asynq.Config{
			Queues:      shared.Queues,
			Concurrency: cfg.Worker.Concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("type", task.Type()).Msg("Task failed")
			}),
		},
	)
	if err := srv.Start(mux); err != nil {
		return nil, err
	}
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("[Worker] Started")

	w := &backgroundWorker{server: srv}

	// ========================================
	// SCHEDULER (replicas only)
	// ========================================
	if c.Replication != nil && cfg.Replication.SyncInterval > 0 {
		scheduler := queue.NewScheduler(c.RedisConnOpt(), cfg.Replication.ReplicaID, cfg.Replication.SyncInterval)
		if err := scheduler.RegisterReplicationJobs(); err != nil {
			srv.Shutdown()
			return nil, err
		}
		if err := scheduler.Start(); err != nil {
			srv.Shutdown()
			return nil, err
		}
		w.scheduler = scheduler
	}

	return w, nil
}

func (w *backgroundWorker) Shutdown() {
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	log.Info().Msg("[Worker] ✓ Gracefully stopped")
}
