package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"postsync/internal/shared"
	"postsync/internal/shared/utils"
	"postsync/pkg/logger"
)

type Scheduler struct {
	scheduler    *asynq.Scheduler
	syncInterval time.Duration
	replicaID    string
}

func NewScheduler(redisOpt asynq.RedisConnOpt, replicaID string, syncInterval time.Duration) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.WarnLevel,
		},
	)

	return &Scheduler{
		scheduler:    scheduler,
		syncInterval: syncInterval,
		replicaID:    replicaID,
	}
}

// RegisterReplicationJobs registers the periodic sync. A zero interval
// disables it.
func (s *Scheduler) RegisterReplicationJobs() error {
	if s.syncInterval <= 0 {
		logger.Info("Scheduled sync disabled", map[string]interface{}{})
		return nil
	}
	return s.registerSyncJob()
}

// ================================================
// JOB: Replication SyncOnce (every REPLICATION_SYNC_INTERVAL)
// ================================================
func (s *Scheduler) registerSyncJob() error {
	task, err := utils.MarshalTask(shared.TypeReplicationSync, shared.ReplicationSyncPayload{ReplicaID: s.replicaID})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Register(
		fmt.Sprintf("@every %s", s.syncInterval),
		task,
		asynq.Queue(shared.QueueDefault),
		asynq.MaxRetry(0), // the next tick is the retry
		asynq.Timeout(s.syncInterval),
		asynq.Unique(s.syncInterval),
	)

	if err != nil {
		logger.Error("Failed to register ReplicationSync job", err)
		return err
	}

	logger.Info("✓ Registered ReplicationSync", map[string]interface{}{
		"interval": s.syncInterval.String(),
	})
	return nil
}

// Start runs the scheduler in the background until Shutdown.
func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
