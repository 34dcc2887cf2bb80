package service

import (
	"context"

	"postsync/internal/domains/replication/model"
)

// =====================================================
// REPLICATION SERVICE INTERFACE
// =====================================================

// ServiceInterface is the replication manager as seen by handlers and jobs.
type ServiceInterface interface {
	Mode() model.Mode

	// SetMode switches connectivity. Going online runs one SyncOnce and
	// then starts the continuous session; going offline stops it.
	SetMode(ctx context.Context, mode model.Mode) error

	// One-shot replication. All return ErrOffline while offline.
	PullOnce(ctx context.Context) (model.SyncResult, error)
	PushOnce(ctx context.Context) (model.SyncResult, error)
	SyncOnce(ctx context.Context) (model.SyncResult, error)

	StartContinuous() error
	StopContinuous()

	Status(ctx context.Context) (model.Status, error)
}
