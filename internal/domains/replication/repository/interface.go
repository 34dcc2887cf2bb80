package repository

import (
	"context"

	"postsync/internal/domains/replication/model"
)

// CheckpointStore persists replication progress per replica. Save never
// moves a checkpoint backwards: lower seqs than the stored ones, and seqs
// recorded against other store epochs, are ignored.
type CheckpointStore interface {
	// Load returns the stored checkpoint, or a zero one for an unknown replica.
	Load(ctx context.Context, replicaID string) (model.Checkpoint, error)

	// Save merges cp into the stored checkpoint and returns the result.
	Save(ctx context.Context, cp model.Checkpoint) (model.Checkpoint, error)

	// Rebase ties the checkpoint to the given store epochs, resetting its
	// seqs when they were recorded against other ones.
	Rebase(ctx context.Context, replicaID, localEpoch, remoteEpoch string) (model.Checkpoint, error)
}
