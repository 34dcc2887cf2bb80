package shared

// Task types handled by the in-process asynq worker
const (
	TypeSeedPosts       = "post:seed"
	TypeReplicationSync = "replication:sync_once"
)

// Queue names and their relative priorities
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the asynq priority map used by the worker server.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// SeedPostsPayload is the payload of TypeSeedPosts
type SeedPostsPayload struct {
	Count int `json:"count"`
}

// ReplicationSyncPayload is the payload of TypeReplicationSync
type ReplicationSyncPayload struct {
	ReplicaID string `json:"replica_id"`
}
