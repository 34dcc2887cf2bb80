package cache

import (
	"context"
	"time"
)

// Cache is the key/value contract used for small durable state such as
// replication checkpoints. Values are stored as JSON.
type Cache interface {
	// Get unmarshals the value at key into dest.
	// found = false on a miss, dest is left untouched.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores value at key. ttl = 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
