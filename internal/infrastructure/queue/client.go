package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"postsync/internal/shared"
	"postsync/internal/shared/utils"
)

// Client enqueues background tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

// EnqueueSeed queues a bulk seed of count posts and returns the task id.
func (c *Client) EnqueueSeed(ctx context.Context, count int) (string, error) {
	task, err := utils.MarshalTask(shared.TypeSeedPosts, shared.SeedPostsPayload{Count: count})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", shared.TypeSeedPosts, err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
