package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis holds one checkpoint key per replica, written on the replication
// path. Two loops and the sync scheduler share the client; asynq dials
// its own connections. Short timeouts let a stalled server surface as a
// retryable replication error instead of blocking the loops.
const (
	redisPoolSize     = 4
	redisMinIdleConns = 1
	redisMaxRetries   = 2
	redisDialTimeout  = 3 * time.Second
	redisIOTimeout    = time.Second
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(host, password string, db int) *RedisClient {
	return &RedisClient{
		Client: redis.NewClient(newRedisOptions(host, password, db)),
	}
}

func newRedisOptions(host, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:         host,
		Password:     password,
		DB:           db,
		PoolSize:     redisPoolSize,
		MinIdleConns: redisMinIdleConns,
		MaxRetries:   redisMaxRetries,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}
}

func (r *RedisClient) Connect(ctx context.Context) error {
	log.Info().Str("addr", r.Client.Options().Addr).Msg("Connecting to Redis")

	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Msg("Redis connected")
	return nil
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (r *RedisClient) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}
