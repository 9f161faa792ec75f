package journal

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJournal keeps the latest status of each order in a hash and appends
// every event to a capped stream.
type RedisJournal struct {
	client    RedisPipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// RedisPipelineClient is the minimal client surface used by RedisJournal.
type RedisPipelineClient interface {
	Pipeline() RedisPipeliner
}

// RedisPipeliner is the subset of commands used within a pipeline.
type RedisPipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// NewRedisJournal constructs a Redis-backed journal.
func NewRedisJournal(client RedisPipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisJournal {
	if stream == "" {
		stream = "saga_events"
	}
	return &RedisJournal{
		client:    client,
		stream:    stream,
		keyPrefix: "order:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Publish writes the order's latest status and appends to the stream.
func (r *RedisJournal) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.keyPrefix + ev.OrderID
	at := ev.At.UTC().Format(time.RFC3339Nano)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"order_id": ev.OrderID,
		"event":    string(ev.Type),
		"detail":   ev.Detail,
		"at":       at,
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"order_id": ev.OrderID,
			"event":    string(ev.Type),
			"detail":   ev.Detail,
			"at":       at,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}
