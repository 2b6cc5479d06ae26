package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the minimal client surface used by RedisRelay.
type RedisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisRelay mirrors published events into a Redis Stream as JSON envelopes
// so consumers outside the process observe the saga's event feed.
type RedisRelay struct {
	client RedisClient
	stream string
	maxLen int64
	now    func() time.Time
}

// NewRedisRelay constructs a relay appending to the given stream.
func NewRedisRelay(client RedisClient, stream string, maxLen int64) *RedisRelay {
	if stream == "" {
		stream = "fulfillment_events"
	}
	return &RedisRelay{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    time.Now,
	}
}

// Relay appends one event envelope to the stream. It satisfies EventHandler
// via a closure over the event name, see Handler.
func (r *RedisRelay) Relay(ctx context.Context, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	named, ok := event.(Named)
	if !ok {
		return ErrUnnamed
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":      named.MessageName(),
			"payload":   string(payload),
			"timestamp": r.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return r.client.XAdd(ctx, args).Err()
}

// Handler adapts the relay to the bus EventHandler shape; relay errors go to
// logf since event delivery is fire-and-forget.
func (r *RedisRelay) Handler(logf func(format string, args ...any)) EventHandler {
	return func(ctx context.Context, event any) {
		if err := r.Relay(ctx, event); err != nil {
			logf("redis relay: %v", err)
		}
	}
}
