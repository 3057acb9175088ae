package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashback-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// blockTimeout bounds each BRPOP so the consumer can notice ctx cancellation.
const blockTimeout = 5 * time.Second

// EventQueue is a Redis-list-backed domain-event queue. It implements both
// ports.EventPublisher and ports.EventSource. Delivery is at-least-once: a
// consumer crash after BRPOP loses nothing downstream because every consumer
// handler is idempotent at the data level.
type EventQueue struct {
	client *goredis.Client
	key    string
}

// NewEventQueue creates a queue over the given list key.
func NewEventQueue(client *goredis.Client, key string) *EventQueue {
	return &EventQueue{client: client, key: key}
}

// Publish appends an event to the queue.
func (q *EventQueue) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Next blocks until an event arrives or ctx is done.
func (q *EventQueue) Next(ctx context.Context) (*domain.Event, error) {
	for {
		res, err := q.client.BRPop(ctx, blockTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("pop event: %w", err)
		}

		// BRPOP returns [key, value]
		var ev domain.Event
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		return &ev, nil
	}
}

// Len returns the number of queued events (used by health/ops reporting).
func (q *EventQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
