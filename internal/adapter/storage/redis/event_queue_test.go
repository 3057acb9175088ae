package redis

import (
	"context"
	"testing"
	"time"

	"cashback-ledger/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *EventQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEventQueue(client, "events")
}

func TestEventQueue_PublishThenNext(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	published := domain.Event{
		Type:     domain.EventClick,
		UserID:   uuid.New(),
		DedupKey: "prog-1",
	}
	require.NoError(t, q.Publish(ctx, published))

	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, published.Type, got.Type)
	assert.Equal(t, published.UserID, got.UserID)
	assert.Equal(t, published.DedupKey, got.DedupKey)
}

func TestEventQueue_FIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, key := range []string{"first", "second", "third"} {
		require.NoError(t, q.Publish(ctx, domain.Event{Type: domain.EventClick, DedupKey: key}))
	}

	for _, want := range []string{"first", "second", "third"} {
		got, err := q.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.DedupKey)
	}
}

func TestEventQueue_Len(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, q.Publish(ctx, domain.Event{Type: domain.EventDonation, DedupKey: "a"}))
	require.NoError(t, q.Publish(ctx, domain.Event{Type: domain.EventCashout, DedupKey: "b"}))

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEventQueue_NextHonorsContextCancel(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := q.Next(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}
