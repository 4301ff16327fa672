package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestEnqueueReadAckRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	q := NewStreamQueue(rdb, "showchat:events", "showchat-loggers", "test-consumer", 50*time.Millisecond)
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	ev := ChatEvent{Question: "Any robotics projects?", Outcome: "answered", Attempts: 2, DurationMS: 1200}
	if _, err := q.Enqueue(ctx, ev); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0].Event
	if got.Question != ev.Question || got.Outcome != ev.Outcome || got.Attempts != 2 {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.EventID == "" || got.OccurredAt.IsZero() {
		t.Fatalf("event id/timestamp not stamped: %+v", got)
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	msgs, err = q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty stream after ack, got %d messages", len(msgs))
	}
}
