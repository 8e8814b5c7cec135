package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisQueue(t *testing.T, capacity int, clock func() time.Time) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb, capacity, clock), mr
}

func frozenClock() func() time.Time {
	t := time.Unix(1700000000, 0).UTC()
	return func() time.Time { return t }
}

func TestRedisQueue_SameMillisecondKeepsArrivalOrder(t *testing.T) {
	q, _ := newRedisQueue(t, 3, frozenClock())
	ctx := context.Background()

	// ids sort opposite to arrival order
	for _, id := range []string{"z", "y", "x", "w"} {
		if err := q.Enqueue(ctx, "s1", Notification{CallID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	got, err := q.Drain(ctx, "s1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 3 || got[0].CallID != "y" || got[1].CallID != "x" || got[2].CallID != "w" {
		t.Fatalf("expected y, x, w after evicting z, got %+v", got)
	}
}

func TestRedisQueue_BoundEvictsOldest(t *testing.T) {
	q, _ := newRedisQueue(t, DefaultCapacity, steppingClock())
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		if err := q.Enqueue(ctx, "s1", Notification{CallID: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	got, _ := q.Drain(ctx, "s1")
	if len(got) != 10 || got[0].CallID != "c3" || got[9].CallID != "c12" {
		t.Fatalf("expected c3..c12, got %+v", got)
	}
}

func TestRedisQueue_DedupMovesToNewest(t *testing.T) {
	q, _ := newRedisQueue(t, 3, frozenClock())
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1", Notification{CallID: "a"})
	_ = q.Enqueue(ctx, "s1", Notification{CallID: "b"})
	_ = q.Enqueue(ctx, "s1", Notification{CallID: "a", Payload: json.RawMessage(`{"v":2}`)})

	got, _ := q.Drain(ctx, "s1")
	if len(got) != 2 || got[0].CallID != "b" || got[1].CallID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if string(got[1].Payload) != `{"v":2}` {
		t.Fatalf("expected refreshed payload, got %s", got[1].Payload)
	}
}

func TestRedisQueue_RemoveThenDrain(t *testing.T) {
	q, mr := newRedisQueue(t, DefaultCapacity, steppingClock())
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c1"})
	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c2"})
	_ = q.Enqueue(ctx, "s2", Notification{CallID: "c1"})
	if err := q.Remove(ctx, "s1", "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, _ := q.Drain(ctx, "s1")
	if len(got) != 1 || got[0].CallID != "c2" {
		t.Fatalf("expected only c2, got %+v", got)
	}
	if again, _ := q.Drain(ctx, "s1"); len(again) != 0 {
		t.Fatalf("drain must empty the queue, got %+v", again)
	}
	for _, k := range keys("s1") {
		if mr.Exists(k) {
			t.Fatalf("drain must delete %s", k)
		}
	}
	if other, _ := q.Drain(ctx, "s2"); len(other) != 1 {
		t.Fatalf("s2 entry must survive removal for s1")
	}
}

func TestRedisQueue_EntriesExpire(t *testing.T) {
	q, mr := newRedisQueue(t, DefaultCapacity, steppingClock())
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c1"})
	mr.FastForward(defaultRedisTTL + time.Second)

	if got, _ := q.Drain(ctx, "s1"); len(got) != 0 {
		t.Fatalf("expired entries must not be delivered, got %+v", got)
	}
}
