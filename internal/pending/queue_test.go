package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func steppingClock() func() time.Time {
	t := time.Unix(1700000000, 0).UTC()
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestMemoryQueue_BoundEvictsOldest(t *testing.T) {
	q := NewMemoryQueue(DefaultCapacity, steppingClock())
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		if err := q.Enqueue(ctx, "s1", Notification{CallID: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	got, _ := q.Drain(ctx, "s1")
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	if got[0].CallID != "c3" || got[9].CallID != "c12" {
		t.Fatalf("expected c3..c12, got %s..%s", got[0].CallID, got[9].CallID)
	}
}

func TestMemoryQueue_DedupMovesToNewest(t *testing.T) {
	q := NewMemoryQueue(3, steppingClock())
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

func TestMemoryQueue_RemoveThenDrain(t *testing.T) {
	q := NewMemoryQueue(DefaultCapacity, steppingClock())
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c1"})
	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c2"})
	_ = q.Remove(ctx, "s1", "c1")

	got, _ := q.Drain(ctx, "s1")
	if len(got) != 1 || got[0].CallID != "c2" {
		t.Fatalf("expected only c2, got %+v", got)
	}
	again, _ := q.Drain(ctx, "s1")
	if len(again) != 0 {
		t.Fatalf("drain must empty the queue, got %+v", again)
	}
}

func TestMemoryQueue_IsolatedPerStaff(t *testing.T) {
	q := NewMemoryQueue(DefaultCapacity, steppingClock())
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1", Notification{CallID: "c1"})
	_ = q.Enqueue(ctx, "s2", Notification{CallID: "c1"})
	_ = q.Remove(ctx, "s1", "c1")

	got, _ := q.Drain(ctx, "s2")
	if len(got) != 1 {
		t.Fatalf("s2 entry must survive removal for s1")
	}
}

func TestQueue_RejectsMissingIDs(t *testing.T) {
	q := NewMemoryQueue(0, nil)
	if err := q.Enqueue(context.Background(), "", Notification{CallID: "c1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := q.Enqueue(context.Background(), "s1", Notification{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRedisQueue_KeysShareHashTag(t *testing.T) {
	k := keys("staff-7")
	if len(k) != 3 || k[0] != "pending:{staff-7}:order" || k[1] != "pending:{staff-7}:payloads" || k[2] != "pending:{staff-7}:seq" {
		t.Fatalf("unexpected keys: %v", k)
	}
	if enqueueScript == nil || drainScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
