package pending

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryQueue struct {
	mu       sync.Mutex
	capacity int
	clock    func() time.Time
	byStaff  map[string][]Notification
}

func NewMemoryQueue(capacity int, clock func() time.Time) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryQueue{capacity: capacity, clock: clock, byStaff: map[string][]Notification{}}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, staffID string, n Notification) error {
	if err := validate(staffID, n); err != nil {
		return err
	}
	if n.QueuedAt.IsZero() {
		n.QueuedAt = q.clock().UTC()
	}
	n.Payload = slices.Clone(n.Payload)

	q.mu.Lock()
	defer q.mu.Unlock()
	list := slices.DeleteFunc(q.byStaff[staffID], func(e Notification) bool { return e.CallID == n.CallID })
	list = append(list, n)
	if over := len(list) - q.capacity; over > 0 {
		list = slices.Delete(list, 0, over)
	}
	q.byStaff[staffID] = list
	return nil
}

func (q *MemoryQueue) Drain(ctx context.Context, staffID string) ([]Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.byStaff[staffID]
	delete(q.byStaff, staffID)
	if list == nil {
		return []Notification{}, nil
	}
	return list, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, staffID, callID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := slices.DeleteFunc(q.byStaff[staffID], func(e Notification) bool { return e.CallID == callID })
	if len(list) == 0 {
		delete(q.byStaff, staffID)
		return nil
	}
	q.byStaff[staffID] = list
	return nil
}
