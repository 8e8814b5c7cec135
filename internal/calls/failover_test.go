package calls

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// flakyStore wraps a MemoryStore and fails every call while down is set.
type flakyStore struct {
	*MemoryStore
	mu    sync.Mutex
	down  bool
	calls int
}

var errDown = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errDown
	}
	return nil
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyStore) Create(ctx context.Context, c Call) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.MemoryStore.Create(ctx, c)
}

func (f *flakyStore) Get(ctx context.Context, id string) (Call, error) {
	if err := f.fail(); err != nil {
		return Call{}, err
	}
	return f.MemoryStore.Get(ctx, id)
}

func (f *flakyStore) Transition(ctx context.Context, id string, from []Status, u Update) (Call, error) {
	if err := f.fail(); err != nil {
		return Call{}, err
	}
	return f.MemoryStore.Transition(ctx, id, from, u)
}

func (f *flakyStore) FindRinging(ctx context.Context, at time.Time) ([]Call, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.MemoryStore.FindRinging(ctx, at)
}

func newFailover(primary Store) (*FailoverStore, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	return NewFailoverStore(primary, NewMemoryStore(), log, 100*time.Millisecond), &buf
}

func TestFailoverStore_MirrorsDurableWritesThenDegrades(t *testing.T) {
	primary := &flakyStore{MemoryStore: NewMemoryStore()}
	s, logs := newFailover(primary)
	ctx := context.Background()

	if err := s.Create(ctx, ringingCall("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s1", At: t0.Add(time.Second)}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	primary.setDown(true)

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get after outage: %v", err)
	}
	if got.Status != StatusAccepted || got.AcceptedBy != "s1" {
		t.Fatalf("acknowledged write lost after degrade: %+v", got)
	}
	if !s.Degraded() {
		t.Fatalf("expected degraded store")
	}

	before := primary.calls
	if _, err := s.Transition(ctx, "a", []Status{StatusAccepted}, Update{Status: StatusEnded, EndedBy: "c1", At: t0.Add(time.Minute)}); err != nil {
		t.Fatalf("end on memory: %v", err)
	}
	if primary.calls != before {
		t.Fatalf("degraded store must not touch primary")
	}

	primary.setDown(false)
	got, _ = s.Get(ctx, "a")
	if got.Status != StatusEnded {
		t.Fatalf("expected store to stay on memory after primary recovers, got %s", got.Status)
	}

	if n := strings.Count(logs.String(), "serving from volatile memory"); n != 1 {
		t.Fatalf("expected single degrade log, got %d", n)
	}
}

func TestFailoverStore_GuardFailureDoesNotDegrade(t *testing.T) {
	primary := &flakyStore{MemoryStore: NewMemoryStore()}
	s, _ := newFailover(primary)
	ctx := context.Background()

	_ = s.Create(ctx, ringingCall("a"))
	_, _ = s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s1", At: t0})
	_, err := s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s2", At: t0})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s.Degraded() {
		t.Fatalf("domain errors must not degrade the store")
	}
}

func TestFailoverStore_RetriesOnceBeforeDegrading(t *testing.T) {
	primary := &flakyStore{MemoryStore: NewMemoryStore()}
	s, _ := newFailover(primary)
	ctx := context.Background()

	primary.setDown(true)
	if _, err := s.FindRinging(ctx, t0); err != nil {
		t.Fatalf("find ringing: %v", err)
	}
	if primary.calls != 2 {
		t.Fatalf("expected one retry (2 attempts), got %d", primary.calls)
	}
}

func TestFailoverStore_NilPrimaryStartsOnMemory(t *testing.T) {
	s, _ := newFailover(nil)
	ctx := context.Background()
	if !s.Degraded() {
		t.Fatalf("expected degraded from start")
	}
	if err := s.Create(ctx, ringingCall("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

// lateReadStore returns the call as it was when Get started, after holding
// the read until release is closed.
type lateReadStore struct {
	*flakyStore
	started chan struct{}
	release chan struct{}
}

func (l *lateReadStore) Get(ctx context.Context, id string) (Call, error) {
	c, err := l.flakyStore.Get(ctx, id)
	close(l.started)
	<-l.release
	return c, err
}

func TestFailoverStore_LateReadDoesNotRollBackShadow(t *testing.T) {
	primary := &lateReadStore{
		flakyStore: &flakyStore{MemoryStore: NewMemoryStore()},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	s := NewFailoverStore(primary, NewMemoryStore(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), time.Second)
	ctx := context.Background()

	if err := s.Create(ctx, ringingCall("a")); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Get(ctx, "a")
	}()
	<-primary.started

	if _, err := s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s1", At: t0.Add(time.Second)}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	close(primary.release)
	<-done

	primary.setDown(true)
	_, err := s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s2", At: t0.Add(2 * time.Second)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second accept after degrade must conflict, got %v", err)
	}
	got, _ := s.Get(ctx, "a")
	if got.AcceptedBy != "s1" {
		t.Fatalf("durable accept lost, accepted by %q", got.AcceptedBy)
	}
}

func TestMemoryStore_PutIgnoresStaleRecords(t *testing.T) {
	m := NewMemoryStore()
	ringing := ringingCall("a")
	m.Put(ringing)

	accepted := ringing
	accepted.Status = StatusAccepted
	accepted.AcceptedBy = "s1"
	accepted.UpdatedAt = t0.Add(time.Second)
	if !m.Put(accepted) {
		t.Fatalf("forward record must be stored")
	}
	if m.Put(ringing) {
		t.Fatalf("ringing must not overwrite accepted")
	}

	older := accepted
	older.UpdatedAt = t0
	if m.Put(older) {
		t.Fatalf("older record with the same status must be ignored")
	}
	got, _ := m.Get(context.Background(), "a")
	if got.Status != StatusAccepted || got.AcceptedBy != "s1" {
		t.Fatalf("unexpected shadow record %+v", got)
	}
}
