package coordinator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"signaling-platform/internal/availability"
	"signaling-platform/internal/calls"
	"signaling-platform/internal/routing"
)

func TestWatchdog_ExpiresAfterRingTimeoutExactlyOnce(t *testing.T) {
	f := newFixture(t, routing.StrategyHead, StaffRoom("s1"))
	f.setStaff(t, "s1", availability.StatusAvailable)
	ctx := context.Background()
	w := NewWatchdog(f.coord, time.Second, nil)

	res, _ := f.coord.Initiate(ctx, InitiateRequest{ClientID: "c1", OrgID: "default"})

	f.clock.Advance(44 * time.Second)
	if got, _ := w.Sweep(ctx); got.Expired != 0 {
		t.Fatalf("expired before the ring window closed")
	}

	f.clock.Advance(time.Second + time.Millisecond)
	got, err := w.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got.Expired != 1 {
		t.Fatalf("expected 1 expiry, got %+v", got)
	}
	if again, _ := w.Sweep(ctx); again.Found != 0 {
		t.Fatalf("missed call must not be found again, got %+v", again)
	}

	if n := f.notify.count(ClientRoom("c1"), EventMissed); n != 1 {
		t.Fatalf("expected exactly one call.missed, got %d", n)
	}
	if slices.Contains(f.notify.states(ClientRoom("c1")), string(calls.StatusMissed)) {
		t.Fatalf("client must hear the timeout once, as call.missed")
	}
	if got := f.notify.states(CallRoom(res.CallID)); len(got) == 0 || got[len(got)-1] != string(calls.StatusMissed) {
		t.Fatalf("call room must see the missed update, got %v", got)
	}
	call, _ := f.coord.Get(ctx, res.CallID)
	if call.Status != calls.StatusMissed || call.Reason != ReasonRingTimeout {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestWatchdog_ExpireLosesToAccept(t *testing.T) {
	f := newFixture(t, routing.StrategyHead, StaffRoom("s1"))
	f.setStaff(t, "s1", availability.StatusAvailable)
	ctx := context.Background()
	w := NewWatchdog(f.coord, time.Second, nil)

	res, _ := f.coord.Initiate(ctx, InitiateRequest{ClientID: "c1", OrgID: "default"})
	f.clock.Advance(46 * time.Second)
	// Accept lands between the scan and the write.
	if _, err := f.coord.Accept(ctx, res.CallID, staff("s1")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.coord.Expire(ctx, res.CallID); err == nil {
		t.Fatalf("expire must lose to accept")
	}
	if got, _ := w.Sweep(ctx); got.Found != 0 {
		t.Fatalf("accepted call must not be found, got %+v", got)
	}
	if n := f.notify.count(ClientRoom("c1"), EventMissed); n != 0 {
		t.Fatalf("no call.missed expected, got %d", n)
	}
}

func TestWatchdog_StartSweepsImmediately(t *testing.T) {
	f := newFixture(t, routing.StrategyHead, StaffRoom("s1"))
	f.setStaff(t, "s1", availability.StatusAvailable)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, _ := f.coord.Initiate(ctx, InitiateRequest{ClientID: "c1", OrgID: "default"})
	f.clock.Advance(time.Minute)

	w := NewWatchdog(f.coord, time.Hour, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop(context.Background())
	if err := w.Start(ctx); err == nil {
		t.Fatalf("second start must fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		call, _ := f.coord.Get(ctx, res.CallID)
		if call.Status == calls.StatusMissed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("startup sweep did not expire the call")
}

// faultyStore fails Transition for one call and can hold FindRinging until
// release is closed.
type faultyStore struct {
	calls.Store
	failID string

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

var errStoreReset = errors.New("read tcp 10.0.0.5:5432: connection reset by peer")

func (s *faultyStore) Transition(ctx context.Context, id string, from []calls.Status, u calls.Update) (calls.Call, error) {
	if id == s.failID {
		return calls.Call{}, errStoreReset
	}
	return s.Store.Transition(ctx, id, from, u)
}

func (s *faultyStore) FindRinging(ctx context.Context, at time.Time) ([]calls.Call, error) {
	if s.release != nil {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.Store.FindRinging(ctx, at)
}

func (f *fixture) coordinatorOn(store calls.Store) *Coordinator {
	return New(store, routing.NewPolicy(f.registry, routing.StrategyHead), f.notify, f.queue, WithClock(f.clock.Now))
}

func TestWatchdog_FailureOnOneCallDoesNotStopSweep(t *testing.T) {
	f := newFixture(t, routing.StrategyHead, StaffRoom("s1"))
	f.setStaff(t, "s1", availability.StatusAvailable)
	ctx := context.Background()

	store := &faultyStore{Store: f.store}
	coord := f.coordinatorOn(store)
	var ids []string
	for _, client := range []string{"c1", "c2", "c3"} {
		res, err := coord.Initiate(ctx, InitiateRequest{ClientID: client, OrgID: "default"})
		if err != nil || res.Status != calls.StatusRinging {
			t.Fatalf("initiate %s: %+v %v", client, res, err)
		}
		ids = append(ids, res.CallID)
		f.clock.Advance(time.Millisecond)
	}
	store.failID = ids[1]

	f.clock.Advance(time.Minute)
	got, err := NewWatchdog(coord, time.Second, nil).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got.Found != 3 || got.Expired != 2 || got.Failed != 1 {
		t.Fatalf("unexpected sweep result %+v", got)
	}
	for i, id := range ids {
		call, _ := f.store.Get(ctx, id)
		want := calls.StatusMissed
		if i == 1 {
			want = calls.StatusRinging
		}
		if call.Status != want {
			t.Fatalf("call %s: expected %s, got %s", id, want, call.Status)
		}
	}
}

func TestWatchdog_StopWaitsForStartupSweep(t *testing.T) {
	f := newFixture(t, routing.StrategyHead)
	store := &faultyStore{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	w := NewWatchdog(f.coordinatorOn(store), time.Hour, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-store.entered

	stopped := make(chan struct{})
	go func() {
		w.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("stop returned while the startup sweep was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return after the sweep finished")
	}
}
