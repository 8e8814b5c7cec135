package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"signaling-platform/internal/calls"
	"signaling-platform/pkg/logger"
)

const DefaultSweepInterval = 10 * time.Second

// Watchdog expires ringing calls whose ring window closed. It reads from the
// call store and writes only through Coordinator.Expire.
type Watchdog struct {
	coord    *Coordinator
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron

	// startup tracks the sweep Start runs outside the schedule.
	startup sync.WaitGroup
}

func NewWatchdog(coord *Coordinator, interval time.Duration, log *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{coord: coord, interval: interval, log: log.With("component", "watchdog")}
}

type SweepResult struct {
	Found   int
	Expired int
	// Skipped calls were resolved by someone else between the scan and the write.
	Skipped int
	Failed  int
}

// Sweep runs one pass. A failure on one call is logged and never stops the pass.
func (w *Watchdog) Sweep(ctx context.Context) (SweepResult, error) {
	due, err := w.coord.store.FindRinging(ctx, w.coord.clock())
	if err != nil {
		return SweepResult{}, fmt.Errorf("watchdog: find ringing: %w", err)
	}
	res := SweepResult{Found: len(due)}
	for _, call := range due {
		_, err := w.coord.Expire(ctx, call.ID)
		switch {
		case err == nil:
			res.Expired++
			w.log.Info("call expired", "call_id", call.ID, "org_id", call.OrgID)
		case errors.Is(err, calls.ErrInvalidTransition), errors.Is(err, calls.ErrNotFound):
			res.Skipped++
		default:
			res.Failed++
			w.log.Error("expire failed", "call_id", call.ID, "err", err)
		}
	}
	return res, nil
}

// Start sweeps once right away, then every interval. Ticks never overlap: a
// tick that fires while the previous sweep still runs is skipped.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return errors.New("watchdog: already started")
	}

	cl := logger.Cron(w.log)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	job := cron.FuncJob(func() { w.tick(ctx) })
	id, err := c.AddJob(fmt.Sprintf("@every %s", w.interval), job)
	if err != nil {
		return fmt.Errorf("watchdog: schedule: %w", err)
	}
	w.cron = c

	// The wrapped job shares SkipIfStillRunning with the schedule, so the
	// first tick cannot overlap this sweep.
	first := c.Entry(id).WrappedJob
	w.startup.Add(1)
	go func() {
		defer w.startup.Done()
		first.Run()
	}()
	c.Start()
	w.log.Info("watchdog started", "interval", w.interval.String())
	return nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (w *Watchdog) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		w.startup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.Sweep(ctx)
	if err != nil {
		w.log.Error("sweep failed", "err", err)
		return
	}
	if res.Found > 0 {
		w.log.Debug("sweep done", "found", res.Found, "expired", res.Expired, "skipped", res.Skipped, "failed", res.Failed)
	}
}
