// Package failover degrades a durable backend to a volatile one.
//
// A Switch starts healthy (or already degraded when no durable backend was
// configured). Every primary operation runs under a timeout and is retried once
// on an infrastructure error. A second failure flips the switch permanently; it
// is logged once and every later operation goes straight to the fallback.
// Domain outcomes such as "not found" or a failed guard never flip the switch.
package failover

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrStoreUnavailable = errors.New("failover: durable store unavailable")

const DefaultTimeout = 3 * time.Second

type Switch struct {
	name     string
	log      *slog.Logger
	timeout  time.Duration
	isDomain func(error) bool

	degraded atomic.Bool
	once     sync.Once
	cause    atomic.Value // error
}

type Options struct {
	// Timeout bounds a single primary attempt.
	Timeout time.Duration
	// IsDomain reports errors that are valid answers from the primary.
	IsDomain func(error) bool
	// StartDegraded is set when no durable backend exists.
	StartDegraded bool
}

func New(name string, log *slog.Logger, opts Options) *Switch {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.IsDomain == nil {
		opts.IsDomain = func(error) bool { return false }
	}
	s := &Switch{
		name:     name,
		log:      log.With("component", "failover", "store", name),
		timeout:  opts.Timeout,
		isDomain: opts.IsDomain,
	}
	if opts.StartDegraded {
		s.Degrade(ErrStoreUnavailable)
	}
	return s
}

func (s *Switch) Degraded() bool { return s.degraded.Load() }

// Cause returns the error that degraded the switch, if any.
func (s *Switch) Cause() error {
	if v, ok := s.cause.Load().(error); ok {
		return v
	}
	return nil
}

// Degrade flips the switch permanently. Only the first call logs.
func (s *Switch) Degrade(cause error) {
	s.once.Do(func() {
		if cause == nil {
			cause = ErrStoreUnavailable
		}
		s.cause.Store(cause)
		s.degraded.Store(true)
		s.log.Warn("durable store unavailable, serving from volatile memory", "err", cause)
	})
}

// Run executes primary with one retry and falls back once the switch is degraded.
// A query is answered entirely by one backend.
func Run[T any](ctx context.Context, s *Switch, op string, primary, fallback func(context.Context) (T, error)) (T, error) {
	if s.Degraded() {
		return fallback(ctx)
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		v, err := attempt(ctx, s.timeout, primary)
		if err == nil || s.isDomain(err) {
			return v, err
		}
		if ctx.Err() != nil {
			// caller gave up; not evidence the store is down
			var zero T
			return zero, ctx.Err()
		}
		lastErr = err
		s.log.Debug("primary attempt failed", "op", op, "attempt", i+1, "err", err)
	}

	s.Degrade(lastErr)
	return fallback(ctx)
}

// Exec is Run for operations without a result.
func Exec(ctx context.Context, s *Switch, op string, primary, fallback func(context.Context) error) error {
	_, err := Run(ctx, s, op,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, primary(ctx) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, fallback(ctx) },
	)
	return err
}

func attempt[T any](ctx context.Context, timeout time.Duration, primary func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return primary(opCtx)
}
