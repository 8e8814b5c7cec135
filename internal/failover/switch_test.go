package failover

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var errDomain = errors.New("not found")

func newSwitch(buf *bytes.Buffer) *Switch {
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return New("calls", log, Options{
		Timeout:  50 * time.Millisecond,
		IsDomain: func(err error) bool { return errors.Is(err, errDomain) },
	})
}

func TestRun_SuccessStaysOnPrimary(t *testing.T) {
	var buf bytes.Buffer
	s := newSwitch(&buf)

	v, err := Run(context.Background(), s, "get",
		func(context.Context) (string, error) { return "durable", nil },
		func(context.Context) (string, error) { return "memory", nil },
	)
	if err != nil || v != "durable" {
		t.Fatalf("expected durable result, got %q %v", v, err)
	}
	if s.Degraded() {
		t.Fatalf("expected healthy switch")
	}
}

func TestRun_RetriesOnceThenSucceeds(t *testing.T) {
	var buf bytes.Buffer
	s := newSwitch(&buf)

	calls := 0
	v, err := Run(context.Background(), s, "get",
		func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("connection reset")
			}
			return 7, nil
		},
		func(context.Context) (int, error) { return -1, nil },
	)
	if err != nil || v != 7 {
		t.Fatalf("expected retry to succeed, got %d %v", v, err)
	}
	if calls != 2 || s.Degraded() {
		t.Fatalf("expected exactly one retry without degrading, calls=%d", calls)
	}
}

func TestRun_DegradesPermanentlyAndLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	s := newSwitch(&buf)

	primaryCalls := 0
	primary := func(context.Context) (string, error) {
		primaryCalls++
		return "", errors.New("dial tcp: refused")
	}
	fallback := func(context.Context) (string, error) { return "memory", nil }

	for i := 0; i < 3; i++ {
		v, err := Run(context.Background(), s, "get", primary, fallback)
		if err != nil || v != "memory" {
			t.Fatalf("expected fallback result, got %q %v", v, err)
		}
	}
	if primaryCalls != 2 {
		t.Fatalf("expected primary tried twice in total, got %d", primaryCalls)
	}
	if !s.Degraded() || s.Cause() == nil {
		t.Fatalf("expected degraded switch with cause")
	}
	if n := strings.Count(buf.String(), "serving from volatile memory"); n != 1 {
		t.Fatalf("expected degrade logged once, got %d", n)
	}
}

func TestRun_DomainErrorsDoNotDegrade(t *testing.T) {
	var buf bytes.Buffer
	s := newSwitch(&buf)

	_, err := Run(context.Background(), s, "get",
		func(context.Context) (string, error) { return "", errDomain },
		func(context.Context) (string, error) { return "memory", nil },
	)
	if !errors.Is(err, errDomain) {
		t.Fatalf("expected domain error passed through, got %v", err)
	}
	if s.Degraded() {
		t.Fatalf("domain error must not degrade")
	}
}

func TestRun_TimeoutCountsAsFailure(t *testing.T) {
	var buf bytes.Buffer
	s := newSwitch(&buf)

	v, err := Run(context.Background(), s, "get",
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		func(context.Context) (string, error) { return "memory", nil },
	)
	if err != nil || v != "memory" {
		t.Fatalf("expected fallback after timeouts, got %q %v", v, err)
	}
	if !s.Degraded() {
		t.Fatalf("expected degraded after two timeouts")
	}
}

func TestNew_StartDegraded(t *testing.T) {
	s := New("availability", nil, Options{StartDegraded: true})
	if !s.Degraded() {
		t.Fatalf("expected degraded from start")
	}
	err := Exec(context.Background(), s, "put",
		func(context.Context) error { t.Fatalf("primary must not run"); return nil },
		func(context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
