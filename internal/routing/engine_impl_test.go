package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"signaling-platform/internal/availability"
)

func registryWith(t *testing.T, rows ...availability.Availability) *availability.Registry {
	t.Helper()
	repo := availability.NewMemoryRepo()
	for _, a := range rows {
		if _, err := repo.Upsert(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return availability.NewRegistry(repo)
}

var base = time.Unix(1700000000, 0).UTC()

func staff(id string, status availability.Status, age time.Duration, skills ...string) availability.Availability {
	return availability.Availability{UserID: id, OrgID: "default", Status: status, Skills: skills, UpdatedAt: base.Add(-age)}
}

func TestPolicy_HeadPicksMostRecentlyAvailable(t *testing.T) {
	reg := registryWith(t,
		staff("s1", availability.StatusAvailable, 2*time.Second),
		staff("s2", availability.StatusAvailable, time.Second),
		staff("s3", availability.StatusBusy, 0),
	)
	d, err := NewPolicy(reg, StrategyHead).Route(context.Background(), RouteInput{OrgID: "default"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionRing || len(d.Candidates) != 1 || d.Candidates[0] != "s2" {
		t.Fatalf("expected ring s2, got %+v", d)
	}
}

func TestPolicy_BroadcastRingsEveryone(t *testing.T) {
	reg := registryWith(t,
		staff("s1", availability.StatusAvailable, 2*time.Second),
		staff("s2", availability.StatusAvailable, time.Second),
	)
	d, _ := NewPolicy(reg, StrategyBroadcast).Route(context.Background(), RouteInput{OrgID: "default"})
	if len(d.Candidates) != 2 || d.Candidates[0] != "s2" || d.Candidates[1] != "s1" {
		t.Fatalf("expected [s2 s1], got %+v", d.Candidates)
	}
}

func TestPolicy_NoStaffMisses(t *testing.T) {
	reg := registryWith(t, staff("s1", availability.StatusAway, 0))
	d, err := NewPolicy(reg, StrategyHead).Route(context.Background(), RouteInput{OrgID: "default"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionMiss || d.Reason != ReasonNoStaff || len(d.Candidates) != 0 {
		t.Fatalf("expected miss, got %+v", d)
	}
}

func TestPolicy_ExplicitTarget(t *testing.T) {
	reg := registryWith(t,
		staff("s1", availability.StatusAvailable, 0, "billing"),
		staff("s2", availability.StatusBusy, 0),
	)
	p := NewPolicy(reg, StrategyHead)

	d, _ := p.Route(context.Background(), RouteInput{OrgID: "default", TargetStaffID: "s1", Skills: []string{"billing"}})
	if d.Action != ActionRing || d.Candidates[0] != "s1" {
		t.Fatalf("expected ring s1, got %+v", d)
	}
	for _, target := range []string{"s2", "ghost"} {
		d, err := p.Route(context.Background(), RouteInput{OrgID: "default", TargetStaffID: target})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if d.Action != ActionMiss || d.Reason != ReasonTargetUnavailable {
			t.Fatalf("target %s: expected miss, got %+v", target, d)
		}
	}
}

func TestPolicy_SkillsFilter(t *testing.T) {
	reg := registryWith(t,
		staff("s1", availability.StatusAvailable, 0),
		staff("s2", availability.StatusAvailable, time.Second, "spanish"),
	)
	d, _ := NewPolicy(reg, StrategyHead).Route(context.Background(), RouteInput{OrgID: "default", Skills: []string{"spanish"}})
	if d.Candidates[0] != "s2" {
		t.Fatalf("expected s2, got %+v", d)
	}
}

func TestPolicy_OrgRequired(t *testing.T) {
	_, err := NewPolicy(registryWith(t), StrategyHead).Route(context.Background(), RouteInput{})
	if !errors.Is(err, ErrOrgRequired) {
		t.Fatalf("expected org required, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	if ParseStrategy("broadcast") != StrategyBroadcast || ParseStrategy("nonsense") != StrategyHead {
		t.Fatalf("unexpected strategy parsing")
	}
}
