package audit

import (
	"context"
	"testing"

	"signaling-platform/internal/auth"
)

func TestService_AppendRequiresOrgAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeCallTransition}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{OrgID: "o"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_LogTransitionCapturesContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "s1", OrgID: "default", Role: "staff"})
	ctx = WithClientIP(ctx, "1.2.3.4")
	err := svc.LogTransition(ctx, Transition{OrgID: "default", CallID: "c1", From: "ringing", To: "accepted", ActorUserID: "s1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" || e.ActorRole != "staff" {
		t.Fatalf("expected ip and role captured, got %+v", e)
	}
	if e.Type != EventTypeCallTransition || e.FromStatus != "ringing" || e.ToStatus != "accepted" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_LogAvailabilityChange(t *testing.T) {
	repo := NewMemoryRepo()
	if err := NewService(repo).LogAvailabilityChange(context.Background(), "default", "s1", "away"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evs := repo.Events(); len(evs) != 1 || evs[0].Type != EventTypeAvailabilityChange || evs[0].ToStatus != "away" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestService_CallHistoryScopedByOrg(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	_ = svc.LogTransition(ctx, Transition{OrgID: "default", CallID: "c1", To: "ringing"})
	_ = svc.LogTransition(ctx, Transition{OrgID: "default", CallID: "c2", To: "ringing"})
	_ = svc.LogTransition(ctx, Transition{OrgID: "default", CallID: "c1", From: "ringing", To: "accepted"})
	_ = svc.LogTransition(ctx, Transition{OrgID: "acme", CallID: "c1", To: "ringing"})

	evs, err := svc.CallHistory(ctx, "default", "c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(evs) != 2 || evs[0].ToStatus != "ringing" || evs[1].ToStatus != "accepted" {
		t.Fatalf("unexpected history: %+v", evs)
	}
	if _, err := svc.CallHistory(ctx, "", "c1"); err == nil {
		t.Fatalf("expected error without org")
	}
}
