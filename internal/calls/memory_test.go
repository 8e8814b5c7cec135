package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0).UTC()

func ringingCall(id string) Call {
	return Call{
		ID:            id,
		OrgID:         "default",
		Status:        StatusRinging,
		CreatedBy:     "c1",
		Candidates:    []string{"s1"},
		RingExpiresAt: t0.Add(45 * time.Second),
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

func TestMemoryStore_CreateRejectsDuplicateID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, ringingCall("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, ringingCall("a")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_TransitionGuard(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))

	c, err := s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: "s1", At: t0.Add(time.Second)})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if c.Status != StatusAccepted || c.AcceptedBy != "s1" {
		t.Fatalf("unexpected call: %+v", c)
	}

	_, err = s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusMissed, At: t0.Add(50 * time.Second)})
	var ge *GuardError
	if !errors.As(err, &ge) || ge.Current != StatusAccepted {
		t.Fatalf("expected guard error with current accepted, got %v", err)
	}

	got, _ := s.Get(ctx, "a")
	if got.Status != StatusAccepted {
		t.Fatalf("failed guard must not write, status %s", got.Status)
	}
}

func TestMemoryStore_TransitionRejectsIllegalEdge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))

	if _, err := s.Transition(ctx, "a", []Status{StatusEnded}, Update{Status: StatusAccepted, AcceptedBy: "s1", At: t0}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for illegal edge, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAcceptHasOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		id := fmt.Sprintf("call-%d", round)
		_ = s.Create(ctx, ringingCall(id))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			winners   []string
			conflicts int
		)
		for i := 0; i < 8; i++ {
			staff := fmt.Sprintf("s%d", i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Transition(ctx, id, []Status{StatusRinging}, Update{Status: StatusAccepted, AcceptedBy: staff, At: t0.Add(time.Second)})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, staff)
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected err: %v", err)
				}
			}()
		}
		wg.Wait()

		if len(winners) != 1 || conflicts != 7 {
			t.Fatalf("round %d: expected one winner and 7 conflicts, got %v and %d", round, winners, conflicts)
		}
		got, _ := s.Get(ctx, id)
		if got.AcceptedBy != winners[0] {
			t.Fatalf("stored accepter %q does not match winner %q", got.AcceptedBy, winners[0])
		}
	}
}

func TestMemoryStore_FindRingingHonorsExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))
	later := ringingCall("b")
	later.RingExpiresAt = t0.Add(90 * time.Second)
	_ = s.Create(ctx, later)

	due, _ := s.FindRinging(ctx, t0.Add(44*time.Second))
	if len(due) != 0 {
		t.Fatalf("expected nothing due before expiry, got %d", len(due))
	}
	due, _ = s.FindRinging(ctx, t0.Add(45*time.Second))
	if len(due) != 1 || due[0].ID != "a" {
		t.Fatalf("expected call a due, got %+v", due)
	}
}

func TestMemoryStore_AttachSessionDescription(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))

	c, err := s.AttachSessionDescription(ctx, "a", []Status{StatusRinging, StatusAccepted}, SessionDescription{Type: SDPOffer, SDP: "v=0"})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if c.Offer == nil || c.Offer.SDP != "v=0" || c.Answer != nil {
		t.Fatalf("unexpected sdp state: %+v", c)
	}

	_, _ = s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusCanceled, At: t0})
	if _, err := s.AttachSessionDescription(ctx, "a", []Status{StatusRinging, StatusAccepted}, SessionDescription{Type: SDPAnswer, SDP: "v=0"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected guard failure on canceled call, got %v", err)
	}
}

func TestMemoryStore_Participants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))

	if _, err := s.AddParticipant(ctx, Participant{CallID: "missing", UserID: "c1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown call, got %v", err)
	}

	p, err := s.AddParticipant(ctx, Participant{CallID: "a", UserID: "c1", Role: ParticipantClient, JoinedAt: t0})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	again, _ := s.AddParticipant(ctx, Participant{CallID: "a", UserID: "c1", Role: ParticipantClient})
	if again.ID != p.ID {
		t.Fatalf("expected rejoin to reuse participant row")
	}
	if err := s.AppendQualitySample(ctx, "a", "c1", QualitySample{At: t0, BitrateBps: 64000}); err != nil {
		t.Fatalf("sample: %v", err)
	}
	if err := s.MarkParticipantLeft(ctx, "a", "c1", t0.Add(time.Minute)); err != nil {
		t.Fatalf("left: %v", err)
	}
	list, _ := s.Participants(ctx, "a")
	if len(list) != 1 || len(list[0].Samples) != 1 || list[0].LeftAt == nil {
		t.Fatalf("unexpected participants: %+v", list)
	}
}

func TestMemoryStore_ListFiltersByOrgAndWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))
	other := ringingCall("b")
	other.OrgID = "acme"
	_ = s.Create(ctx, other)
	old := ringingCall("c")
	old.CreatedAt = t0.Add(-2 * time.Hour)
	_ = s.Create(ctx, old)

	got, _ := s.List(ctx, ListFilter{OrgID: "default", From: t0.Add(-time.Hour), To: t0.Add(time.Hour)})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestMemoryStore_NoParticipantsOnTerminalCall(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, ringingCall("a"))
	_, _ = s.Transition(ctx, "a", []Status{StatusRinging}, Update{Status: StatusMissed, At: t0})

	if _, err := s.AddParticipant(ctx, Participant{CallID: "a", UserID: "c1", Role: ParticipantClient}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected guard failure, got %v", err)
	}
}
