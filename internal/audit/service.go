package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"signaling-platform/internal/auth"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListForCall(ctx context.Context, orgID, callID string) ([]Event, error)
}

// Service logs internal audit information.
//
// Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrgID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if e.ActorRole == "" {
		if id, err := auth.IdentityFrom(ctx); err == nil {
			e.ActorRole = id.Role
		}
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a call status change.
func (s *Service) LogTransition(ctx context.Context, t Transition) error {
	if t.CallID == "" || t.To == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		OrgID:       t.OrgID,
		Type:        EventTypeCallTransition,
		ActorUserID: t.ActorUserID,
		CallID:      t.CallID,
		FromStatus:  t.From,
		ToStatus:    t.To,
		Message:     t.Reason,
	})
}

// LogAvailabilityChange records a staff presence update.
func (s *Service) LogAvailabilityChange(ctx context.Context, orgID, userID, status string) error {
	return s.Append(ctx, Event{
		OrgID:       orgID,
		Type:        EventTypeAvailabilityChange,
		ActorUserID: userID,
		ToStatus:    status,
	})
}

// CallHistory returns every recorded transition of a call, oldest first.
func (s *Service) CallHistory(ctx context.Context, orgID, callID string) ([]Event, error) {
	if orgID == "" || callID == "" {
		return nil, ErrInvalidEvent
	}
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListForCall(ctx, orgID, callID)
}
