package calls

import (
	"context"
	"time"
)

// Store is the persistence contract for calls and participants.
//
// Transition is the only way to change a call's status. It is a single
// conditional write: the update applies only if the current status is one of
// from, otherwise it returns *GuardError (or ErrNotFound) and writes nothing.
type Store interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	Transition(ctx context.Context, id string, from []Status, u Update) (Call, error)
	AttachSessionDescription(ctx context.Context, id string, allowed []Status, sd SessionDescription) (Call, error)

	// FindRinging returns ringing calls whose ring window closed at or before at.
	FindRinging(ctx context.Context, at time.Time) ([]Call, error)
	List(ctx context.Context, f ListFilter) ([]Call, error)

	AddParticipant(ctx context.Context, p Participant) (Participant, error)
	AppendQualitySample(ctx context.Context, callID, userID string, s QualitySample) error
	MarkParticipantLeft(ctx context.Context, callID, userID string, at time.Time) error
	Participants(ctx context.Context, callID string) ([]Participant, error)
}

func validateNew(c Call) error {
	if c.ID == "" || c.OrgID == "" || c.CreatedBy == "" {
		return ErrInvalidArgument
	}
	if c.Status != StatusInitiated && c.Status != StatusRinging {
		return ErrInvalidArgument
	}
	if c.AcceptedBy != "" {
		return ErrInvalidArgument
	}
	return nil
}

func validateUpdate(from []Status, u Update) error {
	if len(from) == 0 || !u.Status.Valid() || u.At.IsZero() {
		return ErrInvalidArgument
	}
	for _, f := range from {
		if !CanTransition(f, u.Status) {
			return ErrInvalidArgument
		}
	}
	if u.Status == StatusAccepted && u.AcceptedBy == "" {
		return ErrInvalidArgument
	}
	return nil
}
