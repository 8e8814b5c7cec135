package coordinator

import (
	"context"
	"slices"

	"signaling-platform/internal/calls"
)

// CallView is a call plus whoever joined its channel.
type CallView struct {
	Call         calls.Call          `json:"call"`
	Participants []calls.Participant `json:"participants"`
}

func (c *Coordinator) View(ctx context.Context, callID string) (CallView, error) {
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return CallView{}, err
	}
	ps, err := c.store.Participants(ctx, callID)
	if err != nil {
		return CallView{}, err
	}
	return CallView{Call: call, Participants: ps}, nil
}

// member reports whether userID belongs on the call: its client, a candidate,
// or the staff member who accepted it.
func member(call calls.Call, userID string) bool {
	return userID == call.CreatedBy || userID == call.AcceptedBy || slices.Contains(call.Candidates, userID)
}

// RecordSessionDescription stores an offer or answer on a live call.
// Relaying the description to the peer is the transport's job.
func (c *Coordinator) RecordSessionDescription(ctx context.Context, callID, userID string, sd calls.SessionDescription) (calls.Call, error) {
	if err := sd.Validate(); err != nil {
		return calls.Call{}, err
	}
	if sd.SchemaVersion == 0 {
		sd.SchemaVersion = calls.SessionDescriptionSchemaVersion
	}
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if !member(call, userID) {
		return calls.Call{}, ErrUnauthorized
	}
	return c.store.AttachSessionDescription(ctx, callID, []calls.Status{calls.StatusRinging, calls.StatusAccepted}, sd)
}

type JoinResult struct {
	Call        calls.Call        `json:"call"`
	Participant calls.Participant `json:"participant"`
}

// Join records userID as a participant. The returned call carries any stored
// offer and answer so a late joiner can catch up.
func (c *Coordinator) Join(ctx context.Context, callID, userID string, role calls.ParticipantRole) (JoinResult, error) {
	if callID == "" || userID == "" {
		return JoinResult{}, ErrInvalidRequest
	}
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return JoinResult{}, err
	}
	if !member(call, userID) {
		return JoinResult{}, ErrUnauthorized
	}
	if call.Status.Terminal() {
		return JoinResult{}, &calls.GuardError{
			CallID:   call.ID,
			Current:  call.Status,
			Expected: []calls.Status{calls.StatusRinging, calls.StatusAccepted},
		}
	}
	p, err := c.store.AddParticipant(ctx, calls.Participant{
		ID:       c.newID(),
		CallID:   callID,
		UserID:   userID,
		Role:     role,
		JoinedAt: c.clock().UTC(),
	})
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Call: call, Participant: p}, nil
}

// RecordQuality appends a client-reported sample to the participant row.
func (c *Coordinator) RecordQuality(ctx context.Context, callID, userID string, s calls.QualitySample) error {
	if callID == "" || userID == "" {
		return ErrInvalidRequest
	}
	if s.At.IsZero() {
		s.At = c.clock().UTC()
	}
	return c.store.AppendQualitySample(ctx, callID, userID, s)
}

func (c *Coordinator) Leave(ctx context.Context, callID, userID string) error {
	return c.store.MarkParticipantLeft(ctx, callID, userID, c.clock().UTC())
}
