package calls

import (
	"context"
	"log/slog"
	"time"

	"signaling-platform/internal/failover"
)

// FailoverStore serves calls from a durable Store and falls back to a
// MemoryStore once the durable side fails twice in a row. Every durable write
// that succeeds is mirrored into memory so nothing acknowledged is lost when
// the switch flips. A nil primary runs on memory from the start.
type FailoverStore struct {
	primary Store
	shadow  *MemoryStore
	sw      *failover.Switch
}

func NewFailoverStore(primary Store, shadow *MemoryStore, log *slog.Logger, timeout time.Duration) *FailoverStore {
	if shadow == nil {
		shadow = NewMemoryStore()
	}
	return &FailoverStore{
		primary: primary,
		shadow:  shadow,
		sw: failover.New("calls", log, failover.Options{
			Timeout:       timeout,
			IsDomain:      IsDomainError,
			StartDegraded: primary == nil,
		}),
	}
}

func (s *FailoverStore) Degraded() bool { return s.sw.Degraded() }

func (s *FailoverStore) Create(ctx context.Context, c Call) error {
	return failover.Exec(ctx, s.sw, "create",
		func(ctx context.Context) error {
			if err := s.primary.Create(ctx, c); err != nil {
				return err
			}
			s.shadow.Put(c)
			return nil
		},
		func(ctx context.Context) error { return s.shadow.Create(ctx, c) },
	)
}

func (s *FailoverStore) Get(ctx context.Context, id string) (Call, error) {
	return failover.Run(ctx, s.sw, "get",
		func(ctx context.Context) (Call, error) { return s.mirror(s.primary.Get(ctx, id)) },
		func(ctx context.Context) (Call, error) { return s.shadow.Get(ctx, id) },
	)
}

func (s *FailoverStore) Transition(ctx context.Context, id string, from []Status, u Update) (Call, error) {
	return failover.Run(ctx, s.sw, "transition",
		func(ctx context.Context) (Call, error) { return s.mirror(s.primary.Transition(ctx, id, from, u)) },
		func(ctx context.Context) (Call, error) { return s.shadow.Transition(ctx, id, from, u) },
	)
}

func (s *FailoverStore) AttachSessionDescription(ctx context.Context, id string, allowed []Status, sd SessionDescription) (Call, error) {
	return failover.Run(ctx, s.sw, "attach_sdp",
		func(ctx context.Context) (Call, error) {
			return s.mirror(s.primary.AttachSessionDescription(ctx, id, allowed, sd))
		},
		func(ctx context.Context) (Call, error) { return s.shadow.AttachSessionDescription(ctx, id, allowed, sd) },
	)
}

func (s *FailoverStore) FindRinging(ctx context.Context, at time.Time) ([]Call, error) {
	return failover.Run(ctx, s.sw, "find_ringing",
		func(ctx context.Context) ([]Call, error) { return s.primary.FindRinging(ctx, at) },
		func(ctx context.Context) ([]Call, error) { return s.shadow.FindRinging(ctx, at) },
	)
}

func (s *FailoverStore) List(ctx context.Context, f ListFilter) ([]Call, error) {
	return failover.Run(ctx, s.sw, "list",
		func(ctx context.Context) ([]Call, error) { return s.primary.List(ctx, f) },
		func(ctx context.Context) ([]Call, error) { return s.shadow.List(ctx, f) },
	)
}

func (s *FailoverStore) AddParticipant(ctx context.Context, p Participant) (Participant, error) {
	return failover.Run(ctx, s.sw, "add_participant",
		func(ctx context.Context) (Participant, error) {
			out, err := s.primary.AddParticipant(ctx, p)
			if err == nil {
				s.shadow.PutParticipant(out)
			}
			return out, err
		},
		func(ctx context.Context) (Participant, error) { return s.shadow.AddParticipant(ctx, p) },
	)
}

func (s *FailoverStore) AppendQualitySample(ctx context.Context, callID, userID string, q QualitySample) error {
	return failover.Exec(ctx, s.sw, "append_quality",
		func(ctx context.Context) error {
			if err := s.primary.AppendQualitySample(ctx, callID, userID, q); err != nil {
				return err
			}
			_ = s.shadow.AppendQualitySample(ctx, callID, userID, q)
			return nil
		},
		func(ctx context.Context) error { return s.shadow.AppendQualitySample(ctx, callID, userID, q) },
	)
}

func (s *FailoverStore) MarkParticipantLeft(ctx context.Context, callID, userID string, at time.Time) error {
	return failover.Exec(ctx, s.sw, "participant_left",
		func(ctx context.Context) error {
			if err := s.primary.MarkParticipantLeft(ctx, callID, userID, at); err != nil {
				return err
			}
			_ = s.shadow.MarkParticipantLeft(ctx, callID, userID, at)
			return nil
		},
		func(ctx context.Context) error { return s.shadow.MarkParticipantLeft(ctx, callID, userID, at) },
	)
}

func (s *FailoverStore) Participants(ctx context.Context, callID string) ([]Participant, error) {
	return failover.Run(ctx, s.sw, "participants",
		func(ctx context.Context) ([]Participant, error) { return s.primary.Participants(ctx, callID) },
		func(ctx context.Context) ([]Participant, error) { return s.shadow.Participants(ctx, callID) },
	)
}

func (s *FailoverStore) mirror(c Call, err error) (Call, error) {
	if err == nil {
		s.shadow.Put(c)
	}
	return c, err
}
