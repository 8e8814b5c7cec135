package calls

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the volatile Store. It serves tests, deployments without a
// database, and the shadow copy behind FailoverStore. The mutex makes each
// guarded transition atomic, which is all the race-safe accept needs.
type MemoryStore struct {
	mu           sync.Mutex
	calls        map[string]Call
	participants map[string][]Participant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:        map[string]Call{},
		participants: map[string][]Participant{},
	}
}

func (s *MemoryStore) Create(ctx context.Context, c Call) error {
	if err := validateNew(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; ok {
		return ErrConflict
	}
	s.calls[c.ID] = cloneCall(c)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return cloneCall(c), nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from []Status, u Update) (Call, error) {
	if err := validateUpdate(from, u); err != nil {
		return Call{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if !slices.Contains(from, c.Status) {
		return Call{}, &GuardError{CallID: id, Current: c.Status, Expected: from}
	}
	Apply(&c, u)
	s.calls[id] = c
	return cloneCall(c), nil
}

func (s *MemoryStore) AttachSessionDescription(ctx context.Context, id string, allowed []Status, sd SessionDescription) (Call, error) {
	if err := sd.Validate(); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if !slices.Contains(allowed, c.Status) {
		return Call{}, &GuardError{CallID: id, Current: c.Status, Expected: allowed}
	}
	d := sd
	if sd.Type == SDPOffer {
		c.Offer = &d
	} else {
		c.Answer = &d
	}
	s.calls[id] = c
	return cloneCall(c), nil
}

func (s *MemoryStore) FindRinging(ctx context.Context, at time.Time) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if c.Status == StatusRinging && !c.RingExpiresAt.After(at) {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RingExpiresAt.Before(out[j].RingExpiresAt) })
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if f.Match(c) {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Put stores a copy of a durable record. A record behind the stored one
// (earlier status, or same status with an older UpdatedAt) is ignored, so a
// slow read cannot roll the copy back past a write that already landed.
func (s *MemoryStore) Put(c Call) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.calls[c.ID]; ok {
		if !Reaches(cur.Status, c.Status) {
			return false
		}
		if cur.Status == c.Status {
			if c.UpdatedAt.Before(cur.UpdatedAt) {
				return false
			}
			// session descriptions are attached without bumping UpdatedAt
			if c.Offer == nil {
				c.Offer = cur.Offer
			}
			if c.Answer == nil {
				c.Answer = cur.Answer
			}
		}
	}
	s.calls[c.ID] = cloneCall(c)
	return true
}

func (s *MemoryStore) AddParticipant(ctx context.Context, p Participant) (Participant, error) {
	if p.CallID == "" || p.UserID == "" {
		return Participant{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[p.CallID]
	if !ok {
		return Participant{}, ErrNotFound
	}
	if call.Status.Terminal() {
		return Participant{}, &GuardError{CallID: p.CallID, Current: call.Status, Expected: []Status{StatusRinging, StatusAccepted}}
	}
	list := s.participants[p.CallID]
	for i := range list {
		if list[i].UserID == p.UserID {
			list[i].LeftAt = nil
			return cloneParticipant(list[i]), nil
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	s.participants[p.CallID] = append(list, cloneParticipant(p))
	return cloneParticipant(p), nil
}

// PutParticipant stores p unconditionally, keyed by call and user.
func (s *MemoryStore) PutParticipant(p Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[p.CallID]
	for i := range list {
		if list[i].UserID == p.UserID {
			list[i] = cloneParticipant(p)
			return
		}
	}
	s.participants[p.CallID] = append(list, cloneParticipant(p))
}

func (s *MemoryStore) AppendQualitySample(ctx context.Context, callID, userID string, q QualitySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[callID]
	for i := range list {
		if list[i].UserID == userID {
			list[i].Samples = append(list[i].Samples, q)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkParticipantLeft(ctx context.Context, callID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[callID]
	for i := range list {
		if list[i].UserID == userID {
			t := at.UTC()
			list[i].LeftAt = &t
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Participants(ctx context.Context, callID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[callID]
	out := make([]Participant, 0, len(list))
	for _, p := range list {
		out = append(out, cloneParticipant(p))
	}
	return out, nil
}

func cloneCall(c Call) Call {
	out := c
	out.Candidates = slices.Clone(c.Candidates)
	out.Metadata.Skills = slices.Clone(c.Metadata.Skills)
	if c.Offer != nil {
		o := *c.Offer
		out.Offer = &o
	}
	if c.Answer != nil {
		a := *c.Answer
		out.Answer = &a
	}
	if c.StartedAt != nil {
		t := *c.StartedAt
		out.StartedAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return out
}

func cloneParticipant(p Participant) Participant {
	out := p
	out.Samples = slices.Clone(p.Samples)
	if p.LeftAt != nil {
		t := *p.LeftAt
		out.LeftAt = &t
	}
	return out
}
