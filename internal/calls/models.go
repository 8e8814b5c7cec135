package calls

import (
	"errors"
	"slices"
	"time"
)

// Call is one client-to-staff session. Rows are never deleted.
//
// Invariants:
// - AcceptedBy is set only once the call reached accepted.
// - RingExpiresAt is fixed at creation.
// - Status only moves forward; terminal statuses have no outgoing transition.
type Call struct {
	ID         string   `json:"id" db:"id"`
	OrgID      string   `json:"org_id" db:"org_id"`
	Status     Status   `json:"status" db:"status"`
	CreatedBy  string   `json:"created_by" db:"created_by_user_id"`
	AcceptedBy string   `json:"accepted_by,omitempty" db:"accepted_by_user_id"`
	Candidates []string `json:"candidates,omitempty" db:"candidates"`

	Reason  string `json:"reason,omitempty" db:"reason"`
	EndedBy string `json:"ended_by,omitempty" db:"ended_by_user_id"`

	Metadata  Metadata            `json:"metadata" db:"metadata"`
	Offer     *SessionDescription `json:"offer,omitempty" db:"offer"`
	Answer    *SessionDescription `json:"answer,omitempty" db:"answer"`
	Analytics Analytics           `json:"analytics" db:"-"`

	RingExpiresAt time.Time  `json:"ring_expires_at" db:"ring_expires_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCanceled  Status = "canceled"
	StatusMissed    Status = "missed"
	StatusEnded     Status = "ended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusRinging, StatusAccepted, StatusDeclined, StatusCanceled, StatusMissed, StatusEnded:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCanceled, StatusMissed, StatusEnded:
		return true
	default:
		return false
	}
}

// allowed lists every legal edge of the state machine.
var allowed = map[Status][]Status{
	StatusInitiated: {StatusRinging, StatusCanceled, StatusMissed},
	StatusRinging:   {StatusAccepted, StatusDeclined, StatusCanceled, StatusMissed},
	StatusAccepted:  {StatusEnded},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	return slices.Contains(allowed[from], to)
}

// Reaches reports whether to can follow from through zero or more edges.
func Reaches(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowed[from] {
		if Reaches(next, to) {
			return true
		}
	}
	return false
}

const MetadataSchemaVersion = 1

// Metadata is the versioned, client-supplied context of a call.
type Metadata struct {
	SchemaVersion int      `json:"schema_version"`
	Department    string   `json:"department,omitempty"`
	Purpose       string   `json:"purpose,omitempty"`
	ClientName    string   `json:"client_name,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

const SessionDescriptionSchemaVersion = 1

// SessionDescription is stored and relayed verbatim; the SDP body is never parsed.
type SessionDescription struct {
	SchemaVersion int     `json:"schema_version"`
	Type          SDPType `json:"type"`
	SDP           string  `json:"sdp"`
}

var ErrInvalidSessionDescription = errors.New("calls: invalid session description")

func (sd SessionDescription) Validate() error {
	if sd.Type != SDPOffer && sd.Type != SDPAnswer {
		return ErrInvalidSessionDescription
	}
	if sd.SDP == "" {
		return ErrInvalidSessionDescription
	}
	return nil
}

// Analytics are derived when the call is accepted and when it ends.
type Analytics struct {
	RingMillis int64 `json:"ring_ms"`
	TalkMillis int64 `json:"talk_ms"`
}

// Update carries the fields written by one guarded transition.
type Update struct {
	Status     Status
	AcceptedBy string
	EndedBy    string
	Reason     string
	At         time.Time
}

// Apply mutates c as the conditional write would. Stores call it after the guard passed.
func Apply(c *Call, u Update) {
	at := u.At.UTC()
	c.Status = u.Status
	c.UpdatedAt = at
	if u.Reason != "" {
		c.Reason = u.Reason
	}
	switch u.Status {
	case StatusAccepted:
		c.AcceptedBy = u.AcceptedBy
		c.StartedAt = &at
		c.Analytics.RingMillis = at.Sub(c.CreatedAt).Milliseconds()
	case StatusEnded:
		c.EndedAt = &at
		c.EndedBy = u.EndedBy
		if c.StartedAt != nil {
			c.Analytics.TalkMillis = at.Sub(*c.StartedAt).Milliseconds()
		}
	case StatusDeclined, StatusCanceled, StatusMissed:
		c.EndedAt = &at
		if u.EndedBy != "" {
			c.EndedBy = u.EndedBy
		}
	}
}

type ParticipantRole string

const (
	ParticipantClient ParticipantRole = "client"
	ParticipantStaff  ParticipantRole = "staff"
)

// Participant is one side of a call that joined the call channel.
type Participant struct {
	ID       string          `json:"id" db:"id"`
	CallID   string          `json:"call_id" db:"call_id"`
	UserID   string          `json:"user_id" db:"user_id"`
	Role     ParticipantRole `json:"role" db:"role"`
	JoinedAt time.Time       `json:"joined_at" db:"joined_at"`
	LeftAt   *time.Time      `json:"left_at,omitempty" db:"left_at"`
	Samples  []QualitySample `json:"samples,omitempty" db:"quality"`
}

// QualitySample is a client-reported connection measurement.
type QualitySample struct {
	At         time.Time `json:"at"`
	BitrateBps int64     `json:"bitrate_bps"`
	PacketLoss float64   `json:"packet_loss"`
	JitterMs   float64   `json:"jitter_ms"`
	RTTMs      float64   `json:"rtt_ms,omitempty"`
}

// ListFilter narrows List to one org and a creation window [From, To).
type ListFilter struct {
	OrgID string
	From  time.Time
	To    time.Time
}

func (f ListFilter) Match(c Call) bool {
	if f.OrgID != "" && c.OrgID != f.OrgID {
		return false
	}
	if !f.From.IsZero() && c.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
