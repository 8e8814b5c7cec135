package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block call flows on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is the user causing the event; empty for the watchdog.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP when the event came through HTTP.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CallID     string `json:"call_id,omitempty" db:"call_id"`
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallTransition     EventType = "call_transition"
	EventTypeAvailabilityChange EventType = "availability_change"
)

// Transition describes one successful call state change.
type Transition struct {
	OrgID       string
	CallID      string
	From        string
	To          string
	ActorUserID string
	Reason      string
}
