package routing

// Decision is the output of the routing policy for one new call.
//
// It carries only what the coordinator needs to ring staff. No transport or
// storage detail belongs here.
type Decision struct {
	OrgID string `json:"org_id"`

	Action     Action   `json:"action"`
	Candidates []string `json:"candidates,omitempty"`

	// Reason is optional and intended for logs and the missed call record.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionRing Action = "ring"
	ActionMiss Action = "miss"
)

const (
	ReasonNoStaff          = "no staff available"
	ReasonTargetUnavailable = "target staff unavailable"
	ReasonSelected         = "selected"
	ReasonTargeted         = "targeted"
	ReasonBroadcast        = "broadcast"
)
