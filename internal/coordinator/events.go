package coordinator

import "time"

// Room names. Every connection joins its own user room; call rooms are joined
// explicitly through join:call.
func StaffRoom(id string) string  { return "staff:" + id }
func ClientRoom(id string) string { return "client:" + id }
func CallRoom(id string) string   { return "call:" + id }
func OrgRoom(id string) string    { return "org:" + id }

// UserRoom picks the private room for a user by role.
func UserRoom(role, id string) string {
	if role == "client" {
		return ClientRoom(id)
	}
	return StaffRoom(id)
}

const (
	EventInvite = "call:invite"
	EventUpdate = "call:update"
	EventMissed = "call.missed"
)

type ClientInfo struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name,omitempty"`
}

// InvitePayload is sent to a candidate's staff room, or queued when nobody is there.
type InvitePayload struct {
	CallID     string     `json:"callId"`
	ClientInfo ClientInfo `json:"clientInfo"`
	Purpose    string     `json:"purpose,omitempty"`
	Department string     `json:"department,omitempty"`
	Ts         int64      `json:"ts"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

type UpdatePayload struct {
	CallID  string `json:"callId"`
	State   string `json:"state"`
	StaffID string `json:"staffId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type MissedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

