package realtime

import (
	"encoding/json"
	"time"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result answers one inbound event as "<event>:result".
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	EventInitiate  = "call:initiate"
	EventAccept    = "call:accept"
	EventDecline   = "call:decline"
	EventCancel    = "call:cancel"
	EventEnd       = "call:end"
	EventJoin      = "join:call"
	EventSDPOffer  = "sdp:offer"
	EventSDPAnswer = "sdp:answer"
	EventICE       = "ice:candidate"
	EventStats     = "call:stats"
	EventError     = "error"

	resultSuffix = ":result"
)

type initiateData struct {
	TargetStaffID string   `json:"targetStaffId"`
	Department    string   `json:"department"`
	Purpose       string   `json:"purpose"`
	ClientName    string   `json:"clientName"`
	Skills        []string `json:"skills"`
}

type actionData struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

type sdpData struct {
	CallID string `json:"callId"`
	SDP    string `json:"sdp"`
}

// sdpRelay is what the other side of the call receives.
type sdpRelay struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
	Type   string `json:"type"`
	SDP    string `json:"sdp"`
}

type iceData struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

type iceRelay struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type statsData struct {
	CallID     string    `json:"callId"`
	At         time.Time `json:"at"`
	BitrateBps int64     `json:"bitrate"`
	PacketLoss float64   `json:"packetLoss"`
	JitterMs   float64   `json:"jitter"`
	RTTMs      float64   `json:"rtt"`
}

func encode(event, ref string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Ref: ref, Data: data})
}
