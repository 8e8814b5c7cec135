// Package publisher mirrors call state changes onto an MQTT broker so
// dashboards and other services can follow calls without polling.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher defines the interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// CallState is the retained-free payload published for each transition.
type CallState struct {
	CallID     string    `json:"callId"`
	OrgID      string    `json:"orgId"`
	State      string    `json:"state"`
	StaffID    string    `json:"staffId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CallStateTopic returns <prefix>/calls/<callID>/state.
func CallStateTopic(prefix, callID string) string {
	return fmt.Sprintf("%s/calls/%s/state", prefix, callID)
}

// PublishCallState encodes s and publishes it under prefix.
func PublishCallState(ctx context.Context, p Publisher, prefix string, s CallState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding call state: %w", err)
	}
	return p.Publish(ctx, CallStateTopic(prefix, s.CallID), payload)
}
