// Package pending buffers call invites for staff who have no live connection.
//
// Entries are keyed by (staff, call). Enqueueing an existing call refreshes its
// timestamp and moves it to the newest position. Each staff queue is bounded;
// the oldest entries are evicted first.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const DefaultCapacity = 10

var ErrInvalidInput = errors.New("pending: invalid input")

type Notification struct {
	CallID   string          `json:"callId"`
	Payload  json.RawMessage `json:"payload"`
	QueuedAt time.Time       `json:"queuedAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, staffID string, n Notification) error
	// Drain removes and returns every entry for staffID, oldest first.
	Drain(ctx context.Context, staffID string) ([]Notification, error)
	Remove(ctx context.Context, staffID, callID string) error
}

func validate(staffID string, n Notification) error {
	if staffID == "" || n.CallID == "" {
		return ErrInvalidInput
	}
	return nil
}
