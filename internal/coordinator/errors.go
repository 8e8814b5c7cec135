package coordinator

import (
	"errors"

	"signaling-platform/internal/calls"
)

var (
	ErrUnauthorized   = errors.New("coordinator: unauthorized")
	ErrInvalidRequest = errors.New("coordinator: invalid request")
)

const (
	ReasonNoStaff     = "no staff available"
	ReasonRingTimeout = "ring timeout"
)

// Code maps an error onto the short code returned to HTTP and websocket callers.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, calls.ErrNotFound):
		return "not_found"
	case errors.Is(err, calls.ErrConflict):
		return "conflict"
	case errors.Is(err, calls.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidSessionDescription):
		return "invalid_request"
	default:
		return "internal"
	}
}
