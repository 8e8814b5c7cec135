package calls

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotFound          = errors.New("calls: not found")
	ErrConflict          = errors.New("calls: conflict")
	ErrInvalidTransition = errors.New("calls: invalid transition")
	ErrInvalidArgument   = errors.New("calls: invalid argument")
)

// GuardError is returned when a conditional write found the call in a status
// outside the expected set. No write was performed.
//
// It matches ErrInvalidTransition. It also matches ErrConflict when the writer
// expected a ringing call and someone else already resolved it: that is a lost
// race, not a caller mistake.
type GuardError struct {
	CallID   string
	Current  Status
	Expected []Status
}

func (e *GuardError) Error() string {
	exp := make([]string, 0, len(e.Expected))
	for _, s := range e.Expected {
		exp = append(exp, string(s))
	}
	return fmt.Sprintf("calls: call %s is %s, expected %s", e.CallID, e.Current, strings.Join(exp, "|"))
}

func (e *GuardError) Is(target error) bool {
	switch target {
	case ErrInvalidTransition:
		return true
	case ErrConflict:
		return e.AlreadyResolved()
	}
	return false
}

// AlreadyResolved reports whether the call moved past ringing before this write.
func (e *GuardError) AlreadyResolved() bool {
	if !slices.Contains(e.Expected, StatusRinging) {
		return false
	}
	return e.Current != StatusRinging && e.Current != StatusInitiated
}

// IsDomainError reports outcomes a healthy store can return.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidArgument)
}
