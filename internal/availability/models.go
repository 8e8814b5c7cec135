package availability

import (
	"errors"
	"fmt"
	"time"
)

// Availability is one staff member's presence within an org.
// Identity is (UserID, OrgID); a write older than the stored UpdatedAt is ignored.
type Availability struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	OrgID     string    `json:"org_id" bson:"org_id"`
	Status    Status    `json:"status" bson:"status"`
	Skills    []string  `json:"skills,omitempty" bson:"skills,omitempty"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusAway      Status = "away"
	StatusOffline   Status = "offline"
)

var (
	ErrNotFound      = errors.New("availability: not found")
	ErrInvalidStatus = errors.New("availability: invalid status")
	ErrInvalidInput  = errors.New("availability: invalid input")
)

func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusAvailable, StatusBusy, StatusAway, StatusOffline:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
}

// HasSkills reports whether a carries every skill in want.
func (a Availability) HasSkills(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Skills))
	for _, s := range a.Skills {
		have[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// newer orders records for FindAvailable: most recently updated first,
// user id as a stable tie-break.
func newer(a, b Availability) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.UserID < b.UserID
}

func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrInvalidInput)
}
