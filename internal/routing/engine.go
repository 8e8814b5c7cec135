package routing

import (
	"context"

	"signaling-platform/internal/availability"
)

// Engine decides which staff a new call rings.
//
// Returns a decision only. No side effects (no writes, no notifications).
// Multi-tenancy: in.OrgID must always be set.
type Engine interface {
	Route(ctx context.Context, in RouteInput) (Decision, error)
}

// AvailabilitySource is the slice of the availability registry routing reads.
// *availability.Registry satisfies it.
type AvailabilitySource interface {
	FindAvailable(ctx context.Context, orgID string, skills []string) ([]availability.Availability, error)
	Get(ctx context.Context, userID, orgID string) (availability.Availability, error)
}

type RouteInput struct {
	OrgID string

	// TargetStaffID asks for one specific staff member.
	TargetStaffID string

	// Skills every candidate must hold.
	Skills []string
}

type Strategy string

const (
	// StrategyHead rings the most recently available staff member only.
	StrategyHead Strategy = "head"
	// StrategyBroadcast rings every available staff member; the first accept wins.
	StrategyBroadcast Strategy = "broadcast"
)

func ParseStrategy(v string) Strategy {
	if Strategy(v) == StrategyBroadcast {
		return StrategyBroadcast
	}
	return StrategyHead
}
