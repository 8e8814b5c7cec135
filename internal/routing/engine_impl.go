package routing

import (
	"context"
	"errors"

	"signaling-platform/internal/availability"
)

var ErrOrgRequired = errors.New("routing: org_id required")

// Policy evaluates routing for a new call.
//
// Priority:
//  1. Explicit target (must be available, else miss)
//  2. Available staff of the org holding the requested skills
//  3. Strategy: head or broadcast
type Policy struct {
	Staff    AvailabilitySource
	Strategy Strategy
}

func NewPolicy(staff AvailabilitySource, strategy Strategy) *Policy {
	if strategy == "" {
		strategy = StrategyHead
	}
	return &Policy{Staff: staff, Strategy: strategy}
}

func (p *Policy) Route(ctx context.Context, in RouteInput) (Decision, error) {
	if in.OrgID == "" {
		return Decision{}, ErrOrgRequired
	}

	// 1) Explicit target
	if in.TargetStaffID != "" {
		a, err := p.Staff.Get(ctx, in.TargetStaffID, in.OrgID)
		if errors.Is(err, availability.ErrNotFound) {
			return miss(in.OrgID, ReasonTargetUnavailable), nil
		}
		if err != nil {
			return Decision{}, err
		}
		if a.Status != availability.StatusAvailable || !a.HasSkills(in.Skills) {
			return miss(in.OrgID, ReasonTargetUnavailable), nil
		}
		return Decision{OrgID: in.OrgID, Action: ActionRing, Candidates: []string{a.UserID}, Reason: ReasonTargeted}, nil
	}

	// 2) Available staff
	staff, err := p.Staff.FindAvailable(ctx, in.OrgID, in.Skills)
	if err != nil {
		return Decision{}, err
	}
	if len(staff) == 0 {
		return miss(in.OrgID, ReasonNoStaff), nil
	}

	// 3) Strategy
	if p.Strategy == StrategyBroadcast {
		ids := make([]string, 0, len(staff))
		for _, a := range staff {
			ids = append(ids, a.UserID)
		}
		return Decision{OrgID: in.OrgID, Action: ActionRing, Candidates: ids, Reason: ReasonBroadcast}, nil
	}
	return Decision{OrgID: in.OrgID, Action: ActionRing, Candidates: []string{staff[0].UserID}, Reason: ReasonSelected}, nil
}

func miss(orgID, reason string) Decision {
	return Decision{OrgID: orgID, Action: ActionMiss, Reason: reason}
}
