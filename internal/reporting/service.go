package reporting

import (
	"context"
	"errors"
	"time"

	"signaling-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Implementations must enforce org filtering.
type Repository interface {
	ListCalls(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrgID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.OrgID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OrgID: req.OrgID, Range: req.Range}
	var ringTotal, talkTotal int64
	var talked int
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.StatusAccepted:
			out.AcceptedCalls++
		case calls.StatusEnded:
			out.EndedCalls++
		case calls.StatusDeclined:
			out.DeclinedCalls++
		case calls.StatusCanceled:
			out.CanceledCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusRinging:
			out.RingingCalls++
		case calls.StatusInitiated:
			out.InitiatedCalls++
		}
		if c.StartedAt != nil {
			ringTotal += c.Analytics.RingMillis
		}
		if c.Status == calls.StatusEnded && c.StartedAt != nil {
			talkTotal += c.Analytics.TalkMillis
			talked++
		}
	}

	answered := out.AcceptedCalls + out.EndedCalls
	resolved := answered + out.DeclinedCalls + out.CanceledCalls + out.MissedCalls
	if resolved > 0 {
		out.AnswerRate = float64(answered) / float64(resolved)
	}
	if answered > 0 {
		out.AverageRingMillis = ringTotal / int64(answered)
	}
	if talked > 0 {
		out.AverageTalkMillis = talkTotal / int64(talked)
	}
	return out, nil
}
