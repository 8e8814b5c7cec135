package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Org isolation: OrgID is required.
type CallsSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`
}

type CallsSummary struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	AcceptedCalls  int `json:"accepted_calls"`
	EndedCalls     int `json:"ended_calls"`
	DeclinedCalls  int `json:"declined_calls"`
	CanceledCalls  int `json:"canceled_calls"`
	MissedCalls    int `json:"missed_calls"`
	RingingCalls   int `json:"ringing_calls"`
	InitiatedCalls int `json:"initiated_calls"`

	// AnswerRate is answered calls over resolved calls.
	AnswerRate float64 `json:"answer_rate"`

	AverageRingMillis int64 `json:"average_ring_ms"`
	AverageTalkMillis int64 `json:"average_talk_ms"`
}
