package models

import (
	"time"

	id "hemolink/pkg/domain"
)

// AttemptOutcome is the resolution of one dispatch-and-await cycle.
type AttemptOutcome string

const (
	OutcomePending  AttemptOutcome = "pending"
	OutcomeAccepted AttemptOutcome = "accepted"
	OutcomeDeclined AttemptOutcome = "declined"
	OutcomeTimedOut AttemptOutcome = "timed_out"
	// OutcomeWithdrawn closes an attempt whose request was cancelled or
	// expired before the donor answered.
	OutcomeWithdrawn AttemptOutcome = "withdrawn"
)

// MatchAttempt records one alert sent to one donor for one request.
// DeliveryFailed distinguishes an undeliverable alert from a silent timeout;
// both resolve as OutcomeTimedOut for fallback purposes.
type MatchAttempt struct {
	ID             id.AttemptID   `json:"id"`
	RequestID      id.RequestID   `json:"request_id"`
	DonorID        id.DonorID     `json:"donor_id"`
	Rank           int            `json:"rank"`
	Score          float64        `json:"score"`
	DispatchedAt   time.Time      `json:"dispatched_at"`
	Deadline       time.Time      `json:"deadline"`
	Outcome        AttemptOutcome `json:"outcome"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	DeliveryFailed bool           `json:"delivery_failed,omitempty"`
}

func (a *MatchAttempt) IsPending() bool {
	return a.Outcome == OutcomePending
}

// Resolve sets the outcome once. It returns false if already resolved.
func (a *MatchAttempt) Resolve(outcome AttemptOutcome, at time.Time) bool {
	if !a.IsPending() {
		return false
	}
	a.Outcome = outcome
	a.ResolvedAt = &at
	return true
}
