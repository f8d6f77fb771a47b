package models

import (
	"time"

	id "hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	StatusPending          RequestStatus = "pending"
	StatusAwaitingResponse RequestStatus = "awaiting_response"
	StatusMatched          RequestStatus = "matched"
	StatusFulfilled        RequestStatus = "fulfilled"
	StatusExpired          RequestStatus = "expired"
	StatusCancelled        RequestStatus = "cancelled"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAwaitingResponse, StatusMatched,
		StatusFulfilled, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusExpired || s == StatusCancelled
}

// allowedTransitions is the single source of truth for the request state machine.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:          {StatusAwaitingResponse, StatusExpired, StatusCancelled},
	StatusAwaitingResponse: {StatusPending, StatusMatched, StatusExpired, StatusCancelled},
	StatusMatched:          {StatusFulfilled, StatusExpired, StatusCancelled},
}

// CanTransitionTo checks the transition against the request state machine.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BloodRequest is a request for blood raised by an external submission path.
//
// Invariants:
//   - Status is owned by the coordinator once the request is submitted
//   - Attempted is append-only and never contains duplicates
//   - ExpiresAt is after CreatedAt
type BloodRequest struct {
	ID          id.RequestID   `json:"id"`
	RequesterID id.RequesterID `json:"requester_id"`
	BloodType   BloodType      `json:"blood_type"`
	Urgency     Urgency        `json:"urgency"`
	Units       int            `json:"units"`
	Location    Coordinates    `json:"location"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      RequestStatus  `json:"status"`
	Attempted   []id.DonorID   `json:"attempted,omitempty"`
}

// Validate enforces construction invariants at the submission boundary.
func (r *BloodRequest) Validate() error {
	if r.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "request id is required")
	}
	if r.RequesterID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "requester id is required")
	}
	if !r.BloodType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid blood type")
	}
	if !r.Urgency.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid urgency")
	}
	if r.Units <= 0 {
		return dErrors.New(dErrors.CodeValidation, "units must be positive")
	}
	if !r.Location.Valid() {
		return dErrors.New(dErrors.CodeValidation, "malformed request coordinates")
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return dErrors.New(dErrors.CodeValidation, "expires_at must be after created_at")
	}
	return nil
}

// HasAttempted reports whether donorID was already alerted for this request.
func (r *BloodRequest) HasAttempted(donorID id.DonorID) bool {
	for _, d := range r.Attempted {
		if d == donorID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *BloodRequest) Clone() *BloodRequest {
	c := *r
	c.Attempted = append([]id.DonorID(nil), r.Attempted...)
	return &c
}
