package audit

import (
	"context"
	"time"

	id "hemolink/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryClinical covers events with medical-record significance.
	// Examples: donor accepted, request matched, donation completed.
	CategoryClinical EventCategory = "clinical"

	// CategoryIntegrity covers internal invariant violations that must alert.
	// Examples: duplicate pending attempt, malformed coordinates.
	CategoryIntegrity EventCategory = "integrity"

	// CategoryOperations covers routine matching activity; can be sampled.
	// Examples: alert dispatched, radius expanded, stale location used.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the matching core to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	RequestID id.RequestID
	DonorID   id.DonorID
	AttemptID id.AttemptID
	Action    string
	// Decision carries the resulting request status when the event is a transition.
	Decision string
	Reason   string
	Urgency  string
}

type AuditEvent string

const (
	EventRequestSubmitted     AuditEvent = "request_submitted"
	EventAlertDispatched      AuditEvent = "alert_dispatched"
	EventAlertDeliveryFailed  AuditEvent = "alert_delivery_failed"
	EventAttemptAccepted      AuditEvent = "attempt_accepted"
	EventAttemptDeclined      AuditEvent = "attempt_declined"
	EventAttemptTimedOut      AuditEvent = "attempt_timed_out"
	EventLateResponseIgnored  AuditEvent = "late_response_ignored"
	EventRequestMatched       AuditEvent = "request_matched"
	EventRequestFulfilled     AuditEvent = "request_fulfilled"
	EventRequestExpired       AuditEvent = "request_expired"
	EventRequestCancelled     AuditEvent = "request_cancelled"
	EventRadiusExpanded       AuditEvent = "radius_expanded"
	EventStaleLocationUsed    AuditEvent = "stale_location_used"
	EventInvariantViolated    AuditEvent = "invariant_violated"
	EventCandidateSearchError AuditEvent = "candidate_search_failed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventAttemptAccepted:   CategoryClinical,
	EventRequestMatched:    CategoryClinical,
	EventRequestFulfilled:  CategoryClinical,
	EventRequestCancelled:  CategoryClinical,
	EventRequestExpired:    CategoryClinical,
	EventRequestSubmitted:  CategoryClinical,
	EventInvariantViolated: CategoryIntegrity,

	EventAlertDispatched:      CategoryOperations,
	EventAlertDeliveryFailed:  CategoryOperations,
	EventAttemptDeclined:      CategoryOperations,
	EventAttemptTimedOut:      CategoryOperations,
	EventLateResponseIgnored:  CategoryOperations,
	EventRadiusExpanded:       CategoryOperations,
	EventStaleLocationUsed:    CategoryOperations,
	EventCandidateSearchError: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]Event, error)
}
