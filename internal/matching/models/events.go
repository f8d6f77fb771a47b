package models

import (
	"time"

	id "hemolink/pkg/domain"
)

// TransitionReason explains why a request changed state.
type TransitionReason string

const (
	ReasonDispatched       TransitionReason = "alert_dispatched"
	ReasonAccepted         TransitionReason = "donor_accepted"
	ReasonDeclined         TransitionReason = "donor_declined"
	ReasonTimedOut         TransitionReason = "response_timed_out"
	ReasonDeliveryFailed   TransitionReason = "delivery_failed"
	ReasonNoCandidates     TransitionReason = "no_candidates"
	ReasonRequestExpired   TransitionReason = "request_expired"
	ReasonCancelled        TransitionReason = "cancelled"
	ReasonDonationComplete TransitionReason = "donation_completed"
	ReasonDuplicateAttempt TransitionReason = "duplicate_attempt"
	ReasonSearchFailed     TransitionReason = "search_failed"
)

// StatusChange is reported by the coordinator on every transition. It is
// the only way request state leaves the matching core.
type StatusChange struct {
	RequestID  id.RequestID     `json:"request_id"`
	From       RequestStatus    `json:"from"`
	To         RequestStatus    `json:"to"`
	Reason     TransitionReason `json:"reason"`
	Attempt    *MatchAttempt    `json:"attempt,omitempty"`
	Attempted  []id.DonorID     `json:"attempted"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Alert is the payload handed to the notification collaborator.
type Alert struct {
	AttemptID  id.AttemptID  `json:"attempt_id"`
	RequestID  id.RequestID  `json:"request_id"`
	DonorID    id.DonorID    `json:"donor_id"`
	BloodType  BloodType     `json:"blood_type"`
	Urgency    Urgency       `json:"urgency"`
	Units      int           `json:"units"`
	DistanceKm float64       `json:"distance_km"`
	Deadline   time.Time     `json:"deadline"`
	Channels   []ChannelKind `json:"channels,omitempty"`
}

// Ack is the delivery acknowledgment returned by the notification collaborator.
type Ack struct {
	Channel     ChannelKind `json:"channel"`
	MessageID   string      `json:"message_id,omitempty"`
	DeliveredAt time.Time   `json:"delivered_at"`
}

// RequesterUpdate tells the requester about a terminal or matched outcome.
type RequesterUpdate struct {
	RequestID   id.RequestID     `json:"request_id"`
	RequesterID id.RequesterID   `json:"requester_id"`
	Status      RequestStatus    `json:"status"`
	Reason      TransitionReason `json:"reason"`
	DonorID     *id.DonorID      `json:"donor_id,omitempty"`
	AttemptID   *id.AttemptID    `json:"attempt_id,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}
