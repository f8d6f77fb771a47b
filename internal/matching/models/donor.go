package models

import (
	"time"

	id "hemolink/pkg/domain"
)

// Availability is the donor's self-reported readiness.
type Availability string

const (
	AvailabilityAvailable       Availability = "available"
	AvailabilityUnavailable     Availability = "unavailable"
	AvailabilityRecentlyDonated Availability = "recently_donated"
)

func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityUnavailable, AvailabilityRecentlyDonated:
		return true
	}
	return false
}

// ChannelKind names a notification channel variant.
type ChannelKind string

const (
	ChannelPush  ChannelKind = "push"
	ChannelSMS   ChannelKind = "sms"
	ChannelEmail ChannelKind = "email"
)

// ResponseStats summarises how a donor has historically answered alerts.
type ResponseStats struct {
	AlertsReceived int           `json:"alerts_received"`
	AlertsAccepted int           `json:"alerts_accepted"`
	MedianResponse time.Duration `json:"median_response"`
}

// AcceptanceRate returns accepted/received, or ok=false without history.
func (s ResponseStats) AcceptanceRate() (rate float64, ok bool) {
	if s.AlertsReceived <= 0 {
		return 0, false
	}
	rate = float64(s.AlertsAccepted) / float64(s.AlertsReceived)
	if rate > 1 {
		rate = 1
	}
	if rate < 0 {
		rate = 0
	}
	return rate, true
}

// Donor is a snapshot of a donor as seen by the matcher.
//
// Invariants:
//   - Donors are never deleted, only deactivated (Active=false)
//   - LastDonation is nil when the donor has never donated
//   - Location is the last-known reading; the geo index owns the live copy
type Donor struct {
	ID                    id.DonorID      `json:"id"`
	BloodType             BloodType       `json:"blood_type"`
	Location              LocationReading `json:"location"`
	Availability          Availability    `json:"availability"`
	AvailabilityUpdatedAt time.Time       `json:"availability_updated_at"`
	LastDonation          *time.Time      `json:"last_donation,omitempty"`
	Stats                 ResponseStats   `json:"stats"`
	Active                bool            `json:"active"`
	Channels              []ChannelKind   `json:"channels,omitempty"`
}

func (d *Donor) IsAvailable() bool {
	return d.Active && d.Availability == AvailabilityAvailable
}
