// Package eligibility decides whether a donor may be considered for a request
// at all. It is pure domain logic: no I/O, no shared state, no mutation.
package eligibility

import (
	"time"

	"hemolink/internal/matching/models"
)

// DefaultMinimumInterval is the whole-blood deferral period between donations.
const DefaultMinimumInterval = 90 * 24 * time.Hour

// Reason names the first clause a donor failed.
type Reason string

const (
	ReasonEligible           Reason = "eligible"
	ReasonIncompatibleBlood  Reason = "incompatible_blood_type"
	ReasonDonationInterval   Reason = "donation_interval"
	ReasonUnavailable        Reason = "unavailable"
	ReasonInactive           Reason = "inactive"
	ReasonAlreadyAttempted   Reason = "already_attempted"
	ReasonMissingDonorRecord Reason = "missing_donor"
)

// Filter is the eligibility predicate. The zero value is not usable; build
// one with New.
type Filter struct {
	minInterval time.Duration
}

type Option func(*Filter)

// WithMinimumInterval overrides the donation deferral period.
func WithMinimumInterval(d time.Duration) Option {
	return func(f *Filter) {
		if d >= 0 {
			f.minInterval = d
		}
	}
}

func New(opts ...Option) *Filter {
	f := &Filter{minInterval: DefaultMinimumInterval}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MinimumInterval returns the configured deferral period.
func (f *Filter) MinimumInterval() time.Duration {
	return f.minInterval
}

// IsEligible reports whether donor may be alerted for req at now.
func (f *Filter) IsEligible(donor *models.Donor, req *models.BloodRequest, now time.Time) bool {
	return f.Check(donor, req, now) == ReasonEligible
}

// Check evaluates the clauses in order and returns the first failure.
// Rule order (fail-fast):
//  1. Blood compatibility - fixed lookup table
//  2. Active flag
//  3. Availability status
//  4. Medical interval since last donation
//  5. Not already attempted for this request
func (f *Filter) Check(donor *models.Donor, req *models.BloodRequest, now time.Time) Reason {
	if donor == nil {
		return ReasonMissingDonorRecord
	}
	if !CanDonate(donor.BloodType, req.BloodType) {
		return ReasonIncompatibleBlood
	}
	if !donor.Active {
		return ReasonInactive
	}
	if donor.Availability != models.AvailabilityAvailable {
		return ReasonUnavailable
	}
	if donor.LastDonation != nil && now.Sub(*donor.LastDonation) < f.minInterval {
		return ReasonDonationInterval
	}
	if req.HasAttempted(donor.ID) {
		return ReasonAlreadyAttempted
	}
	return ReasonEligible
}
