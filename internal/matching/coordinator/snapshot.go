package coordinator

import "hemolink/internal/matching/models"

// Snapshot is a point-in-time copy of a request's lifecycle state.
type Snapshot struct {
	Request             *models.BloodRequest  `json:"request"`
	Attempts            []models.MatchAttempt `json:"attempts"`
	Pending             *models.MatchAttempt  `json:"pending,omitempty"`
	RadiusKm            float64               `json:"radius_km"`
	RemainingCandidates int                   `json:"remaining_candidates"`
	Searching           bool                  `json:"searching"`
	Active              bool                  `json:"active"`
}

// Status is a shorthand for Request.Status.
func (s Snapshot) Status() models.RequestStatus {
	if s.Request == nil {
		return ""
	}
	return s.Request.Status
}
