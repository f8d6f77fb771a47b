package models

import id "hemolink/pkg/domain"

// ScoreComponents holds one value per scoring axis, each in [0,1].
type ScoreComponents struct {
	Distance      float64 `json:"distance"`
	Availability  float64 `json:"availability"`
	History       float64 `json:"history"`
	Compatibility float64 `json:"compatibility"`
	UrgencyBonus  float64 `json:"urgency_bonus"`
}

// Sum adds the components in a fixed order so totals are reproducible.
func (c ScoreComponents) Sum() float64 {
	return c.Distance + c.Availability + c.History + c.Compatibility + c.UrgencyBonus
}

// CandidateScore is the derived score for a donor/request pair. It is
// recomputed on every search and never persisted.
type CandidateScore struct {
	DonorID   id.DonorID      `json:"donor_id"`
	RequestID id.RequestID    `json:"request_id"`
	Raw       ScoreComponents `json:"raw"`
	Weighted  ScoreComponents `json:"weighted"`
	Composite float64         `json:"composite"`
}

// Candidate is a ranked, eligible donor.
type Candidate struct {
	Donor      *Donor         `json:"donor"`
	DistanceKm float64        `json:"distance_km"`
	Stale      bool           `json:"stale,omitempty"`
	Score      CandidateScore `json:"score"`
}

// SearchResult is the engine output for one FindCandidates call.
// NoCandidates is a status, not an error: it means the search reached its
// maximum radius without an eligible donor.
type SearchResult struct {
	Candidates   []Candidate `json:"candidates"`
	RadiusKm     float64     `json:"radius_km"`
	Steps        int         `json:"steps"`
	AtMaxRadius  bool        `json:"at_max_radius"`
	NoCandidates bool        `json:"no_candidates"`
}
