// Package scoring computes the composite match score of an eligible donor.
// Scores are derived values: recomputed on every search, never stored.
package scoring

import (
	"fmt"
	"math"
	"time"

	"hemolink/internal/matching/geo"
	"hemolink/internal/matching/models"
)

const neutral = 0.5

// Config tunes the normalisation of each axis.
type Config struct {
	Weights Weights
	// MaxConsideredRadiusKm maps distance onto [0,1]; donors at or beyond it
	// score zero on the distance axis.
	MaxConsideredRadiusKm float64
	// StaleDistanceConfidence scales the distance score of stale readings.
	StaleDistanceConfidence float64
	// AvailabilityDecay is how long an "available" status takes to decay to
	// zero freshness.
	AvailabilityDecay time.Duration
	// MaxResponse is the median response time that scores zero speed.
	MaxResponse time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights:                 DefaultWeights(),
		MaxConsideredRadiusKm:   50,
		StaleDistanceConfidence: 0.5,
		AvailabilityDecay:       30 * 24 * time.Hour,
		MaxResponse:             30 * time.Minute,
	}
}

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	cfg Config
}

// New validates the configuration once. Invalid weights are a startup error.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConsideredRadiusKm <= 0 {
		return nil, fmt.Errorf("%w: max considered radius must be positive", models.ErrInvalidScoreWeights)
	}
	if cfg.StaleDistanceConfidence < 0 || cfg.StaleDistanceConfidence > 1 {
		return nil, fmt.Errorf("%w: stale distance confidence must be within [0,1]", models.ErrInvalidScoreWeights)
	}
	if cfg.AvailabilityDecay <= 0 || cfg.MaxResponse <= 0 {
		return nil, fmt.Errorf("%w: decay and response windows must be positive", models.ErrInvalidScoreWeights)
	}
	return &Scorer{cfg: cfg}, nil
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// Score rates donor for req given where the index placed them. An error
// means an axis left [0,1], which only happens on corrupt input.
func (s *Scorer) Score(donor *models.Donor, hit geo.Hit, req *models.BloodRequest, now time.Time) (models.CandidateScore, error) {
	speed, hasHistory := s.speed(donor.Stats)

	raw := models.ScoreComponents{
		Distance:      s.distance(hit),
		Availability:  s.availability(donor, now),
		History:       s.history(donor.Stats, speed, hasHistory, req.Urgency),
		Compatibility: compatibility(donor.BloodType, req.BloodType),
		UrgencyBonus:  urgencyFactor(req.Urgency) * speed,
	}
	weighted := s.cfg.Weights.apply(raw)

	score := models.CandidateScore{
		DonorID:   donor.ID,
		RequestID: req.ID,
		Raw:       raw,
		Weighted:  weighted,
		Composite: math.Min(weighted.Sum(), 1),
	}
	if !inUnit(raw.Distance) || !inUnit(raw.Availability) || !inUnit(raw.History) ||
		!inUnit(raw.Compatibility) || !inUnit(raw.UrgencyBonus) || !inUnit(score.Composite) {
		return score, fmt.Errorf("%w: donor %s composite %v", models.ErrNegativeScore, donor.ID, score.Composite)
	}
	return score, nil
}

func (s *Scorer) distance(hit geo.Hit) float64 {
	d := 1 - math.Min(hit.DistanceKm/s.cfg.MaxConsideredRadiusKm, 1)
	if hit.Stale {
		d *= s.cfg.StaleDistanceConfidence
	}
	return d
}

// availability is a freshness signal: a donor who flipped to available
// recently is more likely to still be reachable than one who did so months ago.
func (s *Scorer) availability(donor *models.Donor, now time.Time) float64 {
	if donor.AvailabilityUpdatedAt.IsZero() {
		return neutral
	}
	age := now.Sub(donor.AvailabilityUpdatedAt)
	if age < 0 {
		age = 0
	}
	return 1 - math.Min(float64(age)/float64(s.cfg.AvailabilityDecay), 1)
}

func (s *Scorer) speed(stats models.ResponseStats) (float64, bool) {
	if stats.AlertsReceived <= 0 {
		return neutral, false
	}
	median := stats.MedianResponse
	if median < 0 {
		median = 0
	}
	return 1 - math.Min(float64(median)/float64(s.cfg.MaxResponse), 1), true
}

// history blends acceptance rate with speed; the share given to speed grows
// with urgency.
func (s *Scorer) history(stats models.ResponseStats, speed float64, hasHistory bool, u models.Urgency) float64 {
	if !hasHistory {
		return neutral
	}
	rate, _ := stats.AcceptanceRate()
	w := speedWeight(u)
	return (1-w)*rate + w*speed
}

func speedWeight(u models.Urgency) float64 {
	switch u {
	case models.UrgencyCritical:
		return 0.7
	case models.UrgencyHigh:
		return 0.5
	case models.UrgencyMedium:
		return 0.4
	default:
		return 0.3
	}
}

func urgencyFactor(u models.Urgency) float64 {
	return float64(u.Level()) / 4
}

// compatibility prefers exact type matches over merely compatible ones.
func compatibility(donor, recipient models.BloodType) float64 {
	switch {
	case donor == recipient:
		return 1.0
	case donor.ABO() == recipient.ABO():
		return 0.8
	default:
		return 0.6
	}
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
