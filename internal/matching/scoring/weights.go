package scoring

import (
	"fmt"
	"math"

	"hemolink/internal/matching/models"
)

const weightTolerance = 1e-9

// Weights are the per-axis multipliers of the composite score.
type Weights struct {
	Distance      float64 `json:"distance"`
	Availability  float64 `json:"availability"`
	History       float64 `json:"history"`
	Compatibility float64 `json:"compatibility"`
	Urgency       float64 `json:"urgency"`
}

func DefaultWeights() Weights {
	return Weights{
		Distance:      0.35,
		Availability:  0.25,
		History:       0.20,
		Compatibility: 0.15,
		Urgency:       0.05,
	}
}

// Validate rejects negative or non-finite weights and weights that do not
// sum to 1.
func (w Weights) Validate() error {
	all := []float64{w.Distance, w.Availability, w.History, w.Compatibility, w.Urgency}
	var sum float64
	for _, v := range all {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight %v out of range", models.ErrInvalidScoreWeights, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v", models.ErrInvalidScoreWeights, sum)
	}
	return nil
}

func (w Weights) apply(raw models.ScoreComponents) models.ScoreComponents {
	return models.ScoreComponents{
		Distance:      w.Distance * raw.Distance,
		Availability:  w.Availability * raw.Availability,
		History:       w.History * raw.History,
		Compatibility: w.Compatibility * raw.Compatibility,
		UrgencyBonus:  w.Urgency * raw.UrgencyBonus,
	}
}
