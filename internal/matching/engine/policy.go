package engine

import (
	"fmt"

	"hemolink/internal/matching/models"
)

// Policy bounds the radius expansion loop for one urgency level.
type Policy struct {
	InitialRadiusKm float64 `json:"initial_radius_km"`
	MaxRadiusKm     float64 `json:"max_radius_km"`
	ExpansionFactor float64 `json:"expansion_factor"`
	// MaxSteps caps the number of index queries per search. The last step
	// always queries MaxRadiusKm.
	MaxSteps int `json:"max_steps"`
	// MinPool is the survivor count below which the radius is widened.
	MinPool int `json:"min_pool"`
}

func (p Policy) Validate() error {
	if p.InitialRadiusKm <= 0 || p.MaxRadiusKm < p.InitialRadiusKm {
		return fmt.Errorf("radius bounds %v..%v invalid", p.InitialRadiusKm, p.MaxRadiusKm)
	}
	if p.ExpansionFactor <= 1 {
		return fmt.Errorf("expansion factor %v must be greater than 1", p.ExpansionFactor)
	}
	if p.MaxSteps < 1 || p.MinPool < 1 {
		return fmt.Errorf("max steps and min pool must be positive")
	}
	return nil
}

// Policies maps urgency to its expansion policy.
type Policies map[models.Urgency]Policy

// DefaultPolicies search wider and expand sooner as urgency rises.
func DefaultPolicies() Policies {
	return Policies{
		models.UrgencyLow:      {InitialRadiusKm: 5, MaxRadiusKm: 25, ExpansionFactor: 1.5, MaxSteps: 5, MinPool: 1},
		models.UrgencyMedium:   {InitialRadiusKm: 5, MaxRadiusKm: 40, ExpansionFactor: 1.5, MaxSteps: 6, MinPool: 2},
		models.UrgencyHigh:     {InitialRadiusKm: 5, MaxRadiusKm: 60, ExpansionFactor: 1.5, MaxSteps: 7, MinPool: 3},
		models.UrgencyCritical: {InitialRadiusKm: 5, MaxRadiusKm: 100, ExpansionFactor: 1.5, MaxSteps: 8, MinPool: 5},
	}
}

func (p Policies) Validate() error {
	for _, u := range models.AllUrgencies {
		pol, ok := p[u]
		if !ok {
			return fmt.Errorf("no expansion policy for urgency %s", u)
		}
		if err := pol.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", u, err)
		}
	}
	return nil
}

// For returns the policy for u, falling back to low urgency.
func (p Policies) For(u models.Urgency) Policy {
	if pol, ok := p[u]; ok {
		return pol
	}
	return p[models.UrgencyLow]
}
