// Package engine turns a blood request into a ranked list of eligible donors.
// A search is read-only: it queries the geo index, loads donor snapshots,
// filters and scores, widening the radius in a bounded loop when too few
// donors survive.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hemolink/internal/matching/eligibility"
	"hemolink/internal/matching/geo"
	"hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	"hemolink/internal/matching/scoring"
	id "hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

const defaultMaxCandidates = 50

type DonorStore = ports.DonorStore

// LocationIndex is the part of the geo index a search needs.
type LocationIndex interface {
	Query(center models.Coordinates, radiusKm float64) ([]geo.Hit, error)
}

type Engine struct {
	index    LocationIndex
	donors   DonorStore
	filter   *eligibility.Filter
	scorer   *scoring.Scorer
	policies Policies

	maxCandidates int
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Option func(*Engine)

func WithPolicies(p Policies) Option {
	return func(e *Engine) {
		e.policies = p
	}
}

// WithMaxCandidates truncates ranked results. Zero keeps the default.
func WithMaxCandidates(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCandidates = n
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(index LocationIndex, donors DonorStore, filter *eligibility.Filter, scorer *scoring.Scorer, opts ...Option) (*Engine, error) {
	if index == nil {
		return nil, fmt.Errorf("location index is required")
	}
	if donors == nil {
		return nil, fmt.Errorf("donor store is required")
	}
	if filter == nil || scorer == nil {
		return nil, fmt.Errorf("eligibility filter and scorer are required")
	}

	e := &Engine{
		index:         index,
		donors:        donors,
		filter:        filter,
		scorer:        scorer,
		policies:      DefaultPolicies(),
		maxCandidates: defaultMaxCandidates,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
		tracer:        otel.Tracer("hemolink/matching/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policies.Validate(); err != nil {
		return nil, fmt.Errorf("invalid expansion policies: %w", err)
	}
	return e, nil
}

// Policy exposes the expansion policy applied to u.
func (e *Engine) Policy(u models.Urgency) Policy {
	return e.policies.For(u)
}

// FindCandidates ranks eligible donors for req by descending composite
// score, then ascending distance, then donor ID. A non-positive radiusKm
// starts from the urgency's initial radius. An empty result is reported with
// NoCandidates set, not as an error; errors mean the index or donor store
// failed.
func (e *Engine) FindCandidates(ctx context.Context, req *models.BloodRequest, radiusKm float64) (*models.SearchResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}

	policy := e.policies.For(req.Urgency)
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		radiusKm = policy.InitialRadiusKm
	}

	ctx, span := e.tracer.Start(ctx, "engine.FindCandidates", trace.WithAttributes(
		attribute.String("request_id", req.ID.String()),
		attribute.String("urgency", string(req.Urgency)),
		attribute.Float64("initial_radius_km", radiusKm),
	))
	defer span.End()

	start := e.clock.Now()
	now := start
	loaded := make(map[id.DonorID]*models.Donor)

	var (
		ranked []models.Candidate
		steps  int
	)
	for {
		steps++
		hits, err := e.index.Query(req.Location, radiusKm)
		if err != nil {
			return nil, e.fail(span, req, fmt.Errorf("query index: %w", err))
		}
		if err := e.loadDonors(ctx, hits, loaded); err != nil {
			return nil, e.fail(span, req, err)
		}
		ranked = e.rank(ctx, req, hits, loaded, now)

		if len(ranked) >= policy.MinPool || radiusKm >= policy.MaxRadiusKm || steps >= policy.MaxSteps {
			break
		}
		next := math.Min(radiusKm*policy.ExpansionFactor, policy.MaxRadiusKm)
		if steps+1 == policy.MaxSteps {
			next = math.Max(policy.MaxRadiusKm, radiusKm)
		}
		e.logger.DebugContext(ctx, "expanding search radius",
			"request_id", req.ID,
			"survivors", len(ranked),
			"from_km", radiusKm,
			"to_km", next,
		)
		radiusKm = next
	}

	if len(ranked) > 0 && ranked[0].Stale {
		e.metrics.IncrementStaleFallback()
		e.logger.WarnContext(ctx, "no fresh eligible donor in radius, using last known locations",
			"request_id", req.ID,
			"radius_km", radiusKm,
			"stale_candidates", len(ranked),
			"error", models.ErrStaleLocation,
		)
	}

	if len(ranked) > e.maxCandidates {
		ranked = ranked[:e.maxCandidates]
	}

	result := &models.SearchResult{
		Candidates:   ranked,
		RadiusKm:     radiusKm,
		Steps:        steps,
		AtMaxRadius:  radiusKm >= policy.MaxRadiusKm,
		NoCandidates: len(ranked) == 0,
	}

	outcome := "found"
	if result.NoCandidates {
		outcome = "none"
		e.logger.InfoContext(ctx, "no eligible candidates",
			"request_id", req.ID,
			"radius_km", radiusKm,
			"steps", steps,
			"reason", models.ErrNoEligibleCandidates,
		)
	}
	e.metrics.IncrementSearch(string(req.Urgency), outcome)
	e.metrics.ObserveSearch(steps, len(ranked), e.clock.Since(start))
	span.SetAttributes(
		attribute.Int("steps", steps),
		attribute.Int("candidates", len(ranked)),
		attribute.Float64("final_radius_km", radiusKm),
	)
	return result, nil
}

func (e *Engine) fail(span trace.Span, req *models.BloodRequest, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.IncrementSearch(string(req.Urgency), "error")
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidate search failed")
}

// loadDonors fetches snapshots for hits not loaded by an earlier step.
func (e *Engine) loadDonors(ctx context.Context, hits []geo.Hit, loaded map[id.DonorID]*models.Donor) error {
	var missing []id.DonorID
	for _, h := range hits {
		if _, ok := loaded[h.DonorID]; !ok {
			missing = append(missing, h.DonorID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	donors, err := e.donors.GetDonors(ctx, missing)
	if err != nil {
		return fmt.Errorf("load donors: %w", err)
	}
	for _, donorID := range missing {
		// Record absent donors too so later steps don't ask again.
		loaded[donorID] = donors[donorID]
	}
	return nil
}

// rank filters and scores hits. Stale donors survive only when no fresh
// eligible donor is in the radius.
func (e *Engine) rank(ctx context.Context, req *models.BloodRequest, hits []geo.Hit, loaded map[id.DonorID]*models.Donor, now time.Time) []models.Candidate {
	out := make([]models.Candidate, 0, len(hits))
	var stale []models.Candidate
	for _, h := range hits {
		donor := loaded[h.DonorID]
		if !e.filter.IsEligible(donor, req, now) {
			continue
		}
		score, err := e.scorer.Score(donor, h, req, now)
		if err != nil {
			e.metrics.IncrementInvariantViolation("score_range")
			e.logger.ErrorContext(ctx, "dropping candidate with out-of-range score",
				"request_id", req.ID,
				"donor_id", donor.ID,
				"error", err,
			)
			continue
		}
		cand := models.Candidate{
			Donor:      donor,
			DistanceKm: h.DistanceKm,
			Stale:      h.Stale,
			Score:      score,
		}
		if h.Stale {
			stale = append(stale, cand)
			continue
		}
		out = append(out, cand)
	}
	if len(out) == 0 {
		out = stale
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score.Composite != b.Score.Composite {
			return a.Score.Composite > b.Score.Composite
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.Donor.ID.Less(b.Donor.ID)
	})
	return out
}
