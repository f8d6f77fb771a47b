package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"hemolink/internal/matching/eligibility"
	"hemolink/internal/matching/geo"
	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports/mocks"
	"hemolink/internal/matching/scoring"
	"hemolink/internal/matching/store/donor"
	id "hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

var hospital = models.Coordinates{Lat: 51.5072, Lon: -0.1276}

// kmNorth places a point km kilometres north of hospital.
func kmNorth(km float64) models.Coordinates {
	return models.Coordinates{Lat: hospital.Lat + km/(geo.EarthRadiusKm*3.141592653589793/180), Lon: hospital.Lon}
}

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	clock  *clockwork.FakeClock
	index  *geo.Index
	donors *donor.InMemoryStore
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC))
	s.index = geo.NewIndex(geo.WithClock(s.clock))
	s.donors = donor.NewInMemory()

	scorer, err := scoring.New(scoring.DefaultConfig())
	s.Require().NoError(err)
	s.engine, err = New(s.index, s.donors, eligibility.New(), scorer, WithClock(s.clock))
	s.Require().NoError(err)
}

func (s *EngineSuite) addDonor(bt models.BloodType, km float64) *models.Donor {
	d := &models.Donor{
		ID:                    id.NewDonorID(),
		BloodType:             bt,
		Availability:          models.AvailabilityAvailable,
		AvailabilityUpdatedAt: s.clock.Now().Add(-48 * time.Hour),
		Active:                true,
		Stats:                 models.ResponseStats{AlertsReceived: 4, AlertsAccepted: 2, MedianResponse: 5 * time.Minute},
	}
	d.Location = models.LocationReading{Coordinates: kmNorth(km), RecordedAt: s.clock.Now()}
	s.Require().NoError(s.donors.SaveDonor(s.ctx, d))
	s.Require().NoError(s.index.Upsert(d.ID, d.Location))
	return d
}

// addDonorSeenAgo adds a donor whose last location reading is age old.
func (s *EngineSuite) addDonorSeenAgo(bt models.BloodType, km float64, age time.Duration) *models.Donor {
	d := s.addDonor(bt, km)
	s.index.Remove(d.ID)
	d.Location.RecordedAt = s.clock.Now().Add(-age)
	s.Require().NoError(s.donors.SaveDonor(s.ctx, d))
	s.Require().NoError(s.index.Upsert(d.ID, d.Location))
	return d
}

func (s *EngineSuite) request(bt models.BloodType, u models.Urgency) *models.BloodRequest {
	return &models.BloodRequest{
		ID:          id.NewRequestID(),
		RequesterID: id.NewRequesterID(),
		BloodType:   bt,
		Urgency:     u,
		Units:       1,
		Location:    hospital,
		CreatedAt:   s.clock.Now(),
		ExpiresAt:   s.clock.Now().Add(6 * time.Hour),
		Status:      models.StatusPending,
	}
}

func ids(cands []models.Candidate) []id.DonorID {
	out := make([]id.DonorID, len(cands))
	for i, c := range cands {
		out[i] = c.Donor.ID
	}
	return out
}

func (s *EngineSuite) TestCriticalRequestRankedByDistance() {
	d5 := s.addDonor(models.BloodONeg, 5)
	d1 := s.addDonor(models.BloodONeg, 1)
	d3 := s.addDonor(models.BloodONeg, 3)

	result, err := s.engine.FindCandidates(s.ctx, s.request(models.BloodONeg, models.UrgencyCritical), 10)
	s.Require().NoError(err)
	s.False(result.NoCandidates)
	s.Equal([]id.DonorID{d1.ID, d3.ID, d5.ID}, ids(result.Candidates))

	for i := 1; i < len(result.Candidates); i++ {
		s.GreaterOrEqual(result.Candidates[i-1].Score.Composite, result.Candidates[i].Score.Composite)
	}
}

func (s *EngineSuite) TestExpandsRadiusWithinOneCall() {
	far := s.addDonor(models.BloodAPos, 7)

	result, err := s.engine.FindCandidates(s.ctx, s.request(models.BloodAPos, models.UrgencyLow), 5)
	s.Require().NoError(err)
	s.Require().Len(result.Candidates, 1)
	s.Equal(far.ID, result.Candidates[0].Donor.ID)
	s.Equal(2, result.Steps)
	s.InDelta(7.5, result.RadiusKm, 1e-9)
}

func (s *EngineSuite) TestNoCandidatesAtMaxRadius() {
	s.addDonor(models.BloodAPos, 2)
	s.addDonor(models.BloodONeg, 400)

	req := s.request(models.BloodONeg, models.UrgencyLow)
	result, err := s.engine.FindCandidates(s.ctx, req, 0)
	s.Require().NoError(err)

	policy := s.engine.Policy(models.UrgencyLow)
	s.True(result.NoCandidates)
	s.True(result.AtMaxRadius)
	s.Empty(result.Candidates)
	s.Equal(policy.MaxRadiusKm, result.RadiusKm)
	s.LessOrEqual(result.Steps, policy.MaxSteps)
}

func (s *EngineSuite) TestFiltersIneligibleDonors() {
	attempted := s.addDonor(models.BloodONeg, 1)
	recent := s.addDonor(models.BloodONeg, 2)
	last := s.clock.Now().Add(-30 * 24 * time.Hour)
	recent.LastDonation = &last
	s.Require().NoError(s.donors.SaveDonor(s.ctx, recent))
	s.addDonor(models.BloodBPos, 1.5)
	eligible := s.addDonor(models.BloodOPos, 4)

	req := s.request(models.BloodOPos, models.UrgencyMedium)
	req.Attempted = []id.DonorID{attempted.ID}

	result, err := s.engine.FindCandidates(s.ctx, req, 10)
	s.Require().NoError(err)
	s.Equal([]id.DonorID{eligible.ID}, ids(result.Candidates))
}

func (s *EngineSuite) TestStaleEligibleDonorUsedWhenFreshDonorsIneligible() {
	s.addDonor(models.BloodAPos, 1)
	stale := s.addDonorSeenAgo(models.BloodONeg, 2, 2*time.Hour)

	result, err := s.engine.FindCandidates(s.ctx, s.request(models.BloodONeg, models.UrgencyLow), 5)
	s.Require().NoError(err)
	s.False(result.NoCandidates)
	s.Require().Len(result.Candidates, 1)
	s.Equal(stale.ID, result.Candidates[0].Donor.ID)
	s.True(result.Candidates[0].Stale)
}

func (s *EngineSuite) TestStaleDonorDroppedWhenFreshEligibleDonorInRadius() {
	s.addDonorSeenAgo(models.BloodONeg, 1, 2*time.Hour)
	fresh := s.addDonor(models.BloodONeg, 4)

	result, err := s.engine.FindCandidates(s.ctx, s.request(models.BloodONeg, models.UrgencyCritical), 10)
	s.Require().NoError(err)
	s.Equal([]id.DonorID{fresh.ID}, ids(result.Candidates))
	s.False(result.Candidates[0].Stale)
}

func (s *EngineSuite) TestPrefersExactTypeAtEqualDistance() {
	universal := s.addDonor(models.BloodONeg, 2)
	exact := s.addDonor(models.BloodABPos, 2)

	result, err := s.engine.FindCandidates(s.ctx, s.request(models.BloodABPos, models.UrgencyHigh), 10)
	s.Require().NoError(err)
	s.Equal([]id.DonorID{exact.ID, universal.ID}, ids(result.Candidates))
}

func (s *EngineSuite) TestMaxCandidatesTruncates() {
	for i := range 6 {
		s.addDonor(models.BloodONeg, float64(i+1))
	}
	scorer, err := scoring.New(scoring.DefaultConfig())
	s.Require().NoError(err)
	e, err := New(s.index, s.donors, eligibility.New(), scorer, WithClock(s.clock), WithMaxCandidates(3))
	s.Require().NoError(err)

	result, err := e.FindCandidates(s.ctx, s.request(models.BloodONeg, models.UrgencyCritical), 20)
	s.Require().NoError(err)
	s.Len(result.Candidates, 3)
}

func (s *EngineSuite) TestDonorStoreFailure() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockDonorStore(ctrl)
	store.EXPECT().GetDonors(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	scorer, err := scoring.New(scoring.DefaultConfig())
	s.Require().NoError(err)
	e, err := New(s.index, store, eligibility.New(), scorer, WithClock(s.clock))
	s.Require().NoError(err)

	s.addDonor(models.BloodONeg, 1)
	_, err = e.FindCandidates(s.ctx, s.request(models.BloodONeg, models.UrgencyHigh), 5)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *EngineSuite) TestConstructorValidation() {
	scorer, err := scoring.New(scoring.DefaultConfig())
	s.Require().NoError(err)

	_, err = New(nil, s.donors, eligibility.New(), scorer)
	s.Error(err)

	bad := DefaultPolicies()
	bad[models.UrgencyHigh] = Policy{InitialRadiusKm: 5, MaxRadiusKm: 1, ExpansionFactor: 1.5, MaxSteps: 3, MinPool: 1}
	_, err = New(s.index, s.donors, eligibility.New(), scorer, WithPolicies(bad))
	s.Error(err)
}
