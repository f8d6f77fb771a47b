package eligibility

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
)

// =============================================================================
// Eligibility Filter Test Suite
// =============================================================================
// Justification for unit tests: the filter is a pure predicate whose clause
// boundaries (day 89 vs 90, table cells) are cheaper to pin here than through
// coordinator scenarios.

type FilterSuite struct {
	suite.Suite
	filter *Filter
	now    time.Time
}

func TestFilterSuite(t *testing.T) {
	suite.Run(t, new(FilterSuite))
}

func (s *FilterSuite) SetupTest() {
	s.filter = New()
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (s *FilterSuite) donor(bt models.BloodType) *models.Donor {
	return &models.Donor{
		ID:           id.NewDonorID(),
		BloodType:    bt,
		Availability: models.AvailabilityAvailable,
		Active:       true,
	}
}

func (s *FilterSuite) request(bt models.BloodType) *models.BloodRequest {
	return &models.BloodRequest{
		ID:        id.NewRequestID(),
		BloodType: bt,
		Urgency:   models.UrgencyHigh,
	}
}

func (s *FilterSuite) TestBloodCompatibility() {
	s.Run("universal donor to universal recipient", func() {
		s.True(s.filter.IsEligible(s.donor(models.BloodONeg), s.request(models.BloodABPos), s.now))
	})
	s.Run("A+ donor cannot give to O- recipient", func() {
		s.Equal(ReasonIncompatibleBlood, s.filter.Check(s.donor(models.BloodAPos), s.request(models.BloodONeg), s.now))
	})
	s.Run("Rh positive donor cannot give to Rh negative recipient", func() {
		s.False(s.filter.IsEligible(s.donor(models.BloodBPos), s.request(models.BloodABNeg), s.now))
	})
	s.Run("unknown blood type never matches", func() {
		s.False(s.filter.IsEligible(s.donor(models.BloodType("C+")), s.request(models.BloodABPos), s.now))
	})
}

func (s *FilterSuite) TestDonationInterval() {
	req := s.request(models.BloodAPos)

	s.Run("89 days excluded", func() {
		d := s.donor(models.BloodAPos)
		last := s.now.Add(-89 * 24 * time.Hour)
		d.LastDonation = &last
		s.Equal(ReasonDonationInterval, s.filter.Check(d, req, s.now))
	})
	s.Run("exactly 90 days eligible", func() {
		d := s.donor(models.BloodAPos)
		last := s.now.Add(-90 * 24 * time.Hour)
		d.LastDonation = &last
		s.True(s.filter.IsEligible(d, req, s.now))
	})
	s.Run("one second short of 90 days excluded", func() {
		d := s.donor(models.BloodAPos)
		last := s.now.Add(-90*24*time.Hour + time.Second)
		d.LastDonation = &last
		s.False(s.filter.IsEligible(d, req, s.now))
	})
	s.Run("never donated passes", func() {
		s.True(s.filter.IsEligible(s.donor(models.BloodAPos), req, s.now))
	})
	s.Run("custom interval", func() {
		f := New(WithMinimumInterval(56 * 24 * time.Hour))
		d := s.donor(models.BloodAPos)
		last := s.now.Add(-60 * 24 * time.Hour)
		d.LastDonation = &last
		s.True(f.IsEligible(d, req, s.now))
		s.Equal(56*24*time.Hour, f.MinimumInterval())
	})
}

func (s *FilterSuite) TestAvailability() {
	req := s.request(models.BloodOPos)

	d := s.donor(models.BloodOPos)
	d.Availability = models.AvailabilityUnavailable
	s.Equal(ReasonUnavailable, s.filter.Check(d, req, s.now))

	d = s.donor(models.BloodOPos)
	d.Availability = models.AvailabilityRecentlyDonated
	s.Equal(ReasonUnavailable, s.filter.Check(d, req, s.now))

	d = s.donor(models.BloodOPos)
	d.Active = false
	s.Equal(ReasonInactive, s.filter.Check(d, req, s.now))
}

func (s *FilterSuite) TestAlreadyAttempted() {
	req := s.request(models.BloodOPos)
	d := s.donor(models.BloodONeg)
	s.True(s.filter.IsEligible(d, req, s.now))

	req.Attempted = append(req.Attempted, d.ID)
	s.Equal(ReasonAlreadyAttempted, s.filter.Check(d, req, s.now))
}

func (s *FilterSuite) TestNilDonor() {
	s.Equal(ReasonMissingDonorRecord, s.filter.Check(nil, s.request(models.BloodOPos), s.now))
}

// TestCompatibilityTable cross-checks every cell of the lookup table against
// the ABO/Rh antigen rule.
func TestCompatibilityTable(t *testing.T) {
	antigens := func(bt models.BloodType) (a, b, rh bool) {
		abo := bt.ABO()
		return strings.Contains(abo, "A"), strings.Contains(abo, "B"), bt.RhPositive()
	}

	for _, recipient := range models.AllBloodTypes {
		for _, donor := range models.AllBloodTypes {
			da, db, drh := antigens(donor)
			ra, rb, rrh := antigens(recipient)
			want := (!da || ra) && (!db || rb) && (!drh || rrh)
			assert.Equal(t, want, CanDonate(donor, recipient), "%s -> %s", donor, recipient)
		}
	}

	assert.Len(t, CompatibleDonors(models.BloodABPos), 8)
	assert.Equal(t, []models.BloodType{models.BloodONeg}, CompatibleDonors(models.BloodONeg))
	assert.Nil(t, CompatibleDonors(models.BloodType("")))
}
