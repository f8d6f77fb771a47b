//go:build integration

package location_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/store/location"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *location.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = location.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func reading(lat, lon float64, at time.Time) models.LocationReading {
	return models.LocationReading{
		Coordinates: models.Coordinates{Lat: lat, Lon: lon},
		RecordedAt:  at,
		AccuracyM:   12.5,
		Source:      models.SourceGPS,
	}
}

func (s *RedisStoreSuite) TestMissingDonor() {
	_, err := s.store.CurrentLocation(context.Background(), id.NewDonorID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	donor := id.NewDonorID()
	t0 := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	s.Require().NoError(s.store.SaveLocation(ctx, donor, reading(48.137, 11.575, t0)))

	got, err := s.store.CurrentLocation(ctx, donor)
	s.Require().NoError(err)
	s.InDelta(48.137, got.Coordinates.Lat, 1e-9)
	s.InDelta(11.575, got.Coordinates.Lon, 1e-9)
	s.InDelta(12.5, got.AccuracyM, 1e-9)
	s.Equal(models.SourceGPS, got.Source)
	s.True(t0.Equal(got.RecordedAt))
}

// TestOutOfOrderReadingsKeepNewest verifies the compare-and-set script drops
// readings older than the stored one.
func (s *RedisStoreSuite) TestOutOfOrderReadingsKeepNewest() {
	ctx := context.Background()
	donor := id.NewDonorID()
	t0 := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	s.Require().NoError(s.store.SaveLocation(ctx, donor, reading(1, 1, t0.Add(time.Minute))))
	s.Require().NoError(s.store.SaveLocation(ctx, donor, reading(2, 2, t0)))

	got, err := s.store.CurrentLocation(ctx, donor)
	s.Require().NoError(err)
	s.InDelta(1.0, got.Coordinates.Lat, 1e-9)

	s.Require().NoError(s.store.SaveLocation(ctx, donor, reading(3, 3, t0.Add(2*time.Minute))))
	got, err = s.store.CurrentLocation(ctx, donor)
	s.Require().NoError(err)
	s.InDelta(3.0, got.Coordinates.Lat, 1e-9)
}

func (s *RedisStoreSuite) TestAllLocationsSpansScanBatches() {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	const donors = 1200
	want := make(map[id.DonorID]float64, donors)
	for i := 0; i < donors; i++ {
		donor := id.NewDonorID()
		lat := float64(i) / 100
		want[donor] = lat
		s.Require().NoError(s.store.SaveLocation(ctx, donor, reading(lat, 0, t0)), fmt.Sprintf("donor %d", i))
	}

	all, err := s.store.AllLocations(ctx)
	s.Require().NoError(err)
	s.Len(all, donors)
	for donor, lat := range want {
		s.InDelta(lat, all[donor].Coordinates.Lat, 1e-9)
	}
}
