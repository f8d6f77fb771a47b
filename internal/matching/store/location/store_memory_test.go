package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	donor := id.NewDonorID()
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.CurrentLocation(ctx, donor)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	first := models.LocationReading{Coordinates: models.Coordinates{Lat: 1, Lon: 2}, RecordedAt: t0}
	require.NoError(t, store.SaveLocation(ctx, donor, first))

	t.Run("older reading does not overwrite", func(t *testing.T) {
		older := models.LocationReading{Coordinates: models.Coordinates{Lat: 9, Lon: 9}, RecordedAt: t0.Add(-time.Minute)}
		require.NoError(t, store.SaveLocation(ctx, donor, older))
		got, err := store.CurrentLocation(ctx, donor)
		require.NoError(t, err)
		assert.Equal(t, first.Coordinates, got.Coordinates)
	})

	t.Run("newer reading replaces", func(t *testing.T) {
		newer := models.LocationReading{Coordinates: models.Coordinates{Lat: 3, Lon: 4}, RecordedAt: t0.Add(time.Minute)}
		require.NoError(t, store.SaveLocation(ctx, donor, newer))
		all, err := store.AllLocations(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer.Coordinates, all[donor].Coordinates)
	})
}
