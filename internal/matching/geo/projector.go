package geo

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	id "hemolink/pkg/domain"
)

// rebuildWorkers bounds concurrent upserts during a full rebuild.
const rebuildWorkers = 8

// Projector keeps the index in step with the location store: updates are
// written to the store first and then applied to the index.
type Projector struct {
	store  ports.LocationStore
	index  *Index
	logger *slog.Logger
}

func NewProjector(store ports.LocationStore, index *Index, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{store: store, index: index, logger: logger}
}

// Rebuild loads every stored reading into the index. Malformed readings are
// logged and skipped so one bad row cannot block startup.
func (p *Projector) Rebuild(ctx context.Context) (int, error) {
	readings, err := p.store.AllLocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("load locations: %w", err)
	}

	type item struct {
		donorID id.DonorID
		reading models.LocationReading
	}
	work := make(chan item)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for donorID, reading := range readings {
			select {
			case work <- item{donorID, reading}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for range rebuildWorkers {
		g.Go(func() error {
			for it := range work {
				if err := p.index.Upsert(it.donorID, it.reading); err != nil {
					p.logger.WarnContext(ctx, "skipping location during rebuild",
						"donor_id", it.donorID, "error", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	p.logger.InfoContext(ctx, "location index rebuilt", "donors", p.index.Len())
	return p.index.Len(), nil
}

// Apply records a location update in the store and then the index.
func (p *Projector) Apply(ctx context.Context, donorID id.DonorID, reading models.LocationReading) error {
	if !reading.Coordinates.Valid() {
		return models.ErrMalformedCoordinates
	}
	if err := p.store.SaveLocation(ctx, donorID, reading); err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return p.index.Upsert(donorID, reading)
}

// Deactivate removes a donor from the index. The stored reading is kept.
func (p *Projector) Deactivate(donorID id.DonorID) {
	p.index.Remove(donorID)
}
