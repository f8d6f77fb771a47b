// Package geo maintains the read-optimised donor location index.
//
// The index partitions the globe into a fixed lat/lon grid. A radius query
// visits only the cells overlapping the query's bounding box and then applies
// the exact haversine distance. Cells and donor entries live in lock-striped
// shards: a location update locks the donor's shard and the (at most two)
// cell shards it touches, so queries against unrelated cells never wait.
package geo

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
)

const (
	shardCount         = 64
	defaultCellDegrees = 0.1
)

// Hit is one donor returned by a radius query.
type Hit struct {
	DonorID     id.DonorID
	Coordinates models.Coordinates
	RecordedAt  time.Time
	DistanceKm  float64
	// Stale is set when the reading is older than the staleness threshold.
	Stale bool
}

type cellKey struct {
	row, col int
}

type entry struct {
	reading models.LocationReading
	cell    cellKey
}

type cellShard struct {
	mu    sync.RWMutex
	cells map[cellKey]map[id.DonorID]models.LocationReading
}

type donorShard struct {
	mu      sync.Mutex
	entries map[id.DonorID]entry
}

// Index is a concurrent grid index over donor positions.
type Index struct {
	cellDeg  float64
	latCells int
	lonCells int

	staleness time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	cellShards  [shardCount]cellShard
	donorShards [shardCount]donorShard
	size        atomic.Int64
}

type Option func(*Index)

// WithCellDegrees sets the grid resolution. Smaller cells mean fewer distance
// computations per query but more cells visited for wide radii.
func WithCellDegrees(deg float64) Option {
	return func(ix *Index) {
		if deg > 0 && deg <= 10 {
			ix.cellDeg = deg
		}
	}
}

// WithStaleness sets the freshness threshold. Zero disables staleness.
func WithStaleness(d time.Duration) Option {
	return func(ix *Index) {
		ix.staleness = d
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(ix *Index) {
		ix.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) {
		ix.metrics = m
	}
}

func NewIndex(opts ...Option) *Index {
	ix := &Index{
		cellDeg:   defaultCellDegrees,
		staleness: 30 * time.Minute,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.latCells = int(math.Ceil(180 / ix.cellDeg))
	ix.lonCells = int(math.Ceil(360 / ix.cellDeg))
	for i := range ix.cellShards {
		ix.cellShards[i].cells = make(map[cellKey]map[id.DonorID]models.LocationReading)
	}
	for i := range ix.donorShards {
		ix.donorShards[i].entries = make(map[id.DonorID]entry)
	}
	return ix
}

// Upsert records a donor's position. Readings that are not newer than the
// stored one are ignored, so replaying an update stream is idempotent.
func (ix *Index) Upsert(donorID id.DonorID, reading models.LocationReading) error {
	if !reading.Coordinates.Valid() {
		return models.ErrMalformedCoordinates
	}

	ds := ix.donorShard(donorID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	prev, exists := ds.entries[donorID]
	if exists && !reading.RecordedAt.After(prev.reading.RecordedAt) {
		ix.logger.Debug("ignoring out-of-order location reading",
			"donor_id", donorID,
			"recorded_at", reading.RecordedAt,
			"stored_at", prev.reading.RecordedAt)
		return nil
	}

	cell := ix.cellFor(reading.Coordinates)
	ix.putCell(cell, donorID, reading)
	if exists && prev.cell != cell {
		ix.deleteCell(prev.cell, donorID)
	}
	ds.entries[donorID] = entry{reading: reading, cell: cell}

	if !exists {
		ix.metrics.SetIndexedDonors(int(ix.size.Add(1)))
	}
	return nil
}

// Remove drops a donor from the index, e.g. on deactivation.
func (ix *Index) Remove(donorID id.DonorID) {
	ds := ix.donorShard(donorID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	prev, exists := ds.entries[donorID]
	if !exists {
		return
	}
	ix.deleteCell(prev.cell, donorID)
	delete(ds.entries, donorID)
	ix.metrics.SetIndexedDonors(int(ix.size.Add(-1)))
}

// Get returns the stored reading for a donor.
func (ix *Index) Get(donorID id.DonorID) (models.LocationReading, bool) {
	ds := ix.donorShard(donorID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	e, ok := ds.entries[donorID]
	return e.reading, ok
}

// Len returns the number of indexed donors.
func (ix *Index) Len() int {
	return int(ix.size.Load())
}

// Query returns donors within radiusKm of center, nearest first, ties broken
// by donor ID. Readings older than the staleness threshold are flagged
// Stale; callers decide whether a fresher alternative exists.
func (ix *Index) Query(center models.Coordinates, radiusKm float64) ([]Hit, error) {
	if !center.Valid() {
		return nil, models.ErrMalformedCoordinates
	}
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		return nil, nil
	}

	now := ix.clock.Now()
	seen := make(map[id.DonorID]Hit)
	for _, cell := range ix.cellsWithin(center, radiusKm) {
		cs := ix.cellShard(cell)
		cs.mu.RLock()
		for donorID, reading := range cs.cells[cell] {
			d := HaversineKm(center, reading.Coordinates)
			if d > radiusKm {
				continue
			}
			// A donor moving between cells can briefly appear in both.
			if prev, ok := seen[donorID]; ok && !reading.RecordedAt.After(prev.RecordedAt) {
				continue
			}
			seen[donorID] = Hit{
				DonorID:     donorID,
				Coordinates: reading.Coordinates,
				RecordedAt:  reading.RecordedAt,
				DistanceKm:  d,
				Stale:       reading.IsStale(now, ix.staleness),
			}
		}
		cs.mu.RUnlock()
	}

	hits := make([]Hit, 0, len(seen))
	for _, h := range seen {
		hits = append(hits, h)
	}

	sortHits(hits)
	return hits, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].DonorID.Less(hits[j].DonorID)
	})
}

// cellsWithin returns the grid cells overlapping the bounding box of the
// query circle. Columns wrap across the antimeridian; near the poles every
// column is visited.
func (ix *Index) cellsWithin(center models.Coordinates, radiusKm float64) []cellKey {
	dLat := radiusKm / kmPerDegreeLat
	latMin := math.Max(center.Lat-dLat, -90)
	latMax := math.Min(center.Lat+dLat, 90)

	rowMin := ix.row(latMin)
	rowMax := ix.row(latMax)

	allCols := false
	var colMin, colMax int
	maxAbsLat := math.Max(math.Abs(latMin), math.Abs(latMax))
	cosLat := math.Cos(maxAbsLat * math.Pi / 180)
	if maxAbsLat >= 89.9 || cosLat <= 0 {
		allCols = true
	} else {
		dLon := radiusKm / (kmPerDegreeLat * cosLat)
		if dLon >= 180 {
			allCols = true
		} else {
			colMin = int(math.Floor((center.Lon - dLon + 180) / ix.cellDeg))
			colMax = int(math.Floor((center.Lon + dLon + 180) / ix.cellDeg))
			if colMax-colMin+1 >= ix.lonCells {
				allCols = true
			}
		}
	}
	if allCols {
		colMin, colMax = 0, ix.lonCells-1
	}

	cells := make([]cellKey, 0, (rowMax-rowMin+1)*(colMax-colMin+1))
	for r := rowMin; r <= rowMax; r++ {
		for c := colMin; c <= colMax; c++ {
			cells = append(cells, cellKey{row: r, col: ix.wrapCol(c)})
		}
	}
	return cells
}

func (ix *Index) cellFor(c models.Coordinates) cellKey {
	return cellKey{
		row: ix.row(c.Lat),
		col: ix.wrapCol(int(math.Floor((c.Lon + 180) / ix.cellDeg))),
	}
}

func (ix *Index) row(lat float64) int {
	r := int(math.Floor((lat + 90) / ix.cellDeg))
	if r < 0 {
		return 0
	}
	if r >= ix.latCells {
		return ix.latCells - 1
	}
	return r
}

func (ix *Index) wrapCol(c int) int {
	c %= ix.lonCells
	if c < 0 {
		c += ix.lonCells
	}
	return c
}

func (ix *Index) putCell(cell cellKey, donorID id.DonorID, reading models.LocationReading) {
	cs := ix.cellShard(cell)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	members := cs.cells[cell]
	if members == nil {
		members = make(map[id.DonorID]models.LocationReading)
		cs.cells[cell] = members
	}
	members[donorID] = reading
}

func (ix *Index) deleteCell(cell cellKey, donorID id.DonorID) {
	cs := ix.cellShard(cell)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	members := cs.cells[cell]
	delete(members, donorID)
	if len(members) == 0 {
		delete(cs.cells, cell)
	}
}

func (ix *Index) cellShard(cell cellKey) *cellShard {
	h := uint64(cell.row)*2654435761 + uint64(cell.col)
	return &ix.cellShards[h%shardCount]
}

func (ix *Index) donorShard(donorID id.DonorID) *donorShard {
	return &ix.donorShards[int(donorID[15])%shardCount]
}
