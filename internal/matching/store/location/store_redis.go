package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

var saveLocationDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "hemolink_save_location_duration_ms",
	Help:    "Latency of location writes to Redis in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	locationKeyPrefix = "hemolink:location:"
	membersKey        = "hemolink:location:donors"
	scanBatch         = 500
)

// saveIfNewer writes the reading hash only when it is newer than the stored
// one. KEYS[1] is the donor hash, KEYS[2] the membership set.
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'recorded_at')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'recorded_at', ARGV[1], 'lat', ARGV[2], 'lon', ARGV[3], 'accuracy_m', ARGV[4], 'source', ARGV[5])
redis.call('SADD', KEYS[2], ARGV[6])
return 1
`)

// RedisStore keeps one hash per donor plus a membership set used to
// enumerate donors on rebuild.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func locationKey(donorID id.DonorID) string {
	return locationKeyPrefix + donorID.String()
}

func (s *RedisStore) CurrentLocation(ctx context.Context, donorID id.DonorID) (*models.LocationReading, error) {
	fields, err := s.client.HGetAll(ctx, locationKey(donorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	r, err := decodeReading(fields)
	if err != nil {
		return nil, fmt.Errorf("decode location for %s: %w", donorID, err)
	}
	return &r, nil
}

func (s *RedisStore) SaveLocation(ctx context.Context, donorID id.DonorID, reading models.LocationReading) error {
	start := time.Now()
	defer func() {
		saveLocationDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	err := saveIfNewer.Run(ctx, s.client,
		[]string{locationKey(donorID), membersKey},
		reading.RecordedAt.UnixNano(),
		strconv.FormatFloat(reading.Coordinates.Lat, 'f', -1, 64),
		strconv.FormatFloat(reading.Coordinates.Lon, 'f', -1, 64),
		strconv.FormatFloat(reading.AccuracyM, 'f', -1, 64),
		string(reading.Source),
		donorID.String(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}

// AllLocations walks the membership set and loads readings in pipelined
// batches.
func (s *RedisStore) AllLocations(ctx context.Context) (map[id.DonorID]models.LocationReading, error) {
	out := make(map[id.DonorID]models.LocationReading)
	var cursor uint64
	for {
		members, next, err := s.client.SScan(ctx, membersKey, cursor, "", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan donors: %w", err)
		}
		if err := s.loadBatch(ctx, members, out); err != nil {
			return nil, err
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

func (s *RedisStore) loadBatch(ctx context.Context, members []string, out map[id.DonorID]models.LocationReading) error {
	if len(members) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, locationKeyPrefix+m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	for i, m := range members {
		donorID, err := id.ParseDonorID(m)
		if err != nil {
			continue
		}
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		r, err := decodeReading(fields)
		if err != nil {
			continue
		}
		out[donorID] = r
	}
	return nil
}

func decodeReading(fields map[string]string) (models.LocationReading, error) {
	var r models.LocationReading
	nanos, err := strconv.ParseInt(fields["recorded_at"], 10, 64)
	if err != nil {
		return r, fmt.Errorf("recorded_at: %w", err)
	}
	if r.Coordinates.Lat, err = strconv.ParseFloat(fields["lat"], 64); err != nil {
		return r, fmt.Errorf("lat: %w", err)
	}
	if r.Coordinates.Lon, err = strconv.ParseFloat(fields["lon"], 64); err != nil {
		return r, fmt.Errorf("lon: %w", err)
	}
	if acc := fields["accuracy_m"]; acc != "" {
		if r.AccuracyM, err = strconv.ParseFloat(acc, 64); err != nil {
			return r, fmt.Errorf("accuracy_m: %w", err)
		}
	}
	r.RecordedAt = time.Unix(0, nanos).UTC()
	r.Source = models.LocationSource(fields["source"])
	return r, nil
}
