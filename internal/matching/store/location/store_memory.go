package location

import (
	"context"
	"sync"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// InMemoryStore keeps the latest reading per donor.
type InMemoryStore struct {
	mu       sync.RWMutex
	readings map[id.DonorID]models.LocationReading
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{readings: make(map[id.DonorID]models.LocationReading)}
}

func (s *InMemoryStore) CurrentLocation(_ context.Context, donorID id.DonorID) (*models.LocationReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[donorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

// SaveLocation keeps the reading with the latest RecordedAt.
func (s *InMemoryStore) SaveLocation(_ context.Context, donorID id.DonorID, reading models.LocationReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.readings[donorID]; ok && !reading.RecordedAt.After(cur.RecordedAt) {
		return nil
	}
	s.readings[donorID] = reading
	return nil
}

func (s *InMemoryStore) AllLocations(_ context.Context) (map[id.DonorID]models.LocationReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DonorID]models.LocationReading, len(s.readings))
	for k, v := range s.readings {
		out[k] = v
	}
	return out, nil
}
