package donor

import (
	"context"
	"sync"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// InMemoryStore keeps donor snapshots in a map. Returned donors are copies.
type InMemoryStore struct {
	mu     sync.RWMutex
	donors map[id.DonorID]*models.Donor
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{donors: make(map[id.DonorID]*models.Donor)}
}

func (s *InMemoryStore) GetDonor(_ context.Context, donorID id.DonorID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[donorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

func (s *InMemoryStore) GetDonors(_ context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DonorID]*models.Donor, len(ids))
	for _, donorID := range ids {
		if d, ok := s.donors[donorID]; ok {
			out[donorID] = clone(d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveDonor(_ context.Context, donor *models.Donor) error {
	if donor == nil || donor.ID.IsNil() {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[donor.ID] = clone(donor)
	return nil
}

func clone(d *models.Donor) *models.Donor {
	c := *d
	if d.LastDonation != nil {
		t := *d.LastDonation
		c.LastDonation = &t
	}
	c.Channels = append([]models.ChannelKind(nil), d.Channels...)
	return &c
}
