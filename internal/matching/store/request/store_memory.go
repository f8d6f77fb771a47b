package request

import (
	"context"
	"sort"
	"sync"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
)

// InMemoryStore holds requests and their attempts in maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.BloodRequest
	attempts map[id.RequestID]map[id.AttemptID]models.MatchAttempt
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.RequestID]*models.BloodRequest),
		attempts: make(map[id.RequestID]map[id.AttemptID]models.MatchAttempt),
	}
}

func (s *InMemoryStore) CreateRequest(_ context.Context, req *models.BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *InMemoryStore) GetRequest(_ context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

// ApplyStatusChange records the new status, attempted list and attempt.
// Changes arriving after a terminal status are ignored.
func (s *InMemoryStore) ApplyStatusChange(_ context.Context, change models.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[change.RequestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return nil
	}
	req.Status = change.To
	req.Attempted = append([]id.DonorID(nil), change.Attempted...)

	byID := s.attempts[change.RequestID]
	if byID == nil {
		byID = make(map[id.AttemptID]models.MatchAttempt)
		s.attempts[change.RequestID] = byID
	}
	if outcome, ok := supersededOutcome(change); ok {
		for attemptID, a := range byID {
			if change.Attempt != nil && attemptID == change.Attempt.ID {
				continue
			}
			if a.Resolve(outcome, change.OccurredAt) {
				byID[attemptID] = a
			}
		}
	}
	if change.Attempt != nil {
		byID[change.Attempt.ID] = *change.Attempt
	}
	return nil
}

// supersededOutcome reports how a still-pending attempt left over from an
// earlier run of the request is closed by change. A new dispatch times it
// out; a terminal status withdraws it.
func supersededOutcome(change models.StatusChange) (models.AttemptOutcome, bool) {
	switch {
	case change.To.IsTerminal():
		return models.OutcomeWithdrawn, true
	case change.Attempt != nil && change.Attempt.IsPending():
		return models.OutcomeTimedOut, true
	}
	return "", false
}

// ListAttempts returns a request's attempts ordered by rank.
func (s *InMemoryStore) ListAttempts(_ context.Context, requestID id.RequestID) ([]models.MatchAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MatchAttempt, 0, len(s.attempts[requestID]))
	for _, a := range s.attempts[requestID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DispatchedAt.Equal(out[j].DispatchedAt) {
			return out[i].Rank < out[j].Rank
		}
		return out[i].DispatchedAt.Before(out[j].DispatchedAt)
	})
	return out, nil
}
