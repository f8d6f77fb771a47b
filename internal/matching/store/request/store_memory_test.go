package request

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

func newRequest() *models.BloodRequest {
	now := time.Now()
	return &models.BloodRequest{
		ID:          id.NewRequestID(),
		RequesterID: id.NewRequesterID(),
		BloodType:   models.BloodAPos,
		Urgency:     models.UrgencyHigh,
		Units:       2,
		Location:    models.Coordinates{Lat: 48.1, Lon: 11.5},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		Status:      models.StatusPending,
	}
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	req := newRequest()
	require.NoError(t, store.CreateRequest(ctx, req))

	t.Run("duplicate create conflicts", func(t *testing.T) {
		assert.ErrorIs(t, store.CreateRequest(ctx, req), sentinel.ErrConflict)
	})

	t.Run("unknown request not found", func(t *testing.T) {
		_, err := store.GetRequest(ctx, id.NewRequestID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		err = store.ApplyStatusChange(ctx, models.StatusChange{RequestID: id.NewRequestID()})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("status change records attempt and attempted donors", func(t *testing.T) {
		donor := id.NewDonorID()
		attempt := &models.MatchAttempt{
			ID:           id.NewAttemptID(),
			RequestID:    req.ID,
			DonorID:      donor,
			Rank:         1,
			DispatchedAt: time.Now(),
			Outcome:      models.OutcomePending,
		}
		require.NoError(t, store.ApplyStatusChange(ctx, models.StatusChange{
			RequestID: req.ID,
			From:      models.StatusPending,
			To:        models.StatusAwaitingResponse,
			Reason:    models.ReasonDispatched,
			Attempt:   attempt,
			Attempted: []id.DonorID{donor},
		}))

		got, err := store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAwaitingResponse, got.Status)
		assert.Equal(t, []id.DonorID{donor}, got.Attempted)

		attempts, err := store.ListAttempts(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, attempt.ID, attempts[0].ID)
	})

	t.Run("terminal status is final", func(t *testing.T) {
		require.NoError(t, store.ApplyStatusChange(ctx, models.StatusChange{
			RequestID: req.ID, From: models.StatusAwaitingResponse, To: models.StatusCancelled,
		}))
		require.NoError(t, store.ApplyStatusChange(ctx, models.StatusChange{
			RequestID: req.ID, From: models.StatusCancelled, To: models.StatusMatched,
		}))
		got, err := store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
	})
}

func TestInMemoryStoreClosesSupersededPendingAttempt(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	req := newRequest()
	require.NoError(t, store.CreateRequest(ctx, req))

	dispatch := func(at time.Time) *models.MatchAttempt {
		attempt := &models.MatchAttempt{
			ID:           id.NewAttemptID(),
			RequestID:    req.ID,
			DonorID:      id.NewDonorID(),
			DispatchedAt: at,
			Outcome:      models.OutcomePending,
		}
		require.NoError(t, store.ApplyStatusChange(ctx, models.StatusChange{
			RequestID:  req.ID,
			From:       models.StatusPending,
			To:         models.StatusAwaitingResponse,
			Reason:     models.ReasonDispatched,
			Attempt:    attempt,
			OccurredAt: at,
		}))
		return attempt
	}

	start := time.Now()
	orphan := dispatch(start)
	// A resubmitted request starts over without resolving orphan.
	current := dispatch(start.Add(time.Second))

	attempts, err := store.ListAttempts(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, orphan.ID, attempts[0].ID)
	assert.Equal(t, models.OutcomeTimedOut, attempts[0].Outcome)
	require.NotNil(t, attempts[0].ResolvedAt)
	assert.True(t, start.Add(time.Second).Equal(*attempts[0].ResolvedAt))
	assert.Equal(t, current.ID, attempts[1].ID)
	assert.Equal(t, models.OutcomePending, attempts[1].Outcome)

	t.Run("terminal status withdraws the open attempt", func(t *testing.T) {
		require.NoError(t, store.ApplyStatusChange(ctx, models.StatusChange{
			RequestID:  req.ID,
			From:       models.StatusAwaitingResponse,
			To:         models.StatusExpired,
			Reason:     models.ReasonRequestExpired,
			OccurredAt: start.Add(time.Minute),
		}))
		attempts, err := store.ListAttempts(ctx, req.ID)
		require.NoError(t, err)
		for _, a := range attempts {
			assert.False(t, a.IsPending(), "attempt %s left pending", a.ID)
		}
		assert.Equal(t, models.OutcomeWithdrawn, attempts[1].Outcome)
	})
}
