//go:build integration

package request_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/store/request"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	"hemolink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = request.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "match_attempts", "blood_requests")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRequest() *models.BloodRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	req := &models.BloodRequest{
		ID:          id.NewRequestID(),
		RequesterID: id.NewRequesterID(),
		BloodType:   models.BloodONeg,
		Urgency:     models.UrgencyCritical,
		Units:       3,
		Location:    models.Coordinates{Lat: 52.52, Lon: 13.405},
		CreatedAt:   now,
		ExpiresAt:   now.Add(2 * time.Hour),
		Status:      models.StatusPending,
	}
	s.Require().NoError(s.store.CreateRequest(context.Background(), req))
	return req
}

func (s *PostgresStoreSuite) pendingAttempt(req *models.BloodRequest) *models.MatchAttempt {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.MatchAttempt{
		ID:           id.NewAttemptID(),
		RequestID:    req.ID,
		DonorID:      id.NewDonorID(),
		Rank:         1,
		Score:        0.82,
		DispatchedAt: now,
		Deadline:     now.Add(5 * time.Minute),
		Outcome:      models.OutcomePending,
	}
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	ctx := context.Background()
	req := s.newRequest()

	got, err := s.store.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, got.ID)
	s.Equal(req.RequesterID, got.RequesterID)
	s.Equal(models.BloodONeg, got.BloodType)
	s.Equal(models.UrgencyCritical, got.Urgency)
	s.Equal(3, got.Units)
	s.InDelta(52.52, got.Location.Lat, 1e-9)
	s.True(req.ExpiresAt.Equal(got.ExpiresAt))
	s.Empty(got.Attempted)
}

func (s *PostgresStoreSuite) TestDuplicateCreateConflicts() {
	req := s.newRequest()
	err := s.store.CreateRequest(context.Background(), req)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUnknownRequest() {
	ctx := context.Background()
	_, err := s.store.GetRequest(ctx, id.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  id.NewRequestID(),
		To:         models.StatusExpired,
		OccurredAt: time.Now(),
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestStatusChangeUpsertsAttempt() {
	ctx := context.Background()
	req := s.newRequest()
	attempt := s.pendingAttempt(req)

	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusPending,
		To:         models.StatusAwaitingResponse,
		Reason:     models.ReasonDispatched,
		Attempt:    attempt,
		Attempted:  []id.DonorID{attempt.DonorID},
		OccurredAt: attempt.DispatchedAt,
	}))

	resolved := *attempt
	resolvedAt := attempt.DispatchedAt.Add(time.Minute)
	resolved.Outcome = models.OutcomeAccepted
	resolved.ResolvedAt = &resolvedAt
	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusAwaitingResponse,
		To:         models.StatusMatched,
		Reason:     models.ReasonAccepted,
		Attempt:    &resolved,
		Attempted:  []id.DonorID{attempt.DonorID},
		OccurredAt: resolvedAt,
	}))

	got, err := s.store.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusMatched, got.Status)
	s.Equal([]id.DonorID{attempt.DonorID}, got.Attempted)

	attempts, err := s.store.ListAttempts(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(models.OutcomeAccepted, attempts[0].Outcome)
	s.Require().NotNil(attempts[0].ResolvedAt)
	s.True(resolvedAt.Equal(*attempts[0].ResolvedAt))
}

func (s *PostgresStoreSuite) TestTerminalRequestIsFinal() {
	ctx := context.Background()
	req := s.newRequest()

	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusPending,
		To:         models.StatusCancelled,
		Reason:     models.ReasonCancelled,
		OccurredAt: time.Now(),
	}))
	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusCancelled,
		To:         models.StatusPending,
		OccurredAt: time.Now(),
	}))

	got, err := s.store.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, got.Status)
}

// TestConcurrentDispatchesLeaveOnePendingAttempt checks that writers racing
// on one request serialize and each closes the attempt it supersedes.
func (s *PostgresStoreSuite) TestConcurrentDispatchesLeaveOnePendingAttempt() {
	ctx := context.Background()
	req := s.newRequest()

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := s.pendingAttempt(req)
			err := s.store.ApplyStatusChange(ctx, models.StatusChange{
				RequestID:  req.ID,
				From:       models.StatusPending,
				To:         models.StatusAwaitingResponse,
				Reason:     models.ReasonDispatched,
				Attempt:    attempt,
				OccurredAt: attempt.DispatchedAt,
			})
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Zero(failures)
	attempts, err := s.store.ListAttempts(ctx, req.ID)
	s.Require().NoError(err)
	s.Len(attempts, writers)
	s.Equal(1, countPending(attempts))
}

func (s *PostgresStoreSuite) TestResubmittedRequestClosesOrphanedAttempt() {
	ctx := context.Background()
	req := s.newRequest()

	orphan := s.pendingAttempt(req)
	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusPending,
		To:         models.StatusAwaitingResponse,
		Reason:     models.ReasonDispatched,
		Attempt:    orphan,
		Attempted:  []id.DonorID{orphan.DonorID},
		OccurredAt: orphan.DispatchedAt,
	}))

	current := s.pendingAttempt(req)
	current.Rank = 2
	current.DispatchedAt = current.DispatchedAt.Add(time.Second)
	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusPending,
		To:         models.StatusAwaitingResponse,
		Reason:     models.ReasonDispatched,
		Attempt:    current,
		Attempted:  []id.DonorID{orphan.DonorID, current.DonorID},
		OccurredAt: current.DispatchedAt,
	}))

	attempts, err := s.store.ListAttempts(ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 2)
	s.Equal(orphan.ID, attempts[0].ID)
	s.Equal(models.OutcomeTimedOut, attempts[0].Outcome)
	s.NotNil(attempts[0].ResolvedAt)
	s.Equal(current.ID, attempts[1].ID)
	s.Equal(models.OutcomePending, attempts[1].Outcome)

	s.Require().NoError(s.store.ApplyStatusChange(ctx, models.StatusChange{
		RequestID:  req.ID,
		From:       models.StatusAwaitingResponse,
		To:         models.StatusCancelled,
		Reason:     models.ReasonCancelled,
		OccurredAt: current.DispatchedAt.Add(time.Minute),
	}))
	attempts, err = s.store.ListAttempts(ctx, req.ID)
	s.Require().NoError(err)
	s.Zero(countPending(attempts))
	s.Equal(models.OutcomeWithdrawn, attempts[1].Outcome)
}

func countPending(attempts []models.MatchAttempt) int {
	n := 0
	for _, a := range attempts {
		if a.IsPending() {
			n++
		}
	}
	return n
}
