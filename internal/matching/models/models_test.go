package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

func TestParseBloodType(t *testing.T) {
	tests := []struct {
		in   string
		want BloodType
	}{
		{"O-", BloodONeg},
		{"ab+", BloodABPos},
		{" A pos ", BloodAPos},
		{"Bneg", BloodBNeg},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBloodType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseBloodType("C+")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestBloodTypeParts(t *testing.T) {
	assert.Equal(t, "AB", BloodABNeg.ABO())
	assert.False(t, BloodABNeg.RhPositive())
	assert.Equal(t, "O", BloodOPos.ABO())
	assert.True(t, BloodOPos.RhPositive())
	assert.Equal(t, -1, BloodType("X").Index())
}

func TestRequestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusAwaitingResponse))
	assert.True(t, StatusAwaitingResponse.CanTransitionTo(StatusPending))
	assert.True(t, StatusAwaitingResponse.CanTransitionTo(StatusMatched))
	assert.True(t, StatusMatched.CanTransitionTo(StatusFulfilled))
	assert.False(t, StatusPending.CanTransitionTo(StatusMatched))
	assert.False(t, StatusPending.CanTransitionTo(StatusFulfilled))

	for _, terminal := range []RequestStatus{StatusFulfilled, StatusExpired, StatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []RequestStatus{StatusPending, StatusAwaitingResponse, StatusMatched, StatusCancelled} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestBloodRequest_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := func() *BloodRequest {
		return &BloodRequest{
			ID:          id.NewRequestID(),
			RequesterID: id.NewRequesterID(),
			BloodType:   BloodONeg,
			Urgency:     UrgencyCritical,
			Units:       2,
			Location:    Coordinates{Lat: 52.52, Lon: 13.40},
			CreatedAt:   now,
			ExpiresAt:   now.Add(6 * time.Hour),
		}
	}

	require.NoError(t, valid().Validate())

	r := valid()
	r.Location = Coordinates{Lat: math.NaN(), Lon: 0}
	assert.True(t, dErrors.HasCode(r.Validate(), dErrors.CodeValidation))

	r = valid()
	r.ExpiresAt = r.CreatedAt
	assert.Error(t, r.Validate())

	r = valid()
	r.Units = 0
	assert.Error(t, r.Validate())
}

func TestBloodRequest_CloneIsDeep(t *testing.T) {
	donor := id.NewDonorID()
	r := &BloodRequest{Attempted: []id.DonorID{donor}}
	c := r.Clone()
	c.Attempted = append(c.Attempted, id.NewDonorID())
	c.Attempted[0] = id.NewDonorID()

	assert.Equal(t, []id.DonorID{donor}, r.Attempted)
	assert.True(t, r.HasAttempted(donor))
}

func TestMatchAttempt_ResolveOnce(t *testing.T) {
	a := &MatchAttempt{Outcome: OutcomePending}
	now := time.Now()
	assert.True(t, a.Resolve(OutcomeDeclined, now))
	assert.False(t, a.Resolve(OutcomeAccepted, now))
	assert.Equal(t, OutcomeDeclined, a.Outcome)
}

func TestResponseStats_AcceptanceRate(t *testing.T) {
	_, ok := ResponseStats{}.AcceptanceRate()
	assert.False(t, ok)

	rate, ok := ResponseStats{AlertsReceived: 4, AlertsAccepted: 3}.AcceptanceRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.75, rate, 1e-12)
}
