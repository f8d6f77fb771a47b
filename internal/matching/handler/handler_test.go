package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hemolink/internal/matching/coordinator"
	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
)

// =============================================================================
// Ops Handler Test Suite
// =============================================================================
// Justification for unit tests: handler tests cover HTTP concerns only
// (path parsing, status mapping, JSON shape). Lifecycle behavior is covered
// by the coordinator suite.

type stubReader struct {
	snapshots map[id.RequestID]coordinator.Snapshot
	err       error
	active    int
}

func (s *stubReader) Snapshot(_ context.Context, requestID id.RequestID) (coordinator.Snapshot, error) {
	if s.err != nil {
		return coordinator.Snapshot{}, s.err
	}
	snap, ok := s.snapshots[requestID]
	if !ok {
		return coordinator.Snapshot{}, models.ErrRequestNotFound
	}
	return snap, nil
}

func (s *stubReader) ActiveRequests() int { return s.active }

type HandlerSuite struct {
	suite.Suite
	reader *stubReader
	router http.Handler
}

func (s *HandlerSuite) SetupTest() {
	s.reader = &stubReader{snapshots: map[id.RequestID]coordinator.Snapshot{}}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	New(s.reader, logger).Register(r)
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestSnapshot_Found() {
	requestID := id.NewRequestID()
	s.reader.snapshots[requestID] = coordinator.Snapshot{
		Request:  &models.BloodRequest{ID: requestID, Status: models.StatusPending},
		RadiusKm: 5,
		Active:   true,
	}

	rec := s.get("/ops/requests/" + requestID.String())

	require.Equal(s.T(), http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(s.T(), 5.0, body["radius_km"])
	assert.Equal(s.T(), true, body["active"])
}

func (s *HandlerSuite) TestSnapshot_InvalidID() {
	rec := s.get("/ops/requests/not-a-uuid")

	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(s.T(), "invalid_input", body["error"])
}

func (s *HandlerSuite) TestSnapshot_Unknown() {
	rec := s.get("/ops/requests/" + id.NewRequestID().String())

	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestSnapshot_InternalErrorHidesMessage() {
	s.reader.err = errors.New("actor wedged")

	rec := s.get("/ops/requests/" + id.NewRequestID().String())

	assert.Equal(s.T(), http.StatusInternalServerError, rec.Code)
	assert.NotContains(s.T(), rec.Body.String(), "actor wedged")
}

func (s *HandlerSuite) TestActive() {
	s.reader.active = 3

	rec := s.get("/ops/requests/active")

	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.JSONEq(s.T(), `{"active":3}`, rec.Body.String())
}
