package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	platformstrings "hemolink/pkg/platform/strings"
)

type requestPayload struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	BloodType   string    `json:"blood_type"`
	Urgency     string    `json:"urgency"`
	Units       int       `json:"units"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func decodeRequest(data []byte, now time.Time) (*models.BloodRequest, error) {
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	reqID, err := id.ParseRequestID(p.ID)
	if err != nil {
		return nil, err
	}
	requesterID, err := id.ParseRequesterID(p.RequesterID)
	if err != nil {
		return nil, err
	}
	bt, err := models.ParseBloodType(p.BloodType)
	if err != nil {
		return nil, err
	}
	urgency, err := models.ParseUrgency(p.Urgency)
	if err != nil {
		return nil, err
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	req := &models.BloodRequest{
		ID:          reqID,
		RequesterID: requesterID,
		BloodType:   bt,
		Urgency:     urgency,
		Units:       p.Units,
		Location:    models.Coordinates{Lat: p.Lat, Lon: p.Lon},
		CreatedAt:   createdAt,
		ExpiresAt:   p.ExpiresAt,
		Status:      models.StatusPending,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

type locationPayload struct {
	DonorID    string    `json:"donor_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recorded_at"`
	AccuracyM  float64   `json:"accuracy_m"`
	Source     string    `json:"source"`
}

func decodeLocation(data []byte) (id.DonorID, models.LocationReading, error) {
	var p locationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return id.DonorID{}, models.LocationReading{}, fmt.Errorf("decode location: %w", err)
	}
	donorID, err := id.ParseDonorID(p.DonorID)
	if err != nil {
		return id.DonorID{}, models.LocationReading{}, err
	}
	if p.RecordedAt.IsZero() {
		return id.DonorID{}, models.LocationReading{}, fmt.Errorf("decode location: recorded_at is required")
	}
	return donorID, models.LocationReading{
		Coordinates: models.Coordinates{Lat: p.Lat, Lon: p.Lon},
		RecordedAt:  p.RecordedAt,
		AccuracyM:   p.AccuracyM,
		Source:      models.LocationSource(p.Source),
	}, nil
}

// Decision values carried by donor responses.
const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

type responsePayload struct {
	RequestID string `json:"request_id"`
	AttemptID string `json:"attempt_id"`
	Decision  string `json:"decision"`
}

// attemptRef identifies an attempt within a request. Cancellations carry
// only the request.
type attemptRef struct {
	RequestID id.RequestID
	AttemptID id.AttemptID
}

func decodeRef(requestID, attemptID string, needAttempt bool) (attemptRef, error) {
	var ref attemptRef
	var err error
	if ref.RequestID, err = id.ParseRequestID(requestID); err != nil {
		return ref, err
	}
	if needAttempt {
		if ref.AttemptID, err = id.ParseAttemptID(attemptID); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

func decodeResponse(data []byte) (attemptRef, bool, error) {
	var p responsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return attemptRef{}, false, fmt.Errorf("decode response: %w", err)
	}
	ref, err := decodeRef(p.RequestID, p.AttemptID, true)
	if err != nil {
		return attemptRef{}, false, err
	}
	switch p.Decision {
	case DecisionAccept:
		return ref, true, nil
	case DecisionDecline:
		return ref, false, nil
	default:
		return attemptRef{}, false, fmt.Errorf("decode response: unknown decision %q", p.Decision)
	}
}

type signalPayload struct {
	RequestID string `json:"request_id"`
	AttemptID string `json:"attempt_id"`
}

func decodeSignal(data []byte, needAttempt bool) (attemptRef, error) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return attemptRef{}, fmt.Errorf("decode signal: %w", err)
	}
	return decodeRef(p.RequestID, p.AttemptID, needAttempt)
}

func decodeDonor(data []byte) (*models.Donor, error) {
	var d models.Donor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode donor: %w", err)
	}
	if d.ID.IsNil() {
		return nil, fmt.Errorf("decode donor: id is required")
	}
	bt, err := models.ParseBloodType(string(d.BloodType))
	if err != nil {
		return nil, err
	}
	d.BloodType = bt
	if !d.Availability.IsValid() {
		return nil, fmt.Errorf("decode donor: invalid availability %q", d.Availability)
	}
	d.Channels = platformstrings.DedupeFold(d.Channels)
	return &d, nil
}
