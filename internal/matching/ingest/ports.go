package ingest

import (
	"context"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	id "hemolink/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/ingest_mock.go -package=mocks

type (
	RequestStore = ports.RequestStore
	DonorStore   = ports.DonorStore
)

// Lifecycle is the part of the coordinator that inbound signals drive.
type Lifecycle interface {
	Submit(ctx context.Context, req *models.BloodRequest) error
	Accept(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error
	Decline(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error
	Cancel(ctx context.Context, requestID id.RequestID) error
	Complete(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error
}

// LocationSink keeps the location store and index in step.
type LocationSink interface {
	Apply(ctx context.Context, donorID id.DonorID, reading models.LocationReading) error
	Deactivate(donorID id.DonorID)
}
