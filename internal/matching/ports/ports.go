// Package ports defines the collaborator interfaces the matching core consumes.
// Interfaces live here when more than one package depends on them.
package ports

import (
	"context"
	"log/slog"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

// LocationStore is the system of record for donor positions. The geo index
// is a read-optimised projection over it.
type LocationStore interface {
	// CurrentLocation returns sentinel.ErrNotFound when the donor has no reading.
	CurrentLocation(ctx context.Context, donorID id.DonorID) (*models.LocationReading, error)

	// SaveLocation stores a reading unless a newer one is already present.
	SaveLocation(ctx context.Context, donorID id.DonorID, reading models.LocationReading) error

	// AllLocations returns every stored reading, used to rebuild the index.
	AllLocations(ctx context.Context) (map[id.DonorID]models.LocationReading, error)
}

// DonorStore supplies donor snapshots. The matching core never writes donor
// profile fields; SaveDonor exists for the ingest path and tests.
type DonorStore interface {
	GetDonor(ctx context.Context, donorID id.DonorID) (*models.Donor, error)

	// GetDonors returns the donors that exist; missing IDs are omitted.
	GetDonors(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error)

	SaveDonor(ctx context.Context, donor *models.Donor) error
}

// RequestStore holds submitted requests and the status the coordinator reports.
type RequestStore interface {
	// CreateRequest returns sentinel.ErrConflict if the ID already exists.
	CreateRequest(ctx context.Context, req *models.BloodRequest) error

	GetRequest(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error)

	// ApplyStatusChange records a coordinator transition and its attempt.
	ApplyStatusChange(ctx context.Context, change models.StatusChange) error
}

// Notifier delivers alerts to donors and outcomes to requesters. The
// coordinator calls it off the request actor and treats an error from
// SendAlert as a decline-equivalent, never as fatal.
type Notifier interface {
	SendAlert(ctx context.Context, alert models.Alert) (models.Ack, error)
	NotifyRequester(ctx context.Context, update models.RequesterUpdate) error
}

// StatusReporter receives every request transition. Implementations must
// not block: they are called from inside request actors.
type StatusReporter interface {
	Report(ctx context.Context, change models.StatusChange)
}

// CandidateFinder produces the ranked candidate list for a request.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, req *models.BloodRequest, radiusKm float64) (*models.SearchResult, error)
}

// AuditPublisher emits audit events for clinically relevant actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event to the structured logger and, when
// configured, the audit publisher.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event) {
	if logger != nil {
		logger.InfoContext(ctx, event.Action,
			"log_type", "audit",
			"request_id", event.RequestID,
			"donor_id", event.DonorID,
			"attempt_id", event.AttemptID,
			"decision", event.Decision,
			"reason", event.Reason,
		)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
