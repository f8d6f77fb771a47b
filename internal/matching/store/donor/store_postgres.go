package donor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	txcontext "hemolink/pkg/platform/tx"
)

// PostgresStore persists donor snapshots in the donors table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectDonor = `
	SELECT id, blood_type, lat, lon, location_recorded_at, location_accuracy_m, location_source,
		availability, availability_updated_at, last_donation_at,
		alerts_received, alerts_accepted, median_response_ms, active, channels
	FROM donors`

func (s *PostgresStore) GetDonor(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectDonor+` WHERE id = $1`, uuid.UUID(donorID))
	d, err := scanDonor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donor: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) GetDonors(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error) {
	out := make(map[id.DonorID]*models.Donor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, donorID := range ids {
		keys[i] = donorID.String()
	}

	rows, err := s.conn(ctx).QueryContext(ctx, selectDonor+` WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("get donors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		out[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donors: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveDonor(ctx context.Context, d *models.Donor) error {
	if d == nil || d.ID.IsNil() {
		return sentinel.ErrInvalidState
	}
	channels := make([]string, len(d.Channels))
	for i, c := range d.Channels {
		channels[i] = string(c)
	}
	var lastDonation sql.NullTime
	if d.LastDonation != nil {
		lastDonation = sql.NullTime{Time: *d.LastDonation, Valid: true}
	}

	query := `
		INSERT INTO donors (id, blood_type, lat, lon, location_recorded_at, location_accuracy_m, location_source,
			availability, availability_updated_at, last_donation_at,
			alerts_received, alerts_accepted, median_response_ms, active, channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			blood_type = EXCLUDED.blood_type,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			location_recorded_at = EXCLUDED.location_recorded_at,
			location_accuracy_m = EXCLUDED.location_accuracy_m,
			location_source = EXCLUDED.location_source,
			availability = EXCLUDED.availability,
			availability_updated_at = EXCLUDED.availability_updated_at,
			last_donation_at = EXCLUDED.last_donation_at,
			alerts_received = EXCLUDED.alerts_received,
			alerts_accepted = EXCLUDED.alerts_accepted,
			median_response_ms = EXCLUDED.median_response_ms,
			active = EXCLUDED.active,
			channels = EXCLUDED.channels
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		string(d.BloodType),
		d.Location.Coordinates.Lat,
		d.Location.Coordinates.Lon,
		d.Location.RecordedAt,
		d.Location.AccuracyM,
		string(d.Location.Source),
		string(d.Availability),
		d.AvailabilityUpdatedAt,
		lastDonation,
		d.Stats.AlertsReceived,
		d.Stats.AlertsAccepted,
		d.Stats.MedianResponse.Milliseconds(),
		d.Active,
		pq.Array(channels),
	)
	if err != nil {
		return fmt.Errorf("save donor: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonor(row scanner) (*models.Donor, error) {
	var (
		d            models.Donor
		rawID        uuid.UUID
		bloodType    string
		source       string
		availability string
		lastDonation sql.NullTime
		medianMs     int64
		channels     []string
	)
	err := row.Scan(
		&rawID,
		&bloodType,
		&d.Location.Coordinates.Lat,
		&d.Location.Coordinates.Lon,
		&d.Location.RecordedAt,
		&d.Location.AccuracyM,
		&source,
		&availability,
		&d.AvailabilityUpdatedAt,
		&lastDonation,
		&d.Stats.AlertsReceived,
		&d.Stats.AlertsAccepted,
		&medianMs,
		&d.Active,
		pq.Array(&channels),
	)
	if err != nil {
		return nil, err
	}

	d.ID = id.DonorID(rawID)
	d.BloodType = models.BloodType(bloodType)
	d.Location.Source = models.LocationSource(source)
	d.Availability = models.Availability(availability)
	d.Stats.MedianResponse = time.Duration(medianMs) * time.Millisecond
	if lastDonation.Valid {
		t := lastDonation.Time
		d.LastDonation = &t
	}
	for _, c := range channels {
		d.Channels = append(d.Channels, models.ChannelKind(c))
	}
	return &d, nil
}
