package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/sentinel"
	txcontext "hemolink/pkg/platform/tx"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore persists requests and match attempts.
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

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.BloodRequest) error {
	query := `
		INSERT INTO blood_requests (id, requester_id, blood_type, urgency, units, lat, lon,
			created_at, expires_at, status, attempted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(req.ID),
		uuid.UUID(req.RequesterID),
		string(req.BloodType),
		string(req.Urgency),
		req.Units,
		req.Location.Lat,
		req.Location.Lon,
		req.CreatedAt,
		req.ExpiresAt,
		string(req.Status),
		pq.Array(donorStrings(req.Attempted)),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	query := `
		SELECT id, requester_id, blood_type, urgency, units, lat, lon, created_at, expires_at, status, attempted
		FROM blood_requests WHERE id = $1
	`
	var (
		req         models.BloodRequest
		rawID       uuid.UUID
		requesterID uuid.UUID
		bloodType   string
		urgency     string
		status      string
		attempted   []string
	)
	err := s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID)).Scan(
		&rawID, &requesterID, &bloodType, &urgency, &req.Units,
		&req.Location.Lat, &req.Location.Lon, &req.CreatedAt, &req.ExpiresAt,
		&status, pq.Array(&attempted),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}

	req.ID = id.RequestID(rawID)
	req.RequesterID = id.RequesterID(requesterID)
	req.BloodType = models.BloodType(bloodType)
	req.Urgency = models.Urgency(urgency)
	req.Status = models.RequestStatus(status)
	for _, a := range attempted {
		donorID, err := id.ParseDonorID(a)
		if err != nil {
			return nil, fmt.Errorf("parse attempted donor: %w", err)
		}
		req.Attempted = append(req.Attempted, donorID)
	}
	return &req, nil
}

// ApplyStatusChange updates the request row and upserts the attempt in one
// transaction. A pending attempt left over from an earlier run of the
// request is closed first so the one-pending index holds. Terminal requests
// are left untouched.
func (s *PostgresStore) ApplyStatusChange(ctx context.Context, change models.StatusChange) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := s.conn(ctx).ExecContext(ctx, `
			UPDATE blood_requests
			SET status = $2, attempted = $3, updated_at = $4
			WHERE id = $1 AND status NOT IN ('fulfilled', 'expired', 'cancelled')
		`,
			uuid.UUID(change.RequestID),
			string(change.To),
			pq.Array(donorStrings(change.Attempted)),
			change.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var exists bool
			if err := s.conn(ctx).QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM blood_requests WHERE id = $1)`,
				uuid.UUID(change.RequestID)).Scan(&exists); err != nil {
				return fmt.Errorf("check request: %w", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return nil
		}

		if outcome, ok := supersededOutcome(change); ok {
			keep := uuid.Nil
			if change.Attempt != nil {
				keep = uuid.UUID(change.Attempt.ID)
			}
			if _, err := s.conn(ctx).ExecContext(ctx, `
				UPDATE match_attempts SET outcome = $3, resolved_at = $4
				WHERE request_id = $1 AND id <> $2 AND outcome = 'pending'
			`, uuid.UUID(change.RequestID), keep, string(outcome), change.OccurredAt); err != nil {
				return fmt.Errorf("close superseded attempts: %w", err)
			}
		}

		if change.Attempt == nil {
			return nil
		}
		a := change.Attempt
		var resolvedAt sql.NullTime
		if a.ResolvedAt != nil {
			resolvedAt = sql.NullTime{Time: *a.ResolvedAt, Valid: true}
		}
		_, err = s.conn(ctx).ExecContext(ctx, `
			INSERT INTO match_attempts (id, request_id, donor_id, rank, score, dispatched_at, deadline,
				outcome, resolved_at, delivery_failed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				outcome = EXCLUDED.outcome,
				resolved_at = EXCLUDED.resolved_at,
				delivery_failed = EXCLUDED.delivery_failed
		`,
			uuid.UUID(a.ID),
			uuid.UUID(a.RequestID),
			uuid.UUID(a.DonorID),
			a.Rank,
			a.Score,
			a.DispatchedAt,
			a.Deadline,
			string(a.Outcome),
			resolvedAt,
			a.DeliveryFailed,
		)
		if err != nil {
			return fmt.Errorf("upsert attempt: %w", err)
		}
		return nil
	})
}

// ListAttempts returns a request's attempts in dispatch order.
func (s *PostgresStore) ListAttempts(ctx context.Context, requestID id.RequestID) ([]models.MatchAttempt, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, request_id, donor_id, rank, score, dispatched_at, deadline, outcome, resolved_at, delivery_failed
		FROM match_attempts WHERE request_id = $1
		ORDER BY dispatched_at, rank
	`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.MatchAttempt
	for rows.Next() {
		var (
			a                         models.MatchAttempt
			attemptID, reqID, donorID uuid.UUID
			outcome                   string
			resolvedAt                sql.NullTime
		)
		if err := rows.Scan(&attemptID, &reqID, &donorID, &a.Rank, &a.Score,
			&a.DispatchedAt, &a.Deadline, &outcome, &resolvedAt, &a.DeliveryFailed); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.ID = id.AttemptID(attemptID)
		a.RequestID = id.RequestID(reqID)
		a.DonorID = id.DonorID(donorID)
		a.Outcome = models.AttemptOutcome(outcome)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func donorStrings(ids []id.DonorID) []string {
	out := make([]string, len(ids))
	for i, d := range ids {
		out[i] = d.String()
	}
	return out
}

// isUniqueViolation recognises unique violations from either pgx or lib/pq.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == uniqueViolation
	}
	return false
}
