package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "hemolink/pkg/domain"
	audit "hemolink/pkg/platform/audit"
	txcontext "hemolink/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and relayed to Kafka by the outbox
// relay; audit_events is the materialized query view.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
	DonorID   string `json:"donor_id,omitempty"`
	AttemptID string `json:"attempt_id,omitempty"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
}

// Append writes an audit event to the outbox and the audit_events view in the
// caller's transaction when one is present.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		Urgency:   event.Urgency,
	}
	if !event.RequestID.IsNil() {
		payload.RequestID = event.RequestID.String()
	}
	if !event.DonorID.IsNil() {
		payload.DonorID = event.DonorID.String()
	}
	if !event.AttemptID.IsNil() {
		payload.AttemptID = event.AttemptID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateID := eventID.String()
	if payload.RequestID != "" {
		aggregateID = payload.RequestID
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, 'blood_request', $2, $3, $4, $5)
	`, uuid.New(), aggregateID, event.Action, payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_events (id, category, timestamp, request_id, donor_id, attempt_id, action, decision, reason, urgency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, eventID, string(category), event.Timestamp,
		nullableUUID(uuid.UUID(event.RequestID)),
		nullableUUID(uuid.UUID(event.DonorID)),
		nullableUUID(uuid.UUID(event.AttemptID)),
		event.Action, event.Decision, event.Reason, event.Urgency)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByRequest returns the materialized events for a request, oldest first.
func (s *Store) ListByRequest(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, request_id, donor_id, attempt_id, action, decision, reason, urgency
		FROM audit_events
		WHERE request_id = $1
		ORDER BY timestamp ASC
	`, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                         audit.Event
			category                  string
			reqID, donorID, attemptID uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Timestamp, &reqID, &donorID, &attemptID,
			&e.Action, &e.Decision, &e.Reason, &e.Urgency); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if reqID.Valid {
			e.RequestID = id.RequestID(reqID.UUID)
		}
		if donorID.Valid {
			e.DonorID = id.DonorID(donorID.UUID)
		}
		if attemptID.Valid {
			e.AttemptID = id.AttemptID(attemptID.UUID)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
