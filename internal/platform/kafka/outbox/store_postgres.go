package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "hemolink/pkg/platform/tx"
)

// PostgresStore claims rows with FOR UPDATE SKIP LOCKED so several relays
// can run against one database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Claim(ctx context.Context, limit int, publish func(ctx context.Context, entries []Entry) []uuid.UUID) (int, error) {
	var claimed int
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		tx, _ := txcontext.From(ctx)
		rows, err := tx.QueryContext(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
			FROM outbox
			WHERE published_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("select outbox: %w", err)
		}
		var entries []Entry
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan outbox: %w", err)
			}
			entries = append(entries, e)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close outbox rows: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox: %w", err)
		}
		claimed = len(entries)
		if claimed == 0 {
			return nil
		}

		published := publish(ctx, entries)
		if len(published) == 0 {
			return nil
		}
		ids := make([]string, len(published))
		for i, u := range published {
			ids[i] = u.String()
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		return nil
	})
	return claimed, err
}
