// Package outbox relays rows written by the Postgres audit store to Kafka.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultBatchSize = 100

// Entry is one unpublished outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Store claims unpublished entries. publish is called inside the claim;
// the IDs it returns are marked published when the claim commits.
type Store interface {
	Claim(ctx context.Context, limit int, publish func(ctx context.Context, entries []Entry) []uuid.UUID) (int, error)
}

type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	store     Store
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	clock     clockwork.Clock
	logger    *slog.Logger
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Relay) {
		r.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(store Store, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		producer:  producer,
		topic:     topic,
		interval:  time.Second,
		batchSize: defaultBatchSize,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes on every tick until ctx is cancelled. A full batch is
// followed immediately by another pass.
func (r *Relay) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.PublishBatch(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
			if err != nil || n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// PublishBatch relays one batch and returns how many entries were claimed.
// Entries that fail to produce stay unpublished for the next pass.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	return r.store.Claim(ctx, r.batchSize, func(ctx context.Context, entries []Entry) []uuid.UUID {
		records := make([]*kgo.Record, len(entries))
		byRecord := make(map[*kgo.Record]Entry, len(entries))
		for i, e := range entries {
			records[i] = &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "aggregate_type", Value: []byte(e.AggregateType)},
				},
			}
			byRecord[records[i]] = e
		}

		// Results arrive in completion order, not input order.
		results := r.producer.ProduceSync(ctx, records...)
		published := make([]uuid.UUID, 0, len(entries))
		for _, res := range results {
			e, ok := byRecord[res.Record]
			if !ok {
				continue
			}
			if res.Err != nil {
				r.logger.WarnContext(ctx, "outbox entry not published",
					"id", e.ID,
					"event_type", e.EventType,
					"error", res.Err,
				)
				continue
			}
			published = append(published, e.ID)
		}
		return published
	})
}
