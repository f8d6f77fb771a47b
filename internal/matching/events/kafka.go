package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/matching/models"
)

const StatusChangesTopic = "hemolink.status-changes"

// AsyncProducer is the part of *kgo.Client the reporter needs.
type AsyncProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaReporter publishes status changes keyed by request ID, so one
// request's changes keep their order on a single partition.
type KafkaReporter struct {
	producer AsyncProducer
	topic    string
	logger   *slog.Logger

	inflight sync.WaitGroup
	failed   atomic.Int64
}

type KafkaOption func(*KafkaReporter)

func WithTopic(topic string) KafkaOption {
	return func(r *KafkaReporter) {
		r.topic = topic
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(r *KafkaReporter) {
		r.logger = logger
	}
}

func NewKafkaReporter(producer AsyncProducer, opts ...KafkaOption) *KafkaReporter {
	r := &KafkaReporter{
		producer: producer,
		topic:    StatusChangesTopic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *KafkaReporter) Report(ctx context.Context, change models.StatusChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		r.failed.Add(1)
		r.logger.ErrorContext(ctx, "encode status change", "request_id", change.RequestID, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(change.RequestID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "status", Value: []byte(change.To)},
			{Key: "reason", Value: []byte(change.Reason)},
		},
	}

	r.inflight.Add(1)
	// The actor's context ends with the request; the record must outlive it.
	r.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		defer r.inflight.Done()
		if err != nil {
			r.failed.Add(1)
			r.logger.Warn("publish status change failed",
				"request_id", change.RequestID,
				"to", change.To,
				"error", err,
			)
		}
	})
}

// Failed returns the number of changes that could not be published.
func (r *KafkaReporter) Failed() int64 {
	return r.failed.Load()
}

// Wait blocks until every produced record has been acknowledged or failed.
func (r *KafkaReporter) Wait() {
	r.inflight.Wait()
}
