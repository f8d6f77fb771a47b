package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/matching/models"
)

const RequesterUpdatesTopic = "hemolink.requester-updates"

// UpdatePublisher carries requester-facing outcomes.
type UpdatePublisher interface {
	Publish(ctx context.Context, update models.RequesterUpdate) error
}

// KafkaUpdatePublisher produces updates keyed by request ID so a request's
// updates stay ordered on one partition.
type KafkaUpdatePublisher struct {
	producer Producer
	topic    string
}

func NewKafkaUpdatePublisher(producer Producer, topic string) (*KafkaUpdatePublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		topic = RequesterUpdatesTopic
	}
	return &KafkaUpdatePublisher{producer: producer, topic: topic}, nil
}

func (p *KafkaUpdatePublisher) Publish(ctx context.Context, update models.RequesterUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode requester update: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(update.RequestID.String()),
		Value: payload,
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce requester update: %w", err)
	}
	return nil
}

type LogUpdatePublisher struct {
	logger *slog.Logger
}

func NewLogUpdatePublisher(logger *slog.Logger) *LogUpdatePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogUpdatePublisher{logger: logger}
}

func (p *LogUpdatePublisher) Publish(ctx context.Context, update models.RequesterUpdate) error {
	p.logger.InfoContext(ctx, "requester update",
		"request_id", update.RequestID,
		"requester_id", update.RequesterID,
		"status", update.Status,
		"reason", update.Reason,
	)
	return nil
}
