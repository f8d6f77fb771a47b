// Package notify delivers donor alerts and requester updates.
//
// A Channel is one delivery capability (push, SMS, email). The Dispatcher
// walks a donor's preferred channels in order, skipping channels whose
// circuit is open, and reports delivery failure only when every channel
// failed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/matching/models"
)

// Channel delivers an alert over a single medium.
type Channel interface {
	Kind() models.ChannelKind
	Send(ctx context.Context, alert models.Alert) (models.Ack, error)
}

// Producer is the part of the Kafka client channels use. *kgo.Client
// satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// TopicFor returns the outbound topic for a channel kind.
func TopicFor(kind models.ChannelKind) string {
	return "hemolink.alerts." + string(kind)
}

// KafkaChannel hands alerts to a delivery gateway over Kafka. The gateway
// owns the actual push/SMS/email provider; a produced record is the ack.
type KafkaChannel struct {
	kind     models.ChannelKind
	topic    string
	producer Producer
	clock    clockwork.Clock
}

type KafkaChannelOption func(*KafkaChannel)

func WithTopic(topic string) KafkaChannelOption {
	return func(c *KafkaChannel) {
		c.topic = topic
	}
}

func WithChannelClock(clock clockwork.Clock) KafkaChannelOption {
	return func(c *KafkaChannel) {
		c.clock = clock
	}
}

func NewKafkaChannel(kind models.ChannelKind, producer Producer, opts ...KafkaChannelOption) (*KafkaChannel, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if kind == "" {
		return nil, fmt.Errorf("channel kind is required")
	}
	c := &KafkaChannel{
		kind:     kind,
		topic:    TopicFor(kind),
		producer: producer,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *KafkaChannel) Kind() models.ChannelKind {
	return c.kind
}

func (c *KafkaChannel) Send(ctx context.Context, alert models.Alert) (models.Ack, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return models.Ack{}, fmt.Errorf("encode alert: %w", err)
	}
	record := &kgo.Record{
		Topic: c.topic,
		Key:   []byte(alert.DonorID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "attempt_id", Value: []byte(alert.AttemptID.String())},
			{Key: "urgency", Value: []byte(alert.Urgency)},
		},
	}
	produced, err := c.producer.ProduceSync(ctx, record).First()
	if err != nil {
		return models.Ack{}, fmt.Errorf("produce %s alert: %w", c.kind, err)
	}
	return models.Ack{
		Channel:     c.kind,
		MessageID:   produced.Topic + "/" + strconv.Itoa(int(produced.Partition)) + "/" + strconv.FormatInt(produced.Offset, 10),
		DeliveredAt: c.clock.Now(),
	}, nil
}

// LogChannel writes alerts to the logger. It is the development stand-in
// when no broker is configured.
type LogChannel struct {
	kind   models.ChannelKind
	logger *slog.Logger
	clock  clockwork.Clock
}

func NewLogChannel(kind models.ChannelKind, logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{kind: kind, logger: logger, clock: clockwork.NewRealClock()}
}

func (c *LogChannel) Kind() models.ChannelKind {
	return c.kind
}

func (c *LogChannel) Send(ctx context.Context, alert models.Alert) (models.Ack, error) {
	c.logger.InfoContext(ctx, "donor alert",
		"channel", c.kind,
		"request_id", alert.RequestID,
		"donor_id", alert.DonorID,
		"attempt_id", alert.AttemptID,
		"urgency", alert.Urgency,
		"deadline", alert.Deadline.Format(time.RFC3339),
	)
	return models.Ack{Channel: c.kind, MessageID: alert.AttemptID.String(), DeliveredAt: c.clock.Now()}, nil
}
