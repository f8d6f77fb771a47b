// Package kafka builds the franz-go client and bootstraps topics.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemolink/internal/platform/config"
)

// Topic names shared by producers and consumers.
const (
	TopicRequests      = "hemolink.requests"
	TopicLocations     = "hemolink.locations"
	TopicResponses     = "hemolink.responses"
	TopicCompletions   = "hemolink.completions"
	TopicCancellations = "hemolink.cancellations"
	TopicDonors        = "hemolink.donors"

	TopicStatusChanges    = "hemolink.status-changes"
	TopicRequesterUpdates = "hemolink.requester-updates"
	TopicAlertsPush       = "hemolink.alerts.push"
	TopicAlertsSMS        = "hemolink.alerts.sms"
	TopicAlertsEmail      = "hemolink.alerts.email"
	TopicAudit            = "hemolink.audit"
)

// InboundTopics are consumed by the matching service.
var InboundTopics = []string{
	TopicRequests,
	TopicLocations,
	TopicResponses,
	TopicCompletions,
	TopicCancellations,
	TopicDonors,
}

// AllTopics is every topic the service reads or writes.
func AllTopics() []string {
	return append(append([]string(nil), InboundTopics...),
		TopicStatusChanges,
		TopicRequesterUpdates,
		TopicAlertsPush,
		TopicAlertsSMS,
		TopicAlertsEmail,
		TopicAudit,
	)
}

// NewClient returns a producer-capable client. Pass consumer options
// (kgo.ConsumerGroup, kgo.ConsumeTopics) through extra.
func NewClient(cfg config.KafkaConfig, extra ...kgo.Opt) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	opts = append(opts, extra...)
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return cl, nil
}

// NewConsumerClient joins the configured consumer group on the inbound
// topics with manual commits.
func NewConsumerClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	return NewClient(cfg,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(InboundTopics...),
		kgo.DisableAutoCommit(),
	)
}

// EnsureTopics creates any missing topics. Existing topics are left as is.
func EnsureTopics(ctx context.Context, cl *kgo.Client, partitions int32, replication int16, topics ...string) error {
	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			errs = append(errs, fmt.Errorf("topic %s: %w", t.Topic, t.Err))
		}
	}
	return errors.Join(errs...)
}
