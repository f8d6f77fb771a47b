package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	"hemolink/pkg/platform/circuit"
)

// DefaultOrder is used for donors without channel preferences.
var DefaultOrder = []models.ChannelKind{models.ChannelPush, models.ChannelSMS, models.ChannelEmail}

var errNoChannel = errors.New("no configured channel for donor")

// Dispatcher implements the coordinator's Notifier.
type Dispatcher struct {
	channels map[models.ChannelKind]Channel
	breakers map[models.ChannelKind]*circuit.Breaker
	updates  UpdatePublisher

	breakerOpts []circuit.Option
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Dispatcher)

func WithUpdatePublisher(p UpdatePublisher) Option {
	return func(d *Dispatcher) {
		d.updates = p
	}
}

// WithBreakerOptions configures the per-channel circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(d *Dispatcher) {
		d.breakerOpts = append(d.breakerOpts, opts...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(channels []Channel, opts ...Option) (*Dispatcher, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	d := &Dispatcher{
		channels: make(map[models.ChannelKind]Channel, len(channels)),
		breakers: make(map[models.ChannelKind]*circuit.Breaker, len(channels)),
		logger:   slog.Default(),
		tracer:   otel.Tracer("hemolink/matching/notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, ch := range channels {
		if ch == nil {
			return nil, fmt.Errorf("channel is nil")
		}
		kind := ch.Kind()
		if _, dup := d.channels[kind]; dup {
			return nil, fmt.Errorf("duplicate channel %q", kind)
		}
		d.channels[kind] = ch
		d.breakers[kind] = circuit.New(string(kind), d.breakerOpts...)
	}
	if d.updates == nil {
		d.updates = NewLogUpdatePublisher(d.logger)
	}
	return d, nil
}

// SendAlert tries the donor's channels in preference order and returns the
// first ack. It fails with models.ErrNotificationDelivery only when every
// candidate channel failed or was short-circuited.
func (d *Dispatcher) SendAlert(ctx context.Context, alert models.Alert) (models.Ack, error) {
	ctx, span := d.tracer.Start(ctx, "notify.SendAlert", trace.WithAttributes(
		attribute.String("request.id", alert.RequestID.String()),
		attribute.String("attempt.id", alert.AttemptID.String()),
		attribute.String("request.urgency", string(alert.Urgency)),
	))
	defer span.End()

	var errs []error
	for _, kind := range d.order(alert.Channels) {
		breaker := d.breakers[kind]
		if !breaker.Allow() {
			errs = append(errs, fmt.Errorf("%s: circuit open", kind))
			continue
		}

		ack, err := d.channels[kind].Send(ctx, alert)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			d.recordFailure(ctx, kind, alert, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if _, change := breaker.RecordSuccess(); change.Closed {
			d.metrics.SetCircuitOpen(string(kind), false)
			d.logger.InfoContext(ctx, "notification channel recovered", "channel", kind)
		}
		span.SetAttributes(attribute.String("notify.channel", string(kind)))
		return ack, nil
	}

	if len(errs) == 0 {
		errs = append(errs, errNoChannel)
	}
	err := fmt.Errorf("%w: %w", models.ErrNotificationDelivery, errors.Join(errs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")
	return models.Ack{}, err
}

func (d *Dispatcher) recordFailure(ctx context.Context, kind models.ChannelKind, alert models.Alert, err error) {
	d.metrics.IncrementDeliveryFailure(string(kind))
	d.logger.WarnContext(ctx, "alert delivery failed",
		"channel", kind,
		"request_id", alert.RequestID,
		"donor_id", alert.DonorID,
		"attempt_id", alert.AttemptID,
		"error", err,
	)
	if _, change := d.breakers[kind].RecordFailure(); change.Opened {
		d.metrics.SetCircuitOpen(string(kind), true)
		d.logger.ErrorContext(ctx, "notification channel circuit opened", "channel", kind)
	}
}

// order returns the donor's preferred channels that are configured, or the
// default order when the donor has none. Preferences are a consent list:
// unlisted channels are never tried.
func (d *Dispatcher) order(preferred []models.ChannelKind) []models.ChannelKind {
	src := preferred
	if len(src) == 0 {
		src = DefaultOrder
	}
	out := make([]models.ChannelKind, 0, len(src))
	for _, kind := range src {
		if _, ok := d.channels[kind]; !ok || slices.Contains(out, kind) {
			continue
		}
		out = append(out, kind)
	}
	return out
}

// NotifyRequester forwards the update to the configured publisher.
func (d *Dispatcher) NotifyRequester(ctx context.Context, update models.RequesterUpdate) error {
	if err := d.updates.Publish(ctx, update); err != nil {
		return fmt.Errorf("notify requester: %w", err)
	}
	return nil
}

// CircuitOpen reports whether the breaker for kind is open.
func (d *Dispatcher) CircuitOpen(kind models.ChannelKind) bool {
	b, ok := d.breakers[kind]
	return ok && b.IsOpen()
}
