package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"hemolink/internal/matching/models"
	"hemolink/internal/platform/kafka/consumer"
	"hemolink/pkg/platform/sentinel"
)

// Handlers owns one handler per inbound topic. Malformed payloads and
// signals that arrive too late are logged and committed; only
// infrastructure failures are returned.
type Handlers struct {
	lifecycle Lifecycle
	locations LocationSink
	requests  RequestStore
	donors    DonorStore
	clock     clockwork.Clock
	logger    *slog.Logger
}

type Option func(*Handlers)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Handlers) {
		h.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

func NewHandlers(lifecycle Lifecycle, locations LocationSink, requests RequestStore, donors DonorStore, opts ...Option) (*Handlers, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle is required")
	}
	if locations == nil {
		return nil, fmt.Errorf("location sink is required")
	}
	if requests == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if donors == nil {
		return nil, fmt.Errorf("donor store is required")
	}
	h := &Handlers{
		lifecycle: lifecycle,
		locations: locations,
		requests:  requests,
		donors:    donors,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register binds every handler to its topic on r.
func (h *Handlers) Register(r *Router, topics Topics) {
	r.Register(topics.Requests, consumer.HandlerFunc(h.HandleRequest))
	r.Register(topics.Locations, consumer.HandlerFunc(h.HandleLocation))
	r.Register(topics.Responses, consumer.HandlerFunc(h.HandleResponse))
	r.Register(topics.Completions, consumer.HandlerFunc(h.HandleCompletion))
	r.Register(topics.Cancellations, consumer.HandlerFunc(h.HandleCancellation))
	r.Register(topics.Donors, consumer.HandlerFunc(h.HandleDonor))
}

// Topics names the inbound topics.
type Topics struct {
	Requests      string
	Locations     string
	Responses     string
	Completions   string
	Cancellations string
	Donors        string
}

// HandleRequest stores and submits a new request. A redelivered request
// that is still open is resubmitted from its stored copy, keeping the
// donors already alerted.
func (h *Handlers) HandleRequest(ctx context.Context, msg *consumer.Message) error {
	req, err := decodeRequest(msg.Value, h.clock.Now())
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}

	if err := h.requests.CreateRequest(ctx, req); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return fmt.Errorf("store request: %w", err)
		}
		stored, err := h.requests.GetRequest(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("load stored request: %w", err)
		}
		if stored.Status.IsTerminal() {
			h.logger.DebugContext(ctx, "request already finished, skipping", "request_id", req.ID, "status", stored.Status)
			return nil
		}
		req = stored
		req.Status = models.StatusPending
	}

	if err := h.lifecycle.Submit(ctx, req); err != nil {
		if errors.Is(err, models.ErrRequestExists) {
			h.logger.DebugContext(ctx, "request already submitted", "request_id", req.ID)
			return nil
		}
		return fmt.Errorf("submit request: %w", err)
	}
	return nil
}

func (h *Handlers) HandleLocation(ctx context.Context, msg *consumer.Message) error {
	donorID, reading, err := decodeLocation(msg.Value)
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}
	if err := h.locations.Apply(ctx, donorID, reading); err != nil {
		if errors.Is(err, models.ErrMalformedCoordinates) {
			h.malformed(ctx, msg, err)
			return nil
		}
		return fmt.Errorf("apply location: %w", err)
	}
	return nil
}

func (h *Handlers) HandleResponse(ctx context.Context, msg *consumer.Message) error {
	ref, accept, err := decodeResponse(msg.Value)
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}
	if accept {
		err = h.lifecycle.Accept(ctx, ref.RequestID, ref.AttemptID)
	} else {
		err = h.lifecycle.Decline(ctx, ref.RequestID, ref.AttemptID)
	}
	return h.signalResult(ctx, "donor response", ref, err)
}

func (h *Handlers) HandleCompletion(ctx context.Context, msg *consumer.Message) error {
	ref, err := decodeSignal(msg.Value, true)
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}
	return h.signalResult(ctx, "donation completion", ref, h.lifecycle.Complete(ctx, ref.RequestID, ref.AttemptID))
}

func (h *Handlers) HandleCancellation(ctx context.Context, msg *consumer.Message) error {
	ref, err := decodeSignal(msg.Value, false)
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}
	return h.signalResult(ctx, "cancellation", ref, h.lifecycle.Cancel(ctx, ref.RequestID))
}

// HandleDonor stores a donor snapshot and keeps the index in step:
// inactive donors leave the index, active ones with a reading enter it.
func (h *Handlers) HandleDonor(ctx context.Context, msg *consumer.Message) error {
	donor, err := decodeDonor(msg.Value)
	if err != nil {
		h.malformed(ctx, msg, err)
		return nil
	}
	if err := h.donors.SaveDonor(ctx, donor); err != nil {
		return fmt.Errorf("save donor: %w", err)
	}
	if !donor.Active {
		h.locations.Deactivate(donor.ID)
		return nil
	}
	if donor.Location.RecordedAt.IsZero() {
		return nil
	}
	if err := h.locations.Apply(ctx, donor.ID, donor.Location); err != nil && !errors.Is(err, models.ErrMalformedCoordinates) {
		return fmt.Errorf("apply donor location: %w", err)
	}
	return nil
}

// signalResult treats late or stale signals as normal: the request moved
// on before the signal arrived.
func (h *Handlers) signalResult(ctx context.Context, kind string, ref attemptRef, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrAttemptNotPending) ||
		errors.Is(err, models.ErrRequestNotFound) ||
		errors.Is(err, sentinel.ErrInvalidState) {
		h.logger.InfoContext(ctx, kind+" ignored",
			"request_id", ref.RequestID,
			"attempt_id", ref.AttemptID,
			"reason", err,
		)
		return nil
	}
	return fmt.Errorf("%s: %w", kind, err)
}

func (h *Handlers) malformed(ctx context.Context, msg *consumer.Message, err error) {
	h.logger.WarnContext(ctx, "dropping malformed message",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)
}
