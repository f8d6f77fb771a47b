// Package coordinator runs the lifecycle of every live blood request.
//
// Each submitted request is owned by one actor goroutine with a private
// inbox. Donor responses, deadline timers, delivery results, cancellations
// and completion signals all become inbox events, so transitions for one
// request are strictly serialized while different requests progress in
// parallel without shared locks.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	id "hemolink/pkg/domain"
	dErrors "hemolink/pkg/domain-errors"
)

type (
	CandidateFinder = ports.CandidateFinder
	Notifier        = ports.Notifier
	StatusReporter  = ports.StatusReporter
	AuditPublisher  = ports.AuditPublisher
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("coordinator closed")

type finished struct {
	snapshot Snapshot
	at       time.Time
}

type Coordinator struct {
	finder   CandidateFinder
	notifier Notifier
	reporter StatusReporter
	audit    AuditPublisher
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	actors   map[id.RequestID]*actor
	finished map[id.RequestID]finished
}

type Option func(*Coordinator)

func WithReporter(r StatusReporter) Option {
	return func(c *Coordinator) {
		c.reporter = r
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *Coordinator) {
		c.audit = p
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

func New(finder CandidateFinder, notifier Notifier, opts ...Option) (*Coordinator, error) {
	if finder == nil {
		return nil, fmt.Errorf("candidate finder is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	c := &Coordinator{
		finder:   finder,
		notifier: notifier,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		cfg:      DefaultConfig(),
		actors:   make(map[id.RequestID]*actor),
		finished: make(map[id.RequestID]finished),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.InboxSize <= 0 {
		c.cfg.InboxSize = DefaultConfig().InboxSize
	}
	if c.cfg.SendTimeout <= 0 {
		c.cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	if c.cfg.SearchBackoff <= 0 {
		c.cfg.SearchBackoff = DefaultConfig().SearchBackoff
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Submit starts matching a validated request. The request must be pending;
// a request ID can only be submitted once.
func (c *Coordinator) Submit(ctx context.Context, req *models.BloodRequest) error {
	if req == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if req.Status != models.StatusPending {
		return dErrors.New(dErrors.CodeValidation, "only pending requests can be submitted")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	_, active := c.actors[req.ID]
	_, done := c.finished[req.ID]
	if active || done {
		c.mu.Unlock()
		return models.ErrRequestExists
	}
	a := newActor(c, req.Clone())
	c.actors[req.ID] = a
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.AddActiveRequests(1)
	c.logger.InfoContext(ctx, "blood request submitted",
		"request_id", req.ID,
		"urgency", req.Urgency,
		"blood_type", req.BloodType,
	)

	go func() {
		defer c.wg.Done()
		a.run(c.ctx)
	}()
	return nil
}

// Accept records a donor's acceptance of the given attempt. Late, stale or
// unknown attempts return ErrAttemptNotPending.
func (c *Coordinator) Accept(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error {
	return c.respond(ctx, requestID, attemptID, true)
}

// Decline records a donor's refusal of the given attempt.
func (c *Coordinator) Decline(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error {
	return c.respond(ctx, requestID, attemptID, false)
}

func (c *Coordinator) respond(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID, accept bool) error {
	reply := make(chan error, 1)
	return c.ask(ctx, requestID, donorResponse{attemptID: attemptID, accept: accept, reply: reply}, reply, models.ErrAttemptNotPending)
}

// Cancel cancels a non-terminal request. Any outstanding alert is
// invalidated: a later accept is ignored.
func (c *Coordinator) Cancel(ctx context.Context, requestID id.RequestID) error {
	reply := make(chan error, 1)
	return c.ask(ctx, requestID, cancelRequest{reply: reply}, reply, errTerminal)
}

// Complete is the donation-completion signal. It moves a matched request to
// fulfilled when attemptID is the accepted attempt.
func (c *Coordinator) Complete(ctx context.Context, requestID id.RequestID, attemptID id.AttemptID) error {
	reply := make(chan error, 1)
	return c.ask(ctx, requestID, completeDonation{attemptID: attemptID, reply: reply}, reply, errTerminal)
}

// ask posts ev to the request's actor and waits for its reply. gone is
// returned when the request has already finished.
func (c *Coordinator) ask(ctx context.Context, requestID id.RequestID, ev event, reply chan error, gone error) error {
	a, err := c.lookup(requestID, gone)
	if err != nil {
		return err
	}
	if !a.post(ev) {
		return gone
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		// The actor may have answered just before exiting.
		select {
		case err := <-reply:
			return err
		default:
			return gone
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) lookup(requestID id.RequestID, gone error) (*actor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.actors[requestID]; ok {
		return a, nil
	}
	if _, ok := c.finished[requestID]; ok {
		return nil, gone
	}
	return nil, models.ErrRequestNotFound
}

// Snapshot returns the current state of a live or recently finished request.
func (c *Coordinator) Snapshot(ctx context.Context, requestID id.RequestID) (Snapshot, error) {
	c.mu.RLock()
	a, active := c.actors[requestID]
	f, done := c.finished[requestID]
	c.mu.RUnlock()

	if done {
		return f.snapshot, nil
	}
	if !active {
		return Snapshot{}, models.ErrRequestNotFound
	}

	reply := make(chan Snapshot, 1)
	if a.post(snapshotQuery{reply: reply}) {
		select {
		case s := <-reply:
			return s, nil
		case <-a.done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	<-a.done
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.finished[requestID]; ok {
		return f.snapshot, nil
	}
	return Snapshot{}, models.ErrRequestNotFound
}

// ActiveRequests returns the number of live request actors.
func (c *Coordinator) ActiveRequests() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actors)
}

// Close stops every actor and waits for them to exit. Requests still live
// are left in their current state.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// finish moves an exiting actor into the finished set and prunes entries
// past retention.
func (c *Coordinator) finish(a *actor, snap Snapshot) {
	now := c.clock.Now()

	c.mu.Lock()
	delete(c.actors, a.req.ID)
	c.finished[a.req.ID] = finished{snapshot: snap, at: now}
	if c.cfg.Retention > 0 {
		for reqID, f := range c.finished {
			if now.Sub(f.at) > c.cfg.Retention {
				delete(c.finished, reqID)
			}
		}
	}
	c.mu.Unlock()

	c.metrics.AddActiveRequests(-1)
}
