// Package publisher emits audit events to an audit.Store.
//
// In sync mode Emit writes through to the store. In async mode Emit enqueues
// onto a bounded buffer drained by a background worker; when the buffer is
// full the event is dropped and counted, so emitters never block. The
// coordinator always runs in async mode.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	id "hemolink/pkg/domain"
	audit "hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/audit/worker"
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	queue      chan audit.Event
	done       chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.queue, p.logFailure)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records an event, stamping Timestamp and Category when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.queue == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return nil
	}
	select {
	case p.queue <- event:
	default:
		p.dropped.Add(1)
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action, "request_id", event.RequestID)
		}
	}
	return nil
}

// List returns stored events for a request.
func (p *Publisher) List(ctx context.Context, requestID id.RequestID) ([]audit.Event, error) {
	return p.store.ListByRequest(ctx, requestID)
}

// Dropped returns the number of events lost to a full buffer or a closed publisher.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and drains the async buffer.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) logFailure(event audit.Event, err error) {
	if p.logger != nil {
		p.logger.Error("failed to persist audit event", "action", event.Action, "request_id", event.RequestID, "error", err)
	}
}
