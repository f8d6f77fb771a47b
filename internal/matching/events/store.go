package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	"hemolink/pkg/platform/sentinel"
)

const defaultStoreBuffer = 1024

type RequestStore = ports.RequestStore

// StoreReporter applies status changes to the request store from a single
// background worker, preserving report order. A full buffer drops the
// change and counts it rather than stalling the actor.
type StoreReporter struct {
	store  RequestStore
	logger *slog.Logger

	queue chan models.StatusChange
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

type StoreOption func(*StoreReporter)

func WithBuffer(size int) StoreOption {
	return func(r *StoreReporter) {
		if size > 0 {
			r.queue = make(chan models.StatusChange, size)
		}
	}
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(r *StoreReporter) {
		r.logger = logger
	}
}

func NewStoreReporter(store RequestStore, opts ...StoreOption) *StoreReporter {
	r := &StoreReporter{
		store:  store,
		logger: slog.Default(),
		queue:  make(chan models.StatusChange, defaultStoreBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

func (r *StoreReporter) Report(ctx context.Context, change models.StatusChange) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- change:
	default:
		r.dropped.Add(1)
		r.logger.WarnContext(ctx, "status buffer full, dropping change",
			"request_id", change.RequestID,
			"to", change.To,
		)
	}
}

func (r *StoreReporter) run() {
	defer close(r.done)
	ctx := context.Background()
	for change := range r.queue {
		err := r.store.ApplyStatusChange(ctx, change)
		if err == nil {
			continue
		}
		r.failed.Add(1)
		level := slog.LevelError
		if errors.Is(err, sentinel.ErrNotFound) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "apply status change failed",
			"request_id", change.RequestID,
			"from", change.From,
			"to", change.To,
			"error", err,
		)
	}
}

// Dropped returns changes lost to a full buffer or a closed reporter.
func (r *StoreReporter) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns changes the store rejected.
func (r *StoreReporter) Failed() int64 {
	return r.failed.Load()
}

// Close stops accepting changes and waits for the buffer to drain.
func (r *StoreReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
