package worker

import (
	"context"

	audit "hemolink/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. It exits
// when the context is cancelled or the inbox is closed.
type Worker struct {
	store audit.Store
	inbox <-chan audit.Event
	onErr func(audit.Event, error)
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, onErr func(audit.Event, error)) *Worker {
	return &Worker{store: store, inbox: inbox, onErr: onErr}
}

// Run appends events until the inbox closes. Append failures are reported
// through onErr and do not stop the worker; audit loss must never stall matching.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.append(ctx, event)
		}
	}
}

// Drain appends whatever is already buffered, without waiting for more.
func (w *Worker) Drain(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.append(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil && w.onErr != nil {
		w.onErr(event, err)
	}
}
