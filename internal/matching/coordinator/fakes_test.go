package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/audit"
)

var errUnreachable = errors.New("device unreachable")

// recordingNotifier captures alerts and requester updates. Donors listed in
// failFor get a delivery error.
type recordingNotifier struct {
	alerts  chan models.Alert
	mu      sync.Mutex
	updates []models.RequesterUpdate
	failFor map[id.DonorID]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		alerts:  make(chan models.Alert, 1024),
		failFor: make(map[id.DonorID]bool),
	}
}

func (n *recordingNotifier) SendAlert(_ context.Context, alert models.Alert) (models.Ack, error) {
	n.mu.Lock()
	fail := n.failFor[alert.DonorID]
	n.mu.Unlock()
	n.alerts <- alert
	if fail {
		return models.Ack{Channel: models.ChannelPush}, errUnreachable
	}
	return models.Ack{Channel: models.ChannelPush, DeliveredAt: time.Now()}, nil
}

func (n *recordingNotifier) NotifyRequester(_ context.Context, update models.RequesterUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
	return nil
}

func (n *recordingNotifier) fail(donorID id.DonorID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFor[donorID] = true
}

func (n *recordingNotifier) requesterUpdates() []models.RequesterUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.RequesterUpdate(nil), n.updates...)
}

// recordingReporter keeps every status change in arrival order.
type recordingReporter struct {
	mu      sync.Mutex
	changes []models.StatusChange
}

func (r *recordingReporter) Report(_ context.Context, change models.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingReporter) forRequest(requestID id.RequestID) []models.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StatusChange
	for _, c := range r.changes {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out
}

// recordingAudit keeps every emitted audit event.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Emit(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) actions(requestID id.RequestID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.RequestID == requestID {
			out = append(out, e.Action)
		}
	}
	return out
}
