// Package events fans coordinator status changes out to persistence and
// downstream consumers. Every reporter here is non-blocking: Report is
// called from inside request actors.
package events

import (
	"context"

	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
)

type StatusReporter = ports.StatusReporter

// Multi reports each change to every reporter in order.
type Multi []StatusReporter

func (m Multi) Report(ctx context.Context, change models.StatusChange) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, change)
		}
	}
}
