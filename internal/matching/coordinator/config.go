package coordinator

import (
	"time"

	"hemolink/internal/matching/models"
)

// Config tunes the per-request state machine.
type Config struct {
	// ResponseBudgets is how long a donor has to answer an alert, by urgency.
	ResponseBudgets map[models.Urgency]time.Duration
	// InboxSize is the buffer of each request actor's inbox.
	InboxSize int
	// SendTimeout bounds a single SendAlert or NotifyRequester call.
	SendTimeout time.Duration
	// SearchRetries is how many failed searches are retried before expiring.
	SearchRetries int
	// SearchBackoff is the first retry delay; it doubles per retry.
	SearchBackoff time.Duration
	// Retention keeps finished requests available to Snapshot.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ResponseBudgets: map[models.Urgency]time.Duration{
			models.UrgencyCritical: 45 * time.Second,
			models.UrgencyHigh:     2 * time.Minute,
			models.UrgencyMedium:   5 * time.Minute,
			models.UrgencyLow:      15 * time.Minute,
		},
		InboxSize:     32,
		SendTimeout:   10 * time.Second,
		SearchRetries: 3,
		SearchBackoff: 500 * time.Millisecond,
		Retention:     time.Hour,
	}
}

// budget returns the response window for u, falling back to the longest.
func (c Config) budget(u models.Urgency) time.Duration {
	if d, ok := c.ResponseBudgets[u]; ok && d > 0 {
		return d
	}
	return DefaultConfig().ResponseBudgets[models.UrgencyLow]
}
