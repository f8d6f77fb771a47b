package models

import (
	"errors"
	"fmt"

	"hemolink/pkg/platform/sentinel"
)

// Matching error taxonomy. Expected business outcomes (no candidates,
// declines, timeouts) surface as status transitions; these errors exist for
// logging, metrics and the few places an outcome crosses an API boundary.
var (
	// ErrNoEligibleCandidates is informational; the coordinator expires the request.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")
	// ErrStaleLocation flags a donor whose last reading is older than the threshold.
	ErrStaleLocation = errors.New("stale location data")
	// ErrDuplicateAttempt is an internal invariant violation: a second pending attempt.
	ErrDuplicateAttempt = fmt.Errorf("duplicate pending attempt: %w", sentinel.ErrInvalidState)
	// ErrNotificationDelivery is recoverable and treated as a decline.
	ErrNotificationDelivery = fmt.Errorf("notification delivery failed: %w", sentinel.ErrUnavailable)
	// ErrInvalidScoreWeights is a configuration error raised once at startup.
	ErrInvalidScoreWeights = errors.New("invalid score weights")
	// ErrMalformedCoordinates rejects NaN or out-of-range positions.
	ErrMalformedCoordinates = errors.New("malformed coordinates")
	// ErrNegativeScore is an internal invariant violation in the scorer.
	ErrNegativeScore = errors.New("negative score component")
	// ErrAttemptNotPending is returned for late or stale donor responses.
	ErrAttemptNotPending = fmt.Errorf("attempt is not pending: %w", sentinel.ErrInvalidState)
	// ErrRequestNotFound is returned for signals on unknown requests.
	ErrRequestNotFound = fmt.Errorf("request: %w", sentinel.ErrNotFound)
	// ErrRequestExists is returned when a request is submitted twice.
	ErrRequestExists = fmt.Errorf("request already submitted: %w", sentinel.ErrConflict)
)
