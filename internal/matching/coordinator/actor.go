package coordinator

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"hemolink/internal/matching/metrics"
	"hemolink/internal/matching/models"
	"hemolink/internal/matching/ports"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/audit"
	"hemolink/pkg/platform/sentinel"
)

var errTerminal = fmt.Errorf("request already finished: %w", sentinel.ErrInvalidState)

// actor owns one request. All fields are touched only by its run goroutine.
type actor struct {
	c     *Coordinator
	req   *models.BloodRequest
	inbox chan event
	done  chan struct{}

	candidates []models.Candidate
	cursor     int
	radiusKm   float64

	attempts []*models.MatchAttempt
	pending  *models.MatchAttempt
	accepted *models.MatchAttempt

	searching      bool
	searchSeq      int
	searchFailures int

	deadline clockwork.Timer
	expiry   clockwork.Timer
	retry    clockwork.Timer
}

func newActor(c *Coordinator, req *models.BloodRequest) *actor {
	return &actor{
		c:     c,
		req:   req,
		inbox: make(chan event, c.cfg.InboxSize),
		done:  make(chan struct{}),
	}
}

// post delivers ev unless the actor has exited.
func (a *actor) post(ev event) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.inbox <- ev:
		return true
	case <-a.done:
		return false
	}
}

func (a *actor) run(ctx context.Context) {
	a.start(ctx)
	for !a.req.Status.IsTerminal() {
		select {
		case ev := <-a.inbox:
			a.handle(ctx, ev)
		case <-ctx.Done():
			a.c.logger.Warn("request actor stopped before completion",
				"request_id", a.req.ID,
				"status", a.req.Status,
			)
			a.stop()
			return
		}
	}
	a.stop()
}

// stop releases timers and hands the final state to the coordinator before
// signalling done, so waiters always find the finished snapshot.
func (a *actor) stop() {
	stopTimer(a.deadline)
	stopTimer(a.expiry)
	stopTimer(a.retry)
	snap := a.snapshot()
	snap.Active = false
	a.c.finish(a, snap)
	close(a.done)
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (a *actor) start(ctx context.Context) {
	a.emit(ctx, audit.EventRequestSubmitted, nil, "")

	ttl := a.req.ExpiresAt.Sub(a.c.clock.Now())
	if ttl <= 0 {
		a.expire(ctx, models.ReasonRequestExpired)
		return
	}
	a.expiry = a.c.clock.AfterFunc(ttl, func() {
		a.post(requestExpired{})
	})
	a.search(ctx, 0)
}

func (a *actor) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case searchDone:
		a.onSearchDone(ctx, ev)
	case retrySearch:
		if ev.seq == a.searchSeq && a.req.Status == models.StatusPending {
			a.search(ctx, a.radiusKm)
		}
	case donorResponse:
		ev.reply <- a.onResponse(ctx, ev)
	case attemptTimeout:
		a.onTimeout(ctx, ev)
	case deliveryResult:
		a.onDelivery(ctx, ev)
	case requesterNotified:
		if ev.err != nil {
			a.c.logger.WarnContext(ctx, "requester notification failed",
				"request_id", a.req.ID,
				"status", ev.status,
				"error", ev.err,
			)
		}
	case cancelRequest:
		ev.reply <- a.onCancel(ctx)
	case completeDonation:
		ev.reply <- a.onComplete(ctx, ev)
	case requestExpired:
		a.expire(ctx, models.ReasonRequestExpired)
	case snapshotQuery:
		ev.reply <- a.snapshot()
	}
}

// search asks the engine for candidates off the actor goroutine. Results
// from superseded searches are discarded by sequence number.
func (a *actor) search(ctx context.Context, radiusKm float64) {
	a.searching = true
	a.searchSeq++
	seq := a.searchSeq
	req := a.req.Clone()
	go func() {
		result, err := a.c.finder.FindCandidates(ctx, req, radiusKm)
		a.post(searchDone{seq: seq, result: result, err: err})
	}()
}

func (a *actor) onSearchDone(ctx context.Context, ev searchDone) {
	if ev.seq != a.searchSeq || a.req.Status != models.StatusPending {
		return
	}
	a.searching = false

	if ev.err != nil {
		a.searchFailures++
		a.emit(ctx, audit.EventCandidateSearchError, nil, ev.err.Error())
		if a.searchFailures > a.c.cfg.SearchRetries {
			a.c.logger.ErrorContext(ctx, "candidate search failed, giving up",
				"request_id", a.req.ID,
				"failures", a.searchFailures,
				"error", ev.err,
			)
			a.expire(ctx, models.ReasonSearchFailed)
			return
		}
		backoff := a.c.cfg.SearchBackoff << (a.searchFailures - 1)
		a.c.logger.WarnContext(ctx, "candidate search failed, retrying",
			"request_id", a.req.ID,
			"failures", a.searchFailures,
			"backoff", backoff,
			"error", ev.err,
		)
		seq := a.searchSeq
		a.retry = a.c.clock.AfterFunc(backoff, func() {
			a.post(retrySearch{seq: seq})
		})
		return
	}
	a.searchFailures = 0

	result := ev.result
	if result == nil || result.NoCandidates || len(result.Candidates) == 0 {
		a.c.logger.InfoContext(ctx, "candidates exhausted",
			"request_id", a.req.ID,
			"attempts", len(a.attempts),
			"reason", models.ErrNoEligibleCandidates,
		)
		a.expire(ctx, models.ReasonNoCandidates)
		return
	}
	if result.Steps > 1 || (a.radiusKm > 0 && result.RadiusKm > a.radiusKm) {
		a.emit(ctx, audit.EventRadiusExpanded, nil, fmt.Sprintf("%.1fkm", result.RadiusKm))
	}
	a.candidates = result.Candidates
	a.cursor = 0
	a.radiusKm = result.RadiusKm
	a.dispatchNext(ctx)
}

// dispatchNext alerts the next cached candidate not yet attempted, or asks
// the engine for more when the cache is exhausted.
func (a *actor) dispatchNext(ctx context.Context) {
	for a.cursor < len(a.candidates) {
		cand := a.candidates[a.cursor]
		a.cursor++
		if cand.Donor == nil || a.req.HasAttempted(cand.Donor.ID) {
			continue
		}
		a.dispatch(ctx, cand)
		return
	}
	a.candidates = nil
	a.cursor = 0
	a.search(ctx, a.radiusKm)
}

func (a *actor) dispatch(ctx context.Context, cand models.Candidate) {
	if a.pending != nil {
		a.c.metrics.IncrementInvariantViolation("duplicate_attempt")
		a.c.logger.ErrorContext(ctx, "refusing second pending attempt",
			"request_id", a.req.ID,
			"pending_attempt_id", a.pending.ID,
			"donor_id", cand.Donor.ID,
			"error", models.ErrDuplicateAttempt,
		)
		a.emit(ctx, audit.EventInvariantViolated, a.pending, models.ErrDuplicateAttempt.Error())
		a.expire(ctx, models.ReasonDuplicateAttempt)
		return
	}

	now := a.c.clock.Now()
	budget := a.c.cfg.budget(a.req.Urgency)
	attempt := &models.MatchAttempt{
		ID:           id.NewAttemptID(),
		RequestID:    a.req.ID,
		DonorID:      cand.Donor.ID,
		Rank:         len(a.attempts) + 1,
		Score:        cand.Score.Composite,
		DispatchedAt: now,
		Deadline:     now.Add(budget),
		Outcome:      models.OutcomePending,
	}
	a.pending = attempt
	a.attempts = append(a.attempts, attempt)
	a.req.Attempted = append(a.req.Attempted, cand.Donor.ID)

	if cand.Stale {
		a.emit(ctx, audit.EventStaleLocationUsed, attempt, models.ErrStaleLocation.Error())
	}
	a.transition(ctx, models.StatusAwaitingResponse, models.ReasonDispatched, attempt)
	a.emit(ctx, audit.EventAlertDispatched, attempt, "")
	a.c.metrics.IncrementAttempt("dispatched")

	// The deadline timer is armed before the alert goes out so a response
	// can never race ahead of it.
	attemptID := attempt.ID
	a.deadline = a.c.clock.AfterFunc(budget, func() {
		a.post(attemptTimeout{attemptID: attemptID})
	})

	alert := models.Alert{
		AttemptID:  attempt.ID,
		RequestID:  a.req.ID,
		DonorID:    cand.Donor.ID,
		BloodType:  a.req.BloodType,
		Urgency:    a.req.Urgency,
		Units:      a.req.Units,
		DistanceKm: cand.DistanceKm,
		Deadline:   attempt.Deadline,
		Channels:   append([]models.ChannelKind(nil), cand.Donor.Channels...),
	}
	timeout := a.c.cfg.SendTimeout
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ack, err := a.c.notifier.SendAlert(sendCtx, alert)
		a.post(deliveryResult{attemptID: attemptID, ack: ack, err: err})
	}()
}

func (a *actor) onResponse(ctx context.Context, ev donorResponse) error {
	if a.pending == nil || a.pending.ID != ev.attemptID {
		a.emit(ctx, audit.EventLateResponseIgnored, a.findAttempt(ev.attemptID), "attempt not pending")
		return models.ErrAttemptNotPending
	}

	now := a.c.clock.Now()
	if now.After(a.pending.Deadline) {
		// The deadline passed but its timer event is still queued.
		attempt := a.resolvePending(ctx, models.OutcomeTimedOut, false)
		a.emit(ctx, audit.EventAttemptTimedOut, attempt, "response after deadline")
		a.fallback(ctx, models.ReasonTimedOut)
		return models.ErrAttemptNotPending
	}

	if !ev.accept {
		attempt := a.resolvePending(ctx, models.OutcomeDeclined, false)
		a.emit(ctx, audit.EventAttemptDeclined, attempt, "")
		a.fallback(ctx, models.ReasonDeclined)
		return nil
	}

	attempt := a.resolvePending(ctx, models.OutcomeAccepted, false)
	a.accepted = attempt
	a.emit(ctx, audit.EventAttemptAccepted, attempt, "")
	a.transition(ctx, models.StatusMatched, models.ReasonAccepted, attempt)
	a.emit(ctx, audit.EventRequestMatched, attempt, "")
	a.c.metrics.ObserveTimeToMatch(string(a.req.Urgency), now.Sub(a.req.CreatedAt))
	a.notifyRequester(ctx, models.ReasonAccepted, attempt)
	return nil
}

func (a *actor) onTimeout(ctx context.Context, ev attemptTimeout) {
	if a.pending == nil || a.pending.ID != ev.attemptID {
		return
	}
	a.c.logger.InfoContext(ctx, "donor did not respond before deadline",
		"request_id", a.req.ID,
		"attempt_id", ev.attemptID,
		"donor_id", a.pending.DonorID,
	)
	attempt := a.resolvePending(ctx, models.OutcomeTimedOut, false)
	a.emit(ctx, audit.EventAttemptTimedOut, attempt, "")
	a.fallback(ctx, models.ReasonTimedOut)
}

// onDelivery treats an undeliverable alert like a timeout, distinguished by
// the DeliveryFailed flag and its own log line.
func (a *actor) onDelivery(ctx context.Context, ev deliveryResult) {
	if ev.err == nil {
		a.c.logger.DebugContext(ctx, "alert delivered",
			"request_id", a.req.ID,
			"attempt_id", ev.attemptID,
			"channel", ev.ack.Channel,
		)
		return
	}
	if a.pending == nil || a.pending.ID != ev.attemptID {
		return
	}
	a.c.metrics.IncrementDeliveryFailure(metrics.AllChannels)
	a.c.logger.WarnContext(ctx, "alert delivery failed",
		"request_id", a.req.ID,
		"attempt_id", ev.attemptID,
		"donor_id", a.pending.DonorID,
		"error", ev.err,
	)
	attempt := a.resolvePending(ctx, models.OutcomeTimedOut, true)
	a.emit(ctx, audit.EventAlertDeliveryFailed, attempt, ev.err.Error())
	a.fallback(ctx, models.ReasonDeliveryFailed)
}

func (a *actor) onCancel(ctx context.Context) error {
	if a.req.Status.IsTerminal() {
		return errTerminal
	}
	withdrawn := a.withdrawPending(ctx)
	a.transition(ctx, models.StatusCancelled, models.ReasonCancelled, withdrawn)
	a.emit(ctx, audit.EventRequestCancelled, withdrawn, "")
	a.notifyRequester(ctx, models.ReasonCancelled, nil)
	return nil
}

func (a *actor) onComplete(ctx context.Context, ev completeDonation) error {
	if a.req.Status != models.StatusMatched || a.accepted == nil {
		return fmt.Errorf("request is %s: %w", a.req.Status, sentinel.ErrInvalidState)
	}
	if a.accepted.ID != ev.attemptID {
		return models.ErrAttemptNotPending
	}
	a.transition(ctx, models.StatusFulfilled, models.ReasonDonationComplete, a.accepted)
	a.emit(ctx, audit.EventRequestFulfilled, a.accepted, "")
	a.notifyRequester(ctx, models.ReasonDonationComplete, a.accepted)
	return nil
}

// expire ends the request from any non-terminal state.
func (a *actor) expire(ctx context.Context, reason models.TransitionReason) {
	if a.req.Status.IsTerminal() {
		return
	}
	withdrawn := a.withdrawPending(ctx)
	a.transition(ctx, models.StatusExpired, reason, withdrawn)
	a.emit(ctx, audit.EventRequestExpired, withdrawn, string(reason))
	a.notifyRequester(ctx, reason, nil)
}

// resolvePending closes the pending attempt and stops its deadline.
func (a *actor) resolvePending(ctx context.Context, outcome models.AttemptOutcome, deliveryFailed bool) *models.MatchAttempt {
	attempt := a.pending
	stopTimer(a.deadline)
	a.deadline = nil
	a.pending = nil
	attempt.Resolve(outcome, a.c.clock.Now())
	attempt.DeliveryFailed = deliveryFailed
	a.c.metrics.IncrementAttempt(string(outcome))
	a.c.logger.DebugContext(ctx, "attempt resolved",
		"request_id", a.req.ID,
		"attempt_id", attempt.ID,
		"outcome", outcome,
	)
	return attempt
}

// withdrawPending closes the outstanding alert when the request ends before
// the donor answers. A late answer finds no pending attempt and is ignored.
// It returns nil when nothing was pending.
func (a *actor) withdrawPending(ctx context.Context) *models.MatchAttempt {
	if a.pending == nil {
		return nil
	}
	return a.resolvePending(ctx, models.OutcomeWithdrawn, false)
}

// fallback returns the request to pending and moves on to the next donor.
func (a *actor) fallback(ctx context.Context, reason models.TransitionReason) {
	last := a.attempts[len(a.attempts)-1]
	if !a.transition(ctx, models.StatusPending, reason, last) {
		return
	}
	a.dispatchNext(ctx)
}

// transition applies a state change and reports it. It refuses changes the
// state machine does not allow.
func (a *actor) transition(ctx context.Context, to models.RequestStatus, reason models.TransitionReason, attempt *models.MatchAttempt) bool {
	from := a.req.Status
	if !from.CanTransitionTo(to) {
		a.c.metrics.IncrementInvariantViolation("illegal_transition")
		a.c.logger.ErrorContext(ctx, "illegal request transition",
			"request_id", a.req.ID,
			"from", from,
			"to", to,
			"reason", reason,
		)
		return false
	}
	a.req.Status = to
	a.c.metrics.IncrementTransition(string(to), string(reason))

	change := models.StatusChange{
		RequestID:  a.req.ID,
		From:       from,
		To:         to,
		Reason:     reason,
		Attempted:  append([]id.DonorID(nil), a.req.Attempted...),
		OccurredAt: a.c.clock.Now(),
	}
	if attempt != nil {
		cp := *attempt
		change.Attempt = &cp
	}
	if a.c.reporter != nil {
		a.c.reporter.Report(ctx, change)
	}
	return true
}

func (a *actor) notifyRequester(ctx context.Context, reason models.TransitionReason, attempt *models.MatchAttempt) {
	update := models.RequesterUpdate{
		RequestID:   a.req.ID,
		RequesterID: a.req.RequesterID,
		Status:      a.req.Status,
		Reason:      reason,
		OccurredAt:  a.c.clock.Now(),
	}
	if attempt != nil {
		donorID, attemptID := attempt.DonorID, attempt.ID
		update.DonorID = &donorID
		update.AttemptID = &attemptID
	}
	timeout := a.c.cfg.SendTimeout
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		err := a.c.notifier.NotifyRequester(notifyCtx, update)
		a.post(requesterNotified{status: update.Status, err: err})
	}()
}

func (a *actor) emit(ctx context.Context, action audit.AuditEvent, attempt *models.MatchAttempt, reason string) {
	ev := audit.Event{
		RequestID: a.req.ID,
		Action:    string(action),
		Decision:  string(a.req.Status),
		Reason:    reason,
		Urgency:   string(a.req.Urgency),
	}
	if attempt != nil {
		ev.DonorID = attempt.DonorID
		ev.AttemptID = attempt.ID
	}
	ports.LogAudit(ctx, a.c.logger, a.c.audit, ev)
}

func (a *actor) findAttempt(attemptID id.AttemptID) *models.MatchAttempt {
	for _, at := range a.attempts {
		if at.ID == attemptID {
			return at
		}
	}
	return nil
}

func (a *actor) snapshot() Snapshot {
	s := Snapshot{
		Request:             a.req.Clone(),
		Attempts:            make([]models.MatchAttempt, len(a.attempts)),
		RadiusKm:            a.radiusKm,
		RemainingCandidates: max(len(a.candidates)-a.cursor, 0),
		Searching:           a.searching,
		Active:              !a.req.Status.IsTerminal(),
	}
	for i, at := range a.attempts {
		s.Attempts[i] = *at
	}
	if a.pending != nil {
		p := *a.pending
		s.Pending = &p
	}
	return s
}
