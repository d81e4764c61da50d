// Package delivery implements the single-flight move delivery queue with
// transport fallback, backoff retry and acknowledgment detection.
package delivery

import (
	"errors"
	"fmt"
	"time"

	"chessbot/internal/clock"
	"chessbot/internal/config"
	"chessbot/internal/core"
	"chessbot/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue delivers moves one at a time. It is owned by the control loop and
// must not be used from other goroutines.
type Queue struct {
	cfg       config.DeliveryConfig
	primary   transport.Primary
	secondary transport.Secondary
	sched     clock.Scheduler
	current   func() core.Position
	log       *zap.Logger

	// Observer receives every status transition
	Observer func(Event)
	// OnStuck fires when consecutive failures exceed the threshold
	OnStuck func(consecutive int)

	entries     []*Entry
	consecutive int
	seq         uint64
}

// NewQueue creates a queue. current returns the position the tracker holds
// now and is consulted for acknowledgment and purge decisions.
func NewQueue(cfg config.DeliveryConfig, primary transport.Primary, secondary transport.Secondary,
	sched clock.Scheduler, current func() core.Position, log *zap.Logger) *Queue {
	return &Queue{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		sched:     sched,
		current:   current,
		log:       log,
	}
}

// Enqueue purges stale entries and appends a move computed for pos
func (q *Queue) Enqueue(move string, pos core.Position) Entry {
	q.Purge()

	now := q.sched.Now()
	e := &Entry{
		ID:       uuid.NewString(),
		Move:     move,
		Position: pos,
		Status:   StatusPending,
		Created:  now,
	}
	q.entries = append(q.entries, e)

	q.log.Debug("move queued",
		zap.String("id", e.ID),
		zap.String("move", move),
		zap.Int("ply", pos.Ply),
		zap.Int("depth", len(q.entries)),
	)
	q.emit(e, StatusPending, nil)
	q.pump()
	return *e
}

// Purge drops entries computed for a position other than the current one.
// A head awaiting acknowledgment whose position moved on is treated as
// delivered.
func (q *Queue) Purge() int {
	cur := q.current()
	kept := make([]*Entry, 0, len(q.entries))
	purged := 0

	for i, e := range q.entries {
		if e.Position.Equal(cur) {
			kept = append(kept, e)
			continue
		}
		purged++
		if i == 0 && e.Status == StatusAwaitingAck {
			q.transition(e, StatusAcknowledged, nil)
			q.consecutive = 0
			continue
		}
		q.transition(e, StatusDiscarded, nil)
	}
	q.entries = kept

	if purged > 0 {
		q.log.Debug("purged stale entries", zap.Int("count", purged))
		q.pump()
	}
	return purged
}

// Clear discards every entry, used when a game ends or is reset
func (q *Queue) Clear() {
	for _, e := range q.entries {
		q.transition(e, StatusDiscarded, nil)
	}
	q.entries = nil
	q.consecutive = 0
}

// Len returns the number of queued entries including the head
func (q *Queue) Len() int {
	return len(q.entries)
}

// Idle reports whether nothing is queued or in flight
func (q *Queue) Idle() bool {
	return len(q.entries) == 0
}

// Head returns a copy of the head entry
func (q *Queue) Head() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return *q.entries[0], true
}

// Entries returns copies of all queued entries in order
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// ConsecutiveFailures returns the number of entries dropped since the last
// acknowledgment
func (q *Queue) ConsecutiveFailures() int {
	return q.consecutive
}

// Backoff returns the delay before retry number n (1-based)
func (q *Queue) Backoff(n int) time.Duration {
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(q.cfg.Backoff)-1 {
		idx = len(q.cfg.Backoff) - 1
	}
	return q.cfg.Backoff[idx]
}

// pump starts the head if it is pending. Pending heads computed for a
// position other than the current one are discarded first.
func (q *Queue) pump() {
	cur := q.current()
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head.Status != StatusPending {
			return
		}
		if head.Position.Equal(cur) {
			q.sendPrimary(head)
			return
		}
		q.pop(head)
		q.transition(head, StatusDiscarded, nil)
		q.log.Debug("discarded stale entry",
			zap.String("id", head.ID),
			zap.String("move", head.Move),
			zap.Int("ply", head.Position.Ply),
		)
	}
}

// schedule runs fn after d if e is still the head and no newer continuation
// has been scheduled for it
func (q *Queue) schedule(e *Entry, d time.Duration, fn func()) {
	q.seq++
	e.Attempt = q.seq
	id, attempt := e.ID, e.Attempt

	q.sched.AfterFunc(d, func() {
		if !q.isCurrent(id, attempt) {
			return
		}
		fn()
	})
}

func (q *Queue) isCurrent(id string, attempt uint64) bool {
	if len(q.entries) == 0 {
		return false
	}
	head := q.entries[0]
	return head.ID == id && head.Attempt == attempt
}

func (q *Queue) sendPrimary(e *Entry) {
	q.transition(e, StatusSendingPrimary, nil)
	e.LastAttempt = q.sched.Now()
	e.Via = ViaPrimary

	err := q.primary.Send(transport.OutboundMove{Move: e.Move})
	if err == nil {
		q.awaitAck(e)
		return
	}

	err = fmt.Errorf("%w: %v", core.ErrTransportFailure, err)
	q.log.Warn("primary send failed",
		zap.String("id", e.ID),
		zap.String("move", e.Move),
		zap.Error(err),
	)
	q.transition(e, StatusSendingSecondary, err)
	q.schedule(e, q.cfg.SecondaryDelay, func() { q.sendSecondary(e) })
}

func (q *Queue) sendSecondary(e *Entry) {
	e.LastAttempt = q.sched.Now()
	e.Via = ViaSecondary

	q.seq++
	e.Attempt = q.seq
	id, attempt := e.ID, e.Attempt
	live := func() bool { return q.isCurrent(id, attempt) }

	q.secondary.Deliver(e.Move, live, func(err error) {
		if !live() {
			return
		}
		if err != nil {
			if !errors.Is(err, core.ErrTransportFailure) {
				err = fmt.Errorf("%w: %w", core.ErrTransportFailure, err)
			}
			q.log.Warn("secondary delivery failed",
				zap.String("id", e.ID),
				zap.String("move", e.Move),
				zap.Error(err),
			)
			q.retry(e, err)
			return
		}
		q.awaitAck(e)
	})
}

func (q *Queue) awaitAck(e *Entry) {
	q.transition(e, StatusAwaitingAck, nil)
	q.schedule(e, q.cfg.AckDelay, func() { q.checkAck(e) })
}

func (q *Queue) checkAck(e *Entry) {
	if !q.current().Equal(e.Position) {
		q.acknowledge(e)
		return
	}
	q.retry(e, fmt.Errorf("%w: position unchanged after %s", core.ErrAckTimeout, q.cfg.AckDelay))
}

func (q *Queue) retry(e *Entry, cause error) {
	q.transition(e, StatusRetrying, cause)

	if e.Retries >= q.cfg.MaxRetries {
		q.fail(e, cause)
		return
	}

	e.Retries++
	delay := q.Backoff(e.Retries)
	q.log.Debug("retrying delivery",
		zap.String("id", e.ID),
		zap.Int("retry", e.Retries),
		zap.Duration("backoff", delay),
	)
	q.schedule(e, delay, func() {
		q.transition(e, StatusPending, nil)
		q.pump()
	})
}

func (q *Queue) acknowledge(e *Entry) {
	q.pop(e)
	q.consecutive = 0
	q.transition(e, StatusAcknowledged, nil)
	q.log.Info("move acknowledged",
		zap.String("move", e.Move),
		zap.String("via", e.Via),
		zap.Int("retries", e.Retries),
	)
	q.pump()
}

func (q *Queue) fail(e *Entry, cause error) {
	q.pop(e)
	q.consecutive++
	q.transition(e, StatusFailed, cause)
	q.log.Error("delivery dropped",
		zap.String("move", e.Move),
		zap.Int("retries", e.Retries),
		zap.Int("consecutive", q.consecutive),
		zap.Error(cause),
	)

	if q.consecutive > q.cfg.FailureThreshold {
		n := q.consecutive
		q.consecutive = 0
		if q.OnStuck != nil {
			q.OnStuck(n)
		}
	}
	q.pump()
}

func (q *Queue) pop(e *Entry) {
	if len(q.entries) > 0 && q.entries[0] == e {
		q.entries[0] = nil
		q.entries = q.entries[1:]
	}
}

func (q *Queue) transition(e *Entry, to Status, err error) {
	from := e.Status
	e.Status = to
	q.emit(e, from, err)
}

func (q *Queue) emit(e *Entry, from Status, err error) {
	if q.Observer != nil {
		q.Observer(Event{Entry: *e, From: from, Err: err})
	}
}
