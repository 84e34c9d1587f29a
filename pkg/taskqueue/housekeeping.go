package taskqueue

import (
	"strconv"
	"time"
)

// housekeepingPeriod is how often waiting messages are refreshed when nothing
// kicks the loop earlier.
const housekeepingPeriod = time.Second

// kickHousekeepingLocked nudges the housekeeping goroutine so message text
// catches up with a mutation promptly instead of at the next tick.
func (q *Queue) kickHousekeepingLocked() {
	select {
	case q.hkWake <- struct{}{}:
	default:
	}
}

// housekeeping is the single dedicated goroutine that keeps the mirror's
// human-readable waiting messages fresh.
func (q *Queue) housekeeping() {
	defer close(q.hkDone)

	t := time.NewTimer(housekeepingPeriod)
	defer t.Stop()

	for {
		select {
		case <-q.hkQuit:
			return
		case <-q.hkWake:
		case <-t.C:
		}

		q.refreshWaitingMessages()

		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(housekeepingPeriod)
	}
}

// refreshWaitingMessages recomputes the waiting message of every idle entry
// that is paused or has a pending deadline: "Paused." while paused, "Waiting
// for thread." once due, otherwise the task's prefix plus the remaining whole
// seconds. The notifier fires once after the sweep, and only if some message
// text actually changed.
func (q *Queue) refreshWaitingMessages() {
	changed := false

	q.mu.Lock()
	now := q.clock.Now()
	for _, e := range q.tasks {
		if e.active || (e.nextRun.IsZero() && !e.task.Paused()) {
			continue
		}

		timeToRun := e.nextRun.Sub(now)
		if timeToRun < 0 {
			// Due: clamp so later sweeps skip this entry until rescheduled.
			e.nextRun = time.Time{}
		}
		secs := int64(timeToRun / time.Second)
		if secs < 0 {
			secs = 0
		}

		q.statusMu.Lock()
		for i := range q.statuses {
			if q.statuses[i].TaskID != e.task.ID() {
				continue
			}
			var msg string
			switch {
			case q.statuses[i].Paused:
				msg = "Paused."
			case secs == 0:
				msg = "Waiting for thread."
			default:
				msg = e.task.WaitingPrefix() + strconv.FormatInt(secs, 10)
			}
			if q.statuses[i].Message != msg {
				q.statuses[i].Message = msg
				q.statuses[i].Rev++
				changed = true
			}
			break
		}
		q.statusMu.Unlock()
	}
	q.mu.Unlock()

	if changed {
		q.notifier.fire()
	}
}
