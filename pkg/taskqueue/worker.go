package taskqueue

import (
	"context"
	"math"
	"runtime/pprof"
	"time"

	"taskq/pkg/logx"
)

// waitForever is the sleep bound when no task has a pending deadline.
const waitForever = time.Duration(math.MaxInt64)

// spawnLocked grows the pool up to the current target. Caller holds mu.
func (q *Queue) spawnLocked() {
	for q.running < q.target {
		q.running++
		ord := q.running
		q.wg.Add(1)
		go q.worker(ord)
	}
}

// wakeOneLocked deposits a single wake token; at most one sleeping worker
// consumes it. Caller holds mu.
func (q *Queue) wakeOneLocked() {
	select {
	case q.wakeOne <- struct{}{}:
	default:
	}
}

// wakeAllLocked broadcasts by closing the current generation channel and
// replacing it. Every worker sleeping on the old generation wakes. Caller
// holds mu.
func (q *Queue) wakeAllLocked() {
	close(q.wakeAll)
	q.wakeAll = make(chan struct{})
}

// runningWorkers reports how many workers are currently alive.
func (q *Queue) runningWorkers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// worker is the dispatch loop run by each pool goroutine.
//
// Each pass over the registry advances a shared round-robin cursor, so N
// workers naturally share the scan without per-task locks. A worker sleeps
// only when a full sweep executed nothing, and only until the soonest-due
// task (waitFor tracks the minimum time-to-run seen across workers this
// sweep) or the next wake from Add/Cancel/Pause/SetWorkers/Close.
func (q *Queue) worker(ord int) {
	defer q.wg.Done()
	pprof.SetGoroutineLabels(pprof.WithLabels(context.Background(), pprof.Labels("pool", q.name)))
	q.log.Debug("worker started", logx.String("pool", q.name), logx.Int("worker", ord))

	q.mu.Lock()
	for !q.closing {
		// Lazy shrink: workers self-select for removal instead of being
		// stopped, so a resize never interrupts a run in progress.
		if q.running > q.target {
			break
		}

		if q.cursor < len(q.tasks) {
			e := q.tasks[q.cursor]
			q.cursor++

			if e.active || e.task.Paused() {
				continue
			}

			timeToRun := e.nextRun.Sub(q.clock.Now())
			if timeToRun < q.waitFor {
				q.waitFor = timeToRun
			}
			if timeToRun > 0 {
				continue
			}

			e.active = true
			q.workDone = true
			q.mu.Unlock()
			again := e.task.Perform()
			q.mu.Lock()

			if e.task.Interval() <= 0 || again == RunAgainNo {
				q.removeEntryLocked(e)
				q.removeStatusLocked(e.task.ID())

				q.mu.Unlock()
				st := e.task.Status()
				st.Complete = true
				e.task.UpdateStatus(st)
				e.dispose()
				q.mu.Lock()
			} else {
				if iv := e.task.Interval(); iv > 0 {
					e.nextRun = q.clock.Now().Add(iv)
				}
				e.active = false
			}
		}

		if q.cursor >= len(q.tasks) {
			q.cursor = 0

			w := q.waitFor
			q.waitFor = waitForever

			if !q.workDone {
				q.sleepLocked(w)
			} else {
				q.workDone = false
			}
		}
	}
	q.running--
	q.mu.Unlock()

	q.log.Debug("worker stopped", logx.String("pool", q.name), logx.Int("worker", ord))
}

// sleepLocked releases mu and blocks for at most d, or until a wake token or
// broadcast arrives. Spurious wakeups are fine; the caller re-sweeps.
func (q *Queue) sleepLocked(d time.Duration) {
	if d <= 0 && d != waitForever {
		// A deadline slipped past while we were scanning; re-sweep now.
		return
	}
	wakeAll := q.wakeAll
	q.mu.Unlock()

	var deadline <-chan time.Time
	if d != waitForever {
		t := time.NewTimer(d)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-wakeAll:
	case <-q.wakeOne:
	case <-deadline:
	}

	q.mu.Lock()
}

// removeEntryLocked unlinks e from the registry. The cursor is decremented
// only when the removed index is strictly before it, so removal never skips
// the entry that logically follows the removed one. Missing entries are a
// silent no-op: a concurrent path may have removed it already. Caller holds
// mu.
func (q *Queue) removeEntryLocked(e *entry) {
	for i, cur := range q.tasks {
		if cur == e {
			if i < q.cursor {
				q.cursor--
			}
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return
		}
	}
}

// removeStatusLocked drops the mirror entry for taskID. Caller holds mu;
// takes statusMu nested (mu before statusMu, always).
func (q *Queue) removeStatusLocked(taskID int64) {
	q.statusMu.Lock()
	for i := range q.statuses {
		if q.statuses[i].TaskID == taskID {
			q.statuses = append(q.statuses[:i], q.statuses[i+1:]...)
			break
		}
	}
	q.statusMu.Unlock()
}
