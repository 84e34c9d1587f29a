package taskqueue

import (
	"sync/atomic"
	"time"
)

// RunAgain is the outcome of a task execution: whether the task wants to be
// rescheduled after this run.
type RunAgain int

const (
	RunAgainNo RunAgain = iota
	RunAgainYes
)

// TaskStatus is a snapshot of a task's externally visible state.
//
// Rev is a revision counter owned by the queue's status mirror. It advances
// on every mirror write and never regresses, so readers can detect stale
// snapshots. Tasks must not set it themselves.
type TaskStatus struct {
	TaskID   int64
	Message  string
	Paused   bool
	Complete bool
	Rev      int64
}

// Task is the capability contract a unit of work must satisfy to be run by a
// Queue.
//
// The queue calls Perform synchronously from a worker goroutine with no
// timeout of its own; long-running tasks must observe Cancel cooperatively
// and return within a bounded time once cancelled. Perform must not panic:
// the queue does not recover, and an escaping panic takes the process down.
//
// SetStatusCallback installs the queue's status-push hook; the task should
// invoke it whenever its own status changes (progress messages, pause state).
// UpdateStatus is called exactly once, on completion, with Complete set.
type Task interface {
	// ID returns the process-unique task identifier.
	ID() int64

	// Perform executes the unit of work and reports whether it wants to run
	// again.
	Perform() RunAgain

	Paused() bool
	SetPaused(paused bool)

	// Interval is the repeat interval. Values <= 0 mean "run once".
	Interval() time.Duration

	// WaitingPrefix is prepended to the remaining whole seconds when the
	// queue renders a countdown message, e.g. "Next run in ".
	WaitingPrefix() string

	// Cancel asks the task to stop. Cancellation is cooperative: the queue
	// never preempts a running Perform.
	Cancel()

	// Status returns the task's current status snapshot.
	Status() TaskStatus

	// UpdateStatus delivers the final status (Complete=true) so the task can
	// finalize. Called exactly once per task.
	UpdateStatus(st TaskStatus)

	// SetStatusCallback installs the hook the task invokes on internal
	// status changes.
	SetStatusCallback(fn func(TaskStatus))

	// SetQueue hands the task a back-reference to its owning queue. Called
	// once, before the task becomes runnable.
	SetQueue(q *Queue)
}

// Disposable is implemented by tasks that hold resources needing release
// when the queue destroys their entry. Dispose is called exactly once, on
// normal completion or on queue shutdown, never both.
type Disposable interface {
	Dispose()
}

var taskIDSeq atomic.Int64

// NextTaskID returns a process-unique task identifier. IDs are never reused.
func NextTaskID() int64 { return taskIDSeq.Add(1) }
