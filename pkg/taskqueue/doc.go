// Package taskqueue provides an in-process recurring/deferred task scheduler
// built on a fixed-size, runtime-resizable worker pool.
//
// # Overview
//
// Callers submit units of work (Tasks) that may run once or repeatedly at a
// task-chosen interval, may be paused, cancelled, or observed through a
// polled status snapshot and a change-notification callback. The queue does
// not know or care what a task does; only when it should run, whether it is
// active, paused, or finished, and how to report this.
//
// # Dispatch
//
// Worker goroutines scan the task registry round-robin under a shared lock
// and cursor, execute due tasks with the lock released, and sleep only until
// the soonest-due deadline or the next mutation (submit, cancel, pause,
// resize, shutdown all wake the pool). A dedicated housekeeping goroutine
// refreshes human-readable waiting messages once a second.
//
// # Concurrency contract
//
// Dispatch order is round-robin by registry position, not FIFO. For any one
// task, Perform never runs concurrently with itself regardless of pool
// width. Cancellation is cooperative: Cancel only asks the task to stop, and
// shutdown latency is bounded by the slowest in-flight Perform.
//
// # Status inspection
//
// The status mirror is a separate collection under its own lock, so readers
// of ViewStatuses never contend with dispatch. Change callbacks registered
// with Subscribe run under the notifier lock and must not block or re-enter
// the queue.
package taskqueue
