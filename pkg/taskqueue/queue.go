package taskqueue

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"taskq/pkg/logx"
)

// entry pairs one Task with its dispatch metadata. Entries are owned
// exclusively by the Queue from Add until completion or shutdown.
type entry struct {
	task Task

	// nextRun is the earliest time the task may be dispatched. A zero value
	// means "due now".
	nextRun time.Time

	// active is true while a worker is inside this task's Perform. It is the
	// sole mechanism preventing two workers from running the same task
	// concurrently. Guarded by Queue.mu.
	active bool

	disposed bool
}

// dispose destroys the entry exactly once. Safe to call from either the
// normal-completion path or the shutdown path; the flag makes the second
// call a no-op.
func (e *entry) dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	if d, ok := e.task.(Disposable); ok {
		d.Dispose()
	}
}

// Queue runs tasks on a fixed-size, runtime-resizable worker pool.
//
// Workers scan the task registry round-robin under a single lock, execute
// due tasks with the lock released, and sleep only until the soonest-due
// task or the next mutation. A housekeeping goroutine refreshes the
// human-readable waiting messages in the status mirror once a second.
//
// Status inspection reads only the mirror, under its own lock, so readers
// never contend with dispatch.
type Queue struct {
	name  string
	log   logx.Logger
	clock timeutil.Clock

	// mu guards the registry: tasks, cursor, waitFor, workDone, worker
	// counts and the closing flag.
	mu       sync.Mutex
	tasks    []*entry
	cursor   int
	waitFor  time.Duration
	workDone bool
	target   int
	running  int
	closing  bool

	// wakeOne holds at most one wake token (Add wakes a single worker);
	// wakeAll is closed and replaced to broadcast. Both guarded by mu for
	// writes; sleeping workers read the captured values.
	wakeOne chan struct{}
	wakeAll chan struct{}

	wg sync.WaitGroup

	// statusMu guards the status mirror. Lock order: mu before statusMu,
	// never the reverse.
	statusMu sync.Mutex
	statuses []TaskStatus

	notifier notifier

	hkWake chan struct{}
	hkQuit chan struct{}
	hkDone chan struct{}

	closeOnce sync.Once
}

// Option customizes a Queue at construction time.
type Option func(*Queue)

// WithLogger attaches a structured logger. The zero logger is a no-op.
func WithLogger(log logx.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithClock injects the time source used for next-run arithmetic. Intended
// for tests; defaults to the real clock.
func WithClock(clock timeutil.Clock) Option {
	return func(q *Queue) { q.clock = clock }
}

// New returns a running queue with the given worker pool width and one
// housekeeping goroutine. The name labels worker goroutines for profiling
// and logging.
func New(name string, workers int, opts ...Option) *Queue {
	q := &Queue{
		name:    name,
		log:     logx.Nop(),
		clock:   timeutil.RealClock(),
		waitFor: waitForever,
		target:  workers,
		wakeOne: make(chan struct{}, 1),
		wakeAll: make(chan struct{}),
		hkWake:  make(chan struct{}, 1),
		hkQuit:  make(chan struct{}),
		hkDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	if q.target < 0 {
		q.target = 0
	}

	q.mu.Lock()
	q.spawnLocked()
	q.mu.Unlock()

	go q.housekeeping()

	q.log.Debug("queue started", logx.String("pool", q.name), logx.Int("workers", q.target))
	return q
}

// Add submits a task, transferring ownership to the queue. The first run is
// scheduled Interval() from now. The submission itself fires the change
// notifier once, and the task's own status pushes are mirrored from here on.
func (q *Queue) Add(t Task) {
	t.SetQueue(q)

	// The push hook must be in place before the entry becomes visible to
	// workers: a worker may dispatch the task the instant it is appended,
	// and pushes from inside that first Perform must not be lost.
	t.SetStatusCallback(func(st TaskStatus) {
		q.statusMu.Lock()
		for i := range q.statuses {
			if q.statuses[i].TaskID == st.TaskID {
				st.Rev = q.statuses[i].Rev + 1
				q.statuses[i] = st
				break
			}
		}
		q.statusMu.Unlock()
		q.notifier.fire()
	})

	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		q.log.Warn("task added to a closed queue; ignoring", logx.Int64("task", t.ID()))
		return
	}
	e := &entry{task: t}
	if iv := t.Interval(); iv > 0 {
		e.nextRun = q.clock.Now().Add(iv)
	}
	q.tasks = append(q.tasks, e)
	q.wakeOneLocked()
	q.kickHousekeepingLocked()

	q.statusMu.Lock()
	q.statuses = append(q.statuses, t.Status())
	q.statusMu.Unlock()
	q.mu.Unlock()

	q.notifier.fire()
}

// Cancel asks the task with the given ID to stop. Unknown IDs are a no-op.
func (q *Queue) Cancel(taskID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.tasks {
		if e.task.ID() == taskID {
			e.task.Cancel()
			q.wakeAllLocked()
			q.kickHousekeepingLocked()
			break
		}
	}
}

// Pause pauses or resumes the task with the given ID. Unknown IDs are a
// no-op. A paused task is skipped by dispatch until resumed.
func (q *Queue) Pause(taskID int64, paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.tasks {
		if e.task.ID() == taskID {
			e.task.SetPaused(paused)
			q.wakeAllLocked()
			q.kickHousekeepingLocked()
			break
		}
	}
}

// TogglePause flips the pause state of the task with the given ID.
func (q *Queue) TogglePause(taskID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.tasks {
		if e.task.ID() == taskID {
			e.task.SetPaused(!e.task.Paused())
			q.wakeAllLocked()
			q.kickHousekeepingLocked()
			break
		}
	}
}

// Workers returns the target worker pool width.
func (q *Queue) Workers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.target
}

// SetWorkers resizes the worker pool. Growing spawns workers immediately;
// shrinking is lazy: excess workers notice the new target at their next loop
// iteration and exit voluntarily, so a worker mid-task is never interrupted.
func (q *Queue) SetWorkers(n int) {
	if n < 0 {
		n = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing {
		return
	}
	q.target = n
	q.spawnLocked()
	q.wakeAllLocked()
	q.log.Debug("pool resized", logx.String("pool", q.name), logx.Int("workers", n))
}

// ViewStatuses passes the current status mirror to fn under the mirror lock.
// The slice is only valid for the duration of the call; fn must copy what it
// keeps and must not re-enter the queue.
func (q *Queue) ViewStatuses(fn func(statuses []TaskStatus)) {
	q.statusMu.Lock()
	defer q.statusMu.Unlock()
	fn(q.statuses)
}

// Subscribe registers fn to be invoked on every status change. The callback
// runs under the notifier's lock and must not block or re-enter the queue.
func (q *Queue) Subscribe(fn func()) Handle {
	return q.notifier.subscribe(fn)
}

// Unsubscribe removes a previously registered change callback.
func (q *Queue) Unsubscribe(h Handle) {
	q.notifier.unsubscribe(h)
}

// Close shuts the queue down: cancels every remaining task, waits for all
// workers to finish their in-flight runs, stops the housekeeping goroutine
// and destroys any remaining entries. It blocks for at most the duration of
// the slowest in-flight Perform and is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		start := time.Now()

		q.mu.Lock()
		q.closing = true
		for _, e := range q.tasks {
			e.task.Cancel()
		}
		q.wakeAllLocked()
		q.mu.Unlock()

		q.wg.Wait()

		close(q.hkQuit)
		<-q.hkDone

		// Workers are gone; anything still registered never got to run (or
		// was mid-list when the flag flipped). Destroy it here, exactly once.
		q.mu.Lock()
		remaining := q.tasks
		q.tasks = nil
		q.cursor = 0
		q.mu.Unlock()
		for _, e := range remaining {
			e.dispose()
		}

		q.statusMu.Lock()
		q.statuses = nil
		q.statusMu.Unlock()

		q.log.Debug("queue stopped", logx.String("pool", q.name), logx.Duration("took", time.Since(start)))
	})
}
