package taskqueue

import (
	"sync"
	"time"
)

// FuncTask is a closure-backed Task implementation covering the full
// capability contract: atomic pause/cancel flags, a cancellation channel for
// cooperative shutdown inside the closure, and status pushes wired to the
// owning queue's mirror.
//
// The closure receives the task itself so it can poll Cancelled (or select
// on Done) and publish progress with SetMessage.
type FuncTask struct {
	id     int64
	fn     func(t *FuncTask) RunAgain
	prefix string

	// intervalFn, when set, recomputes the repeat interval after each run
	// (used by cron schedules). Otherwise interval is fixed.
	interval   time.Duration
	intervalFn func() time.Duration

	cancelOnce sync.Once
	done       chan struct{}

	mu       sync.Mutex
	paused   bool
	status   TaskStatus
	push     func(TaskStatus)
	onFinish func(TaskStatus)
	queue    *Queue
}

// NewFuncTask builds a Task from a closure. An interval <= 0 makes it a
// run-once task. waitingPrefix is used for countdown messages, e.g.
// "Next run in ".
func NewFuncTask(interval time.Duration, waitingPrefix string, fn func(t *FuncTask) RunAgain) *FuncTask {
	id := NextTaskID()
	return &FuncTask{
		id:       id,
		fn:       fn,
		prefix:   waitingPrefix,
		interval: interval,
		done:     make(chan struct{}),
		status:   TaskStatus{TaskID: id},
	}
}

// OnFinish installs a hook invoked with the final status when the queue
// completes the task. Must be set before Add.
func (t *FuncTask) OnFinish(fn func(TaskStatus)) { t.onFinish = fn }

func (t *FuncTask) ID() int64 { return t.id }

func (t *FuncTask) Perform() RunAgain {
	if t.Cancelled() {
		return RunAgainNo
	}
	return t.fn(t)
}

func (t *FuncTask) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *FuncTask) SetPaused(paused bool) {
	t.mu.Lock()
	if t.paused == paused {
		t.mu.Unlock()
		return
	}
	t.paused = paused
	t.status.Paused = paused
	st := t.status
	push := t.push
	t.mu.Unlock()
	if push != nil {
		push(st)
	}
}

func (t *FuncTask) Interval() time.Duration {
	if t.intervalFn != nil {
		return t.intervalFn()
	}
	return t.interval
}

func (t *FuncTask) WaitingPrefix() string { return t.prefix }

func (t *FuncTask) Cancel() {
	t.cancelOnce.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel has been called.
func (t *FuncTask) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation, for closures that block.
func (t *FuncTask) Done() <-chan struct{} { return t.done }

func (t *FuncTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *FuncTask) UpdateStatus(st TaskStatus) {
	t.mu.Lock()
	t.status = st
	fin := t.onFinish
	t.mu.Unlock()
	if fin != nil {
		fin(st)
	}
}

func (t *FuncTask) SetStatusCallback(fn func(TaskStatus)) {
	t.mu.Lock()
	t.push = fn
	t.mu.Unlock()
}

func (t *FuncTask) SetQueue(q *Queue) {
	t.mu.Lock()
	t.queue = q
	t.mu.Unlock()
}

// Queue returns the owning queue, once the task has been added.
func (t *FuncTask) Queue() *Queue {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue
}

// SetMessage publishes a progress message through the queue's status mirror.
func (t *FuncTask) SetMessage(msg string) {
	t.mu.Lock()
	t.status.Message = msg
	st := t.status
	push := t.push
	t.mu.Unlock()
	if push != nil {
		push(st)
	}
}
