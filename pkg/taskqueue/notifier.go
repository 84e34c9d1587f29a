package taskqueue

import "sync"

// Handle identifies one change-callback subscription.
type Handle uint64

// notifier is the observer registry for "something changed" broadcasts.
//
// It has its own lock, independent of the registry and mirror locks, but a
// fire may still happen while a queue lock is held (a pause delegated under
// the registry lock pushes a status synchronously). Callbacks run under the
// notifier lock and must not block or re-enter the queue.
type notifier struct {
	mu   sync.Mutex
	seq  Handle
	subs map[Handle]func()
}

func (n *notifier) subscribe(fn func()) Handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[Handle]func())
	}
	n.seq++
	h := n.seq
	n.subs[h] = fn
	return h
}

func (n *notifier) unsubscribe(h Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, h)
}

func (n *notifier) fire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, fn := range n.subs {
		fn()
	}
}
