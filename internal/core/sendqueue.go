package core

import "sync"

type queuedFrame struct {
	frame Frame
	class Class
}

// SendQueue is the bounded per-recipient outbound buffer. Pushes never block;
// a full queue first evicts its oldest ephemeral frame to make room. Pops are
// driven by the Ready channel so a write pump can also watch its context.
//
// FIFO order is preserved for the frames that survive eviction, which keeps
// the per-recipient delivery order equal to submission order.
type SendQueue struct {
	mu     sync.Mutex
	items  []queuedFrame
	cap    int
	closed bool
	ready  chan struct{}
}

func NewSendQueue(capacity int) *SendQueue {
	if capacity <= 0 {
		capacity = 32
	}
	return &SendQueue{
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push enqueues a frame. On a full queue it evicts the oldest ephemeral frame;
// if none is queued it returns ErrBackpressure.
func (q *SendQueue) Push(f Frame, c Class) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrConnClosed
	}
	if len(q.items) >= q.cap && !q.evictOldestEphemeral() {
		q.mu.Unlock()
		return ErrBackpressure
	}
	q.items = append(q.items, queuedFrame{frame: f, class: c})
	q.mu.Unlock()

	q.signal()
	return nil
}

// evictOldestEphemeral removes the first ephemeral frame. Caller holds q.mu.
func (q *SendQueue) evictOldestEphemeral() bool {
	for i := range q.items {
		if q.items[i].class == Ephemeral {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// TryPop returns the next frame if one is queued.
func (q *SendQueue) TryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0].frame
	q.items = q.items[1:]
	return f, true
}

// Ready is signalled after every successful Push and after Close.
func (q *SendQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the queue has been closed.
func (q *SendQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close drops queued frames and makes further pushes fail. Idempotent.
func (q *SendQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.signal()
}

func (q *SendQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
