package mqtt

import (
	"sync"
)

// DefaultInboxSize bounds the inbound queue between paho's callback
// goroutine and the control loop.
const DefaultInboxSize = 64

// inbox is a fixed-capacity FIFO of inbound messages. When full, the oldest
// message is overwritten. Safe for concurrent use.
type inbox struct {
	mu       sync.Mutex
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain

	notify chan struct{}
}

func newInbox(capacity int) *inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &inbox{
		buf:      make([]Message, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *inbox) push(msg Message) {
	q.mu.Lock()
	if q.count == q.capacity {
		// head already points at the oldest entry
		q.buf[q.head] = msg
		q.head = (q.head + 1) % q.capacity
		q.dropped++
	} else {
		q.buf[q.head] = msg
		q.head = (q.head + 1) % q.capacity
		q.count++
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain returns queued messages oldest first and how many were dropped.
func (q *inbox) drain() ([]Message, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.dropped
	q.dropped = 0
	if q.count == 0 {
		return nil, dropped
	}

	result := make([]Message, q.count)
	start := (q.head - q.count + q.capacity) % q.capacity
	for i := 0; i < q.count; i++ {
		result[i] = q.buf[(start+i)%q.capacity]
		q.buf[(start+i)%q.capacity] = Message{}
	}

	q.count = 0
	q.head = 0
	return result, dropped
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
