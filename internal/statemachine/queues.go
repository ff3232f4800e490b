package statemachine

import (
	"sync"

	"gist/internal/wireid"
)

// outboxItem is one queued NSLP Data payload awaiting delivery over its
// MA, tagged with the handle its sender passed to SendMessage so a
// drop can be reported against the right NSLP (§4.7
// "MessageStatus(nslp-message-handle, ...)").
type outboxItem struct {
	payload []byte
	handle  wireid.ID
}

// OutgoingQueues holds one bounded FIFO queue per MA (§5 "Outgoing
// queues are bounded per MA... the oldest unsent low-priority Data is
// dropped"). Only NSLP Data passes through here: GIST's own
// Query/Response/Confirm/Refresh/Hello traffic is sent synchronously by
// sendPDU/sendTo (Hello replies by Multiplexer.WriteTo directly) and
// never touches a queue at all, so it can never be
// the thing dropped under backpressure (§5 "Handshake and Refresh PDUs
// are never dropped for queue pressure").
type OutgoingQueues struct {
	mu         sync.Mutex
	depth      int
	queues     map[string][]outboxItem
	onDrop     func(maID string, handle wireid.ID)
	onDelivery func(maID string, payload []byte) error
}

// NewOutgoingQueues constructs a set of per-MA queues bounded to depth
// entries each. deliver performs the actual write (transport.Multiplexer.WriteTo);
// onDrop, if non-nil, is called for every payload dropped under
// backpressure so the caller can surface MessageStatus(ErrorWhileSending).
func NewOutgoingQueues(depth int, deliver func(maID string, payload []byte) error, onDrop func(maID string, handle wireid.ID)) *OutgoingQueues {
	return &OutgoingQueues{
		depth:      depth,
		queues:     make(map[string][]outboxItem),
		onDelivery: deliver,
		onDrop:     onDrop,
	}
}

// Enqueue adds payload to maID's queue, dropping the oldest queued
// entry first if the queue is already at capacity.
func (q *OutgoingQueues) Enqueue(maID string, payload []byte, handle wireid.ID) {
	q.mu.Lock()
	items := q.queues[maID]

	if len(items) >= q.depth {
		dropped := items[0]
		items = items[1:]
		q.mu.Unlock()
		if q.onDrop != nil {
			q.onDrop(maID, dropped.handle)
		}
		q.mu.Lock()
	}

	items = append(items, outboxItem{payload: payload, handle: handle})
	q.queues[maID] = items
	q.mu.Unlock()
}

// Drain flushes every queued payload for maID in FIFO order, in the
// caller's goroutine, stopping at the first delivery error (remaining
// entries stay queued for the next Drain).
func (q *OutgoingQueues) Drain(maID string) error {
	for {
		q.mu.Lock()
		items := q.queues[maID]
		if len(items) == 0 {
			q.mu.Unlock()
			return nil
		}
		next := items[0]
		q.queues[maID] = items[1:]
		q.mu.Unlock()

		if err := q.onDelivery(maID, next.payload); err != nil {
			q.mu.Lock()
			q.queues[maID] = append([]outboxItem{next}, q.queues[maID]...)
			q.mu.Unlock()
			return err
		}
	}
}

// Remove discards a MA's queue entirely (the MA was torn down).
func (q *OutgoingQueues) Remove(maID string) {
	q.mu.Lock()
	delete(q.queues, maID)
	q.mu.Unlock()
}

// Depth reports how many payloads are currently queued for maID.
func (q *OutgoingQueues) Depth(maID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[maID])
}
