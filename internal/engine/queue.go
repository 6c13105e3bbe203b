package engine

import (
	"sync"

	"github.com/tarnhill/canwire/internal/wire"
)

// TxQueue orders pending outbound frames by priority for handoff to
// the link driver. Storage is a fixed arena of frame slots threaded
// into per-priority FIFO lists; capacity never grows. A transfer is
// enqueued atomically, so its frames sit contiguously within their
// priority level and are never interleaved with another transfer at
// the same priority. Higher-priority transfers preempt between pops,
// the way bus arbitration would.
type TxQueue struct {
	mu sync.Mutex

	frames []wire.Frame
	next   []int32
	free   int32

	head [int(wire.PriorityMax) + 1]int32
	tail [int(wire.PriorityMax) + 1]int32

	size int
}

const nilSlot int32 = -1

// NewTxQueue builds a queue holding at most capacity frames.
func NewTxQueue(capacity int) *TxQueue {
	q := &TxQueue{
		frames: make([]wire.Frame, capacity),
		next:   make([]int32, capacity),
	}
	q.free = nilSlot
	for i := capacity - 1; i >= 0; i-- {
		q.next[i] = q.free
		q.free = int32(i)
	}
	for p := range q.head {
		q.head[p] = nilSlot
		q.tail[p] = nilSlot
	}
	return q
}

// Len returns the number of frames currently queued.
func (q *TxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the fixed slot count.
func (q *TxQueue) Capacity() int {
	return len(q.frames)
}

// Enqueue adds all frames of one transfer, or none: when fewer free
// slots remain than frames, it fails with ErrQueueFull and leaves the
// queue untouched. Every frame must carry the same priority.
func (q *TxQueue) Enqueue(frames []wire.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	prio := frames[0].Priority
	for _, f := range frames[1:] {
		if f.Priority != prio {
			return ErrMixedPriorities
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(frames) > len(q.frames)-q.size {
		return ErrQueueFull
	}
	for _, f := range frames {
		idx := q.free
		q.free = q.next[idx]
		q.frames[idx] = f
		q.next[idx] = nilSlot
		if q.tail[prio] == nilSlot {
			q.head[prio] = idx
		} else {
			q.next[q.tail[prio]] = idx
		}
		q.tail[prio] = idx
		q.size++
	}
	return nil
}

// PopNext removes and returns the next frame to transmit: the head of
// the lowest-ordinal non-empty priority list. It reports false when
// the queue is empty.
func (q *TxQueue) PopNext() (wire.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.head {
		if q.head[p] != nilSlot {
			return q.popLocked(wire.Priority(p)), true
		}
	}
	return wire.Frame{}, false
}

// PopHead removes and returns the head frame of the given priority
// list. After a Peek, this confirms the peeked frame even if a
// higher-priority transfer was enqueued in between: enqueues at the
// same priority only ever append at the tail, so the head is stable.
func (q *TxQueue) PopHead(prio wire.Priority) (wire.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if prio > wire.PriorityMax || q.head[prio] == nilSlot {
		return wire.Frame{}, false
	}
	return q.popLocked(prio), true
}

func (q *TxQueue) popLocked(p wire.Priority) wire.Frame {
	idx := q.head[p]
	f := q.frames[idx]
	q.head[p] = q.next[idx]
	if q.head[p] == nilSlot {
		q.tail[p] = nilSlot
	}
	q.next[idx] = q.free
	q.free = idx
	q.frames[idx] = wire.Frame{}
	q.size--
	return f
}

// Peek returns the next frame without removing it.
func (q *TxQueue) Peek() (wire.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.head {
		if q.head[p] != nilSlot {
			return q.frames[q.head[p]], true
		}
	}
	return wire.Frame{}, false
}
