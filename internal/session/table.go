package session

import (
	"errors"
	"time"
)

// ErrTableFull is returned only when the table cannot hold any session
// at all, which is a construction-time configuration error.
var ErrTableFull = errors.New("session: table has zero capacity")

// Table maps session keys to reassembly state using a fixed array of
// slots. Capacity never grows; when every slot is occupied the
// least-recently-updated session is evicted. The table performs no
// locking of its own: callers serialize access around each frame,
// which keeps the critical section bounded by one frame's work.
type Table struct {
	slots []slotEntry
}

type slotEntry struct {
	used  bool
	state State
}

// NewTable builds a table of fixed capacity. Each slot pre-allocates a
// reassembly buffer of maxTransferBytes so that steady-state operation
// performs no heap allocation.
func NewTable(capacity, maxTransferBytes int) *Table {
	t := &Table{slots: make([]slotEntry, capacity)}
	for i := range t.slots {
		t.slots[i].state.buf = make([]byte, 0, maxTransferBytes)
	}
	return t
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].used {
			n++
		}
	}
	return n
}

// LookupOrCreate returns the session for key, creating it in a free
// slot or, failing that, the slot of the least-recently-updated
// session. The returned state is touched with now.
func (t *Table) LookupOrCreate(key Key, now time.Time) (*State, error) {
	if len(t.slots) == 0 {
		return nil, ErrTableFull
	}

	free := -1
	victim := -1
	for i := range t.slots {
		e := &t.slots[i]
		if !e.used {
			if free < 0 {
				free = i
			}
			continue
		}
		if e.state.key == key {
			e.state.touch(now)
			return &e.state, nil
		}
		if victim < 0 || e.state.updatedAt.Before(t.slots[victim].state.updatedAt) {
			victim = i
		}
	}

	idx := free
	if idx < 0 {
		idx = victim
	}
	e := &t.slots[idx]
	buf := e.state.buf[:0]
	e.state = State{key: key, buf: buf, startedAt: now}
	e.state.touch(now)
	e.used = true
	return &e.state, nil
}

// Lookup returns the session for key without creating one.
func (t *Table) Lookup(key Key) (*State, bool) {
	for i := range t.slots {
		e := &t.slots[i]
		if e.used && e.state.key == key {
			return &e.state, true
		}
	}
	return nil, false
}

// Evict removes the session for key, if present.
func (t *Table) Evict(key Key) {
	for i := range t.slots {
		e := &t.slots[i]
		if e.used && e.state.key == key {
			e.used = false
			return
		}
	}
}

// Prune removes sessions whose start timestamp is older than maxAge
// relative to now, returning the number removed. The caller invokes
// this at a cadence of its choosing; the table schedules nothing
// internally.
func (t *Table) Prune(now time.Time, maxAge time.Duration) int {
	removed := 0
	for i := range t.slots {
		e := &t.slots[i]
		if !e.used {
			continue
		}
		if now.Sub(e.state.startedAt) > maxAge {
			e.used = false
			removed++
		}
	}
	return removed
}
