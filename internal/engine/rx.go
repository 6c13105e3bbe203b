package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarnhill/canwire/internal/session"
	"github.com/tarnhill/canwire/internal/wire"
)

// Reassembler consumes raw link frames, possibly from several
// redundant interfaces, and produces complete validated transfers.
// All methods are non-blocking; one mutex serializes frame processing
// so the critical section is bounded by a single frame's work.
type Reassembler struct {
	mu     sync.Mutex
	limits wire.Limits
	table  *session.Table
	log    zerolog.Logger
}

// NewReassembler builds a reassembler over a session table of fixed
// capacity.
func NewReassembler(limits wire.Limits, sessions int, log zerolog.Logger) *Reassembler {
	return &Reassembler{
		limits: limits,
		table:  session.NewTable(sessions, limits.MaxTransferBytes),
		log:    log,
	}
}

// Accept processes one raw frame received on iface at time at. It
// returns a completed transfer, or nil when more frames are expected.
// Malformed frames fail without touching session state; protocol
// violations inside a session fail with a DiscardError and reset that
// session to its await-start baseline.
func (r *Reassembler) Accept(id uint32, raw []byte, iface uint8, at time.Time) (*Transfer, error) {
	f, err := wire.Decode(id, raw, r.limits)
	if err != nil {
		return nil, err
	}

	// Anonymous transfers are single-frame by construction and carry
	// no usable source for duplicate tracking; deliver directly.
	if f.Anonymous {
		return completedTransfer(f, f.Payload, at, iface), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := session.KeyForFrame(f)
	st, err := r.table.LookupOrCreate(key, at)
	if err != nil {
		return nil, err
	}

	// Stale or repeated transfer-id: drop without disturbing any
	// in-progress reassembly under a newer id.
	if !st.AcceptsTransferID(f.TransferID) {
		return nil, r.discard(st, DiscardDuplicate, false)
	}

	if !st.Accumulating() || st.TransferID() != f.TransferID {
		// A new transfer interleaved or following. Whatever was in
		// progress is abandoned; the new one must begin properly.
		st.Reset()
		if !f.Start {
			return nil, r.discard(st, DiscardOutOfSequence, false)
		}
		st.Begin(f.TransferID, iface, at)
	}

	if f.Toggle != st.ExpectedToggle() {
		return nil, r.discard(st, DiscardToggleMismatch, true)
	}

	if !st.Append(f.Payload) {
		return nil, r.discard(st, DiscardOverflow, true)
	}

	if !f.End {
		return nil, nil
	}

	buf := st.Bytes()
	if f.Start {
		// Single-frame transfer: no CRC on the wire.
		out := completedTransfer(f, buf, st.StartedAt(), st.Interface())
		st.Complete(f.TransferID)
		return out, nil
	}

	if len(buf) < wire.CRCSize || wire.Checksum(buf[:len(buf)-wire.CRCSize]) != wire.GetCRC(buf[len(buf)-wire.CRCSize:]) {
		// Do not advance the accepted transfer-id: a retransmission
		// under the same id may still succeed.
		return nil, r.discard(st, DiscardCRCMismatch, true)
	}

	out := completedTransfer(f, buf[:len(buf)-wire.CRCSize], st.StartedAt(), st.Interface())
	st.Complete(f.TransferID)
	return out, nil
}

// Prune evicts sessions whose transfer started more than maxAge before
// now. The caller drives the cadence; no internal timers exist.
func (r *Reassembler) Prune(now time.Time, maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Prune(now, maxAge)
}

// Sessions returns the number of live reassembly sessions.
func (r *Reassembler) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Len()
}

func (r *Reassembler) discard(st *session.State, reason DiscardReason, reset bool) error {
	if reset {
		st.Reset()
	}
	err := DiscardError{Reason: reason, Key: st.Key()}
	r.log.Debug().Stringer("session", st.Key()).Str("reason", reason.String()).Msg("frame discarded")
	return err
}

func completedTransfer(f wire.Frame, payload []byte, at time.Time, iface uint8) *Transfer {
	out := &Transfer{
		Priority:    f.Priority,
		Kind:        f.Kind,
		PortID:      f.PortID,
		Source:      f.Source,
		Destination: f.Destination,
		Anonymous:   f.Anonymous,
		TransferID:  f.TransferID,
		Payload:     append([]byte(nil), payload...),
		Timestamp:   at,
		Interface:   iface,
	}
	return out
}
