package session

import (
	"time"

	"github.com/tarnhill/canwire/internal/wire"
)

// phase tags the per-session reassembly state machine.
type phase uint8

const (
	phaseIdle phase = iota
	phaseAccumulating
)

// State is the reassembly state for one session key. The table owns
// all State values; callers borrow one for the duration of a single
// frame and either absorb the frame fully or Reset.
type State struct {
	key  Key
	step phase

	// In-progress transfer. Valid while step == phaseAccumulating.
	transferID uint8
	toggle     bool
	buf        []byte
	startedAt  time.Time
	iface      uint8

	// Duplicate/stale rejection history.
	lastAccepted uint8
	hasAccepted  bool

	updatedAt time.Time
}

// Key returns the session key the state belongs to.
func (s *State) Key() Key { return s.key }

// Accumulating reports whether a transfer is in progress.
func (s *State) Accumulating() bool { return s.step == phaseAccumulating }

// TransferID returns the in-progress transfer id.
func (s *State) TransferID() uint8 { return s.transferID }

// ExpectedToggle returns the toggle value the next frame must carry.
func (s *State) ExpectedToggle() bool { return s.toggle }

// Bytes returns the payload accumulated so far.
func (s *State) Bytes() []byte { return s.buf }

// StartedAt returns the first-frame arrival time of the in-progress
// transfer, or the most recent one when idle.
func (s *State) StartedAt() time.Time { return s.startedAt }

// Interface returns the interface id the in-progress transfer started
// on. Diagnostic only; frames from any interface are absorbed.
func (s *State) Interface() uint8 { return s.iface }

// Begin starts accumulating a new transfer.
func (s *State) Begin(transferID uint8, iface uint8, at time.Time) {
	s.step = phaseAccumulating
	s.transferID = transferID
	s.toggle = false
	s.buf = s.buf[:0]
	s.startedAt = at
	s.iface = iface
}

// Append absorbs one frame's payload and flips the expected toggle.
// Returns false when the bounded buffer would overflow; the caller
// must Reset.
func (s *State) Append(p []byte) bool {
	if len(s.buf)+len(p) > cap(s.buf) {
		return false
	}
	s.buf = append(s.buf, p...)
	s.toggle = !s.toggle
	return true
}

// Reset drops any in-progress transfer and returns the session to the
// await-start baseline. Duplicate-rejection history is kept.
func (s *State) Reset() {
	s.step = phaseIdle
	s.buf = s.buf[:0]
	s.toggle = false
}

// Complete records a successfully reassembled transfer and resets.
func (s *State) Complete(transferID uint8) {
	s.lastAccepted = transferID
	s.hasAccepted = true
	s.Reset()
}

// AcceptsTransferID reports whether an incoming transfer id is newer
// than the last accepted one under modulo-32 wraparound comparison. A
// forward distance of zero is a duplicate; distances beyond half the
// modulus are stale retransmits.
func (s *State) AcceptsTransferID(incoming uint8) bool {
	if !s.hasAccepted {
		return true
	}
	d := (incoming - s.lastAccepted) & wire.MaxTransferID
	return d >= 1 && d <= wire.TransferIDModulo/2
}

func (s *State) touch(at time.Time) {
	s.updatedAt = at
}
