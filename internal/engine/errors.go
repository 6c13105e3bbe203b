package engine

import (
	"errors"
	"fmt"

	"github.com/tarnhill/canwire/internal/session"
)

var (
	// ErrPayloadTooLarge rejects an outbound payload before any frame
	// is produced.
	ErrPayloadTooLarge = errors.New("engine: payload exceeds maximum transfer size")

	// ErrQueueFull is the transmit backpressure signal; the caller
	// retries or drops the transfer, nothing blocks.
	ErrQueueFull = errors.New("engine: transmit queue full")

	// ErrMixedPriorities rejects an enqueue whose frames do not all
	// share one priority level.
	ErrMixedPriorities = errors.New("engine: frames of one transfer must share a priority")
)

// DiscardReason classifies why an in-progress transfer was dropped.
type DiscardReason uint8

const (
	DiscardDuplicate DiscardReason = iota
	DiscardOutOfSequence
	DiscardToggleMismatch
	DiscardOverflow
	DiscardCRCMismatch
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardDuplicate:
		return "duplicate"
	case DiscardOutOfSequence:
		return "out_of_sequence"
	case DiscardToggleMismatch:
		return "toggle_mismatch"
	case DiscardOverflow:
		return "overflow"
	case DiscardCRCMismatch:
		return "crc_mismatch"
	default:
		return "unknown"
	}
}

// DiscardError reports a frame that was dropped without corrupting
// session state. At most the affected in-progress transfer is lost.
type DiscardError struct {
	Reason DiscardReason
	Key    session.Key
}

func (e DiscardError) Error() string {
	return fmt.Sprintf("engine: transfer discarded (%s) on %s", e.Reason, e.Key)
}
