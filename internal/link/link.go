// Package link defines the boundary with the physical link driver.
// The core never blocks on the link: reception is a poll, and a busy
// transmitter leaves frames queued for a later attempt.
package link

import (
	"errors"
	"time"
)

// ErrBusy signals a transiently unwritable link; the caller retries
// later with the frame still queued.
var ErrBusy = errors.New("link: transmit busy")

// RawFrame is one frame as delivered by a physical interface.
type RawFrame struct {
	ID        uint32
	Payload   []byte
	Interface uint8
	Timestamp time.Time
}

// Driver supplies non-blocking frame reception and transmission.
type Driver interface {
	// Receive polls for one pending frame. The second return is
	// false when nothing is pending.
	Receive() (RawFrame, bool)

	// Transmit hands one frame to the link, failing with ErrBusy
	// when the link cannot take it right now.
	Transmit(id uint32, payload []byte) error
}
