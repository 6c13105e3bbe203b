package engine

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarnhill/canwire/internal/wire"
)

func newTestReassembler(sessions int) *Reassembler {
	return NewReassembler(wire.DefaultLimits(), sessions, zerolog.Nop())
}

func msgParams(priority wire.Priority, subject uint16, source, transferID uint8) Params {
	return Params{
		Priority:   priority,
		Kind:       wire.KindMessage,
		PortID:     subject,
		Source:     source,
		TransferID: transferID,
	}
}

// deliver encodes the frames and feeds them to the reassembler in
// order, returning the transfer completed by the final frame.
func deliver(t *testing.T, r *Reassembler, frames []wire.Frame, iface uint8) *Transfer {
	t.Helper()
	var out *Transfer
	for i, f := range frames {
		id, raw := f.Encode()
		got, err := r.Accept(id, raw, iface, time.Unix(1000, int64(i)))
		if err != nil {
			t.Fatalf("accept frame %d: %v", i, err)
		}
		if got != nil && i != len(frames)-1 {
			t.Fatalf("transfer completed early at frame %d", i)
		}
		out = got
	}
	return out
}

func TestSingleFrameRoundTrip(t *testing.T) {
	r := newTestReassembler(4)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	frames, err := Fragment(msgParams(wire.PriorityNominal, 7, 3, 0), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if len(frames) != 1 || !frames[0].Start || !frames[0].End || frames[0].Toggle {
		t.Fatalf("unexpected single-frame shape: %+v", frames[0])
	}

	tr := deliver(t, r, frames, 0)
	if tr == nil {
		t.Fatalf("no transfer produced")
	}
	if !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("payload mismatch: %x != %x", tr.Payload, payload)
	}
	if tr.Source != 3 || tr.PortID != 7 || tr.Kind != wire.KindMessage {
		t.Fatalf("metadata mismatch: %+v", tr)
	}
}

func TestMultiFrameConcreteScenario(t *testing.T) {
	// priority=4, subject=100, transfer-id=0, 10-byte payload over an
	// 8-byte frame: first frame 7 payload bytes, second frame the
	// remaining 3 plus the two CRC bytes.
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	frames, err := Fragment(msgParams(wire.PriorityNominal, 100, 5, 0), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}

	first, second := frames[0], frames[1]
	if !first.Start || first.End || first.Toggle || len(first.Payload) != 7 {
		t.Fatalf("first frame shape: %+v", first)
	}
	if second.Start || !second.End || !second.Toggle || len(second.Payload) != 5 {
		t.Fatalf("second frame shape: %+v", second)
	}
	if !bytes.Equal(first.Payload, payload[:7]) || !bytes.Equal(second.Payload[:3], payload[7:]) {
		t.Fatalf("payload split mismatch")
	}
	if wire.GetCRC(second.Payload[3:]) != wire.Checksum(payload) {
		t.Fatalf("trailing crc mismatch")
	}

	tr := deliver(t, newTestReassembler(4), frames, 0)
	if tr == nil || !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("reassembled payload mismatch: %+v", tr)
	}
	if tr.TransferID != 0 || tr.Priority != wire.PriorityNominal {
		t.Fatalf("metadata mismatch: %+v", tr)
	}
}

func TestRedundantInterfacesMergeIntoOneSession(t *testing.T) {
	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	frames, err := Fragment(msgParams(wire.PriorityHigh, 9, 21, 4), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if len(frames) < 3 {
		t.Fatalf("want a longer transfer, got %d frames", len(frames))
	}

	r := newTestReassembler(4)
	var tr *Transfer
	for i, f := range frames {
		id, raw := f.Encode()
		got, err := r.Accept(id, raw, uint8(i%2), time.Unix(1000, int64(i)))
		if err != nil {
			t.Fatalf("accept frame %d: %v", i, err)
		}
		tr = got
	}
	if tr == nil || !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("alternating interfaces should reassemble identically")
	}
	if r.Sessions() != 1 {
		t.Fatalf("expected a single session, got %d", r.Sessions())
	}
}

func TestDuplicateDeliveryDiscarded(t *testing.T) {
	r := newTestReassembler(4)
	payload := []byte("idempotent payload bytes")
	frames, err := Fragment(msgParams(wire.PriorityNominal, 11, 8, 3), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}

	if tr := deliver(t, r, frames, 0); tr == nil {
		t.Fatalf("first delivery should complete")
	}

	id, raw := frames[0].Encode()
	_, err = r.Accept(id, raw, 0, time.Unix(2000, 0))
	var discard DiscardError
	if !errors.As(err, &discard) || discard.Reason != DiscardDuplicate {
		t.Fatalf("expected duplicate discard, got %v", err)
	}
}

func TestToggleMismatchDoesNotCorruptNextTransfer(t *testing.T) {
	r := newTestReassembler(4)
	payload := []byte("0123456789abcdef")
	frames, err := Fragment(msgParams(wire.PriorityNominal, 11, 8, 0), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}

	// First frame fine, second frame with a corrupted toggle.
	id, raw := frames[0].Encode()
	if _, err := r.Accept(id, raw, 0, time.Unix(1000, 0)); err != nil {
		t.Fatalf("accept start: %v", err)
	}
	bad := frames[1]
	bad.Toggle = !bad.Toggle
	bad.End = false // keep the frame MTU-filled and mid-transfer
	bad.Payload = frames[0].Payload
	id, raw = bad.Encode()
	_, err = r.Accept(id, raw, 0, time.Unix(1000, 1))
	var discard DiscardError
	if !errors.As(err, &discard) || discard.Reason != DiscardToggleMismatch {
		t.Fatalf("expected toggle mismatch, got %v", err)
	}

	// A legitimate retransmission under the next transfer-id succeeds.
	frames, err = Fragment(msgParams(wire.PriorityNominal, 11, 8, 1), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("refragment: %v", err)
	}
	if tr := deliver(t, r, frames, 0); tr == nil || !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("session corrupted by toggle mismatch")
	}
}

func TestCorruptedPayloadFailsCRC(t *testing.T) {
	r := newTestReassembler(4)
	payload := []byte("a payload long enough to span frames")
	frames, err := Fragment(msgParams(wire.PriorityNominal, 2, 9, 0), payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	frames[0].Payload[2] ^= 0xFF

	var lastErr error
	for i, f := range frames {
		id, raw := f.Encode()
		tr, err := r.Accept(id, raw, 0, time.Unix(1000, int64(i)))
		if tr != nil {
			t.Fatalf("corrupted transfer must not produce output")
		}
		lastErr = err
	}
	var discard DiscardError
	if !errors.As(lastErr, &discard) || discard.Reason != DiscardCRCMismatch {
		t.Fatalf("expected crc mismatch, got %v", lastErr)
	}

	// Same transfer-id retransmitted intact still succeeds: the crc
	// failure must not advance the accepted id.
	frames[0].Payload[2] ^= 0xFF
	if tr := deliver(t, r, frames, 0); tr == nil || !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("retransmission under same id failed")
	}
}

func TestOverflowDiscardsTransfer(t *testing.T) {
	// MTU-filled continuation frames beyond the bounded reassembly
	// buffer must be dropped as an overflow, and the session must come
	// back usable for the next transfer.
	limits := wire.Limits{MTU: 8, MaxTransferBytes: 16}
	r := NewReassembler(limits, 4, zerolog.Nop())

	chunk := bytes.Repeat([]byte{0x11}, 7)
	base := wire.Frame{
		Priority: wire.PriorityNominal,
		Kind:     wire.KindMessage,
		PortID:   3,
		Source:   6,
	}
	frames := []wire.Frame{base, base, base}
	frames[0].Start = true
	frames[1].Toggle = true
	for i := range frames {
		frames[i].Payload = chunk
	}

	var lastErr error
	for i, f := range frames {
		id, raw := f.Encode()
		tr, err := r.Accept(id, raw, 0, time.Unix(1000, int64(i)))
		if tr != nil {
			t.Fatalf("overflowing transfer must not complete")
		}
		lastErr = err
	}
	var discard DiscardError
	if !errors.As(lastErr, &discard) || discard.Reason != DiscardOverflow {
		t.Fatalf("expected overflow discard, got %v", lastErr)
	}

	// A fresh transfer that fits still reassembles.
	next, err := Fragment(msgParams(wire.PriorityNominal, 3, 6, 1), bytes.Repeat([]byte{0x22}, 10), limits)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if tr := deliver(t, r, next, 0); tr == nil || len(tr.Payload) != 10 {
		t.Fatalf("session unusable after overflow: %+v", tr)
	}
}

func TestContinuationWithoutSessionIsOutOfSequence(t *testing.T) {
	r := newTestReassembler(4)
	frames, err := Fragment(msgParams(wire.PriorityNominal, 2, 9, 0), bytes.Repeat([]byte{7}, 20), wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}

	id, raw := frames[1].Encode()
	_, err = r.Accept(id, raw, 0, time.Unix(1000, 0))
	var discard DiscardError
	if !errors.As(err, &discard) || discard.Reason != DiscardOutOfSequence {
		t.Fatalf("expected out-of-sequence discard, got %v", err)
	}
}

func TestSessionEvictionStartsFresh(t *testing.T) {
	// Capacity 2; three sources each send the start of a multi-frame
	// transfer. The least-recently-updated session is evicted and a
	// later retry from that source reassembles with no residual state.
	r := NewReassembler(wire.DefaultLimits(), 2, zerolog.Nop())
	long := bytes.Repeat([]byte{0xAB}, 20)

	for i, src := range []uint8{1, 2, 3} {
		frames, err := Fragment(msgParams(wire.PriorityNominal, 5, src, 0), long, wire.DefaultLimits())
		if err != nil {
			t.Fatalf("fragment: %v", err)
		}
		id, raw := frames[0].Encode()
		if _, err := r.Accept(id, raw, 0, time.Unix(1000, int64(i))); err != nil {
			t.Fatalf("start from %d: %v", src, err)
		}
	}
	if r.Sessions() != 2 {
		t.Fatalf("sessions = %d, want 2", r.Sessions())
	}

	frames, err := Fragment(msgParams(wire.PriorityNominal, 5, 1, 0), long, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("refragment: %v", err)
	}
	if tr := deliver(t, r, frames, 0); tr == nil || !bytes.Equal(tr.Payload, long) {
		t.Fatalf("evicted source could not start over")
	}
}

func TestFragmentPayloadTooLarge(t *testing.T) {
	limits := wire.DefaultLimits()
	payload := make([]byte, limits.MaxTransferBytes)
	_, err := Fragment(msgParams(wire.PriorityNominal, 1, 1, 0), payload, limits)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestFragmentAnonymousMultiFrameRejected(t *testing.T) {
	p := Params{Priority: wire.PriorityNominal, Kind: wire.KindMessage, PortID: 1, Anonymous: true}
	_, err := Fragment(p, bytes.Repeat([]byte{1}, 20), wire.DefaultLimits())
	if !errors.Is(err, wire.ErrAnonMultiFrame) {
		t.Fatalf("expected ErrAnonMultiFrame, got %v", err)
	}
}

func TestServiceRoundTrip(t *testing.T) {
	r := newTestReassembler(4)
	payload := []byte("request body spanning multiple frames")
	p := Params{
		Priority:    wire.PriorityFast,
		Kind:        wire.KindRequest,
		PortID:      44,
		Source:      10,
		Destination: 20,
		TransferID:  0,
	}
	frames, err := Fragment(p, payload, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	tr := deliver(t, r, frames, 0)
	if tr == nil || tr.Kind != wire.KindRequest || tr.Source != 10 || tr.Destination != 20 {
		t.Fatalf("service metadata mismatch: %+v", tr)
	}
	if !bytes.Equal(tr.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReassemblerPrune(t *testing.T) {
	r := newTestReassembler(4)
	frames, err := Fragment(msgParams(wire.PriorityNominal, 5, 1, 0), bytes.Repeat([]byte{1}, 20), wire.DefaultLimits())
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	id, raw := frames[0].Encode()
	if _, err := r.Accept(id, raw, 0, time.Unix(1000, 0)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if n := r.Prune(time.Unix(1000, 0).Add(3*time.Second), 2*time.Second); n != 1 {
		t.Fatalf("pruned %d sessions, want 1", n)
	}
	if r.Sessions() != 0 {
		t.Fatalf("sessions = %d after prune", r.Sessions())
	}
}
