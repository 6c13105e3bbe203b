package engine

import (
	"github.com/tarnhill/canwire/internal/wire"
)

// Params carries the metadata of one outbound transfer.
type Params struct {
	Priority    wire.Priority
	Kind        wire.Kind
	PortID      uint16
	Source      uint8
	Destination uint8
	Anonymous   bool
	TransferID  uint8
}

// Fragment splits payload into the ordered frame sequence for one
// transfer. Single-frame transfers carry no CRC; multi-frame transfers
// append the 16-bit transfer CRC and alternate the toggle starting
// from the initial value. The sequence is finite and bounded by
// ceil((len(payload)+2)/capacity).
func Fragment(p Params, payload []byte, limits wire.Limits) ([]wire.Frame, error) {
	capacity := limits.Capacity()

	template := wire.Frame{
		Priority:    p.Priority,
		Kind:        p.Kind,
		PortID:      p.PortID,
		Source:      p.Source,
		Destination: p.Destination,
		Anonymous:   p.Anonymous,
		TransferID:  p.TransferID % wire.TransferIDModulo,
		Start:       true,
		End:         true,
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	if len(payload) <= capacity {
		template.Payload = append([]byte(nil), payload...)
		return []wire.Frame{template}, nil
	}

	if p.Anonymous {
		return nil, wire.ErrAnonMultiFrame
	}
	if len(payload)+wire.CRCSize > limits.MaxTransferBytes {
		return nil, ErrPayloadTooLarge
	}

	// Logical payload: application bytes followed by the transfer CRC.
	logical := make([]byte, 0, len(payload)+wire.CRCSize)
	logical = append(logical, payload...)
	logical = wire.PutCRC(logical, wire.Checksum(payload))

	count := (len(logical) + capacity - 1) / capacity
	frames := make([]wire.Frame, 0, count)
	toggle := false
	for off := 0; off < len(logical); off += capacity {
		end := off + capacity
		if end > len(logical) {
			end = len(logical)
		}
		f := template
		f.Start = off == 0
		f.End = end == len(logical)
		f.Toggle = toggle
		f.Payload = logical[off:end]
		frames = append(frames, f)
		toggle = !toggle
	}
	return frames, nil
}
