package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is the base class for every decode failure.
	// All specific causes wrap it.
	ErrMalformedFrame = errors.New("wire: malformed frame")

	ErrFrameEmpty        = fmt.Errorf("%w: missing tail byte", ErrMalformedFrame)
	ErrFrameTooLong      = fmt.Errorf("%w: payload exceeds MTU", ErrMalformedFrame)
	ErrReservedBitSet    = fmt.Errorf("%w: reserved identifier bit set", ErrMalformedFrame)
	ErrStartToggleSet    = fmt.Errorf("%w: start-of-transfer carries non-initial toggle", ErrMalformedFrame)
	ErrUnderfilledFrame  = fmt.Errorf("%w: non-last frame does not fill the MTU", ErrMalformedFrame)
	ErrAnonMultiFrame    = fmt.Errorf("%w: anonymous transfer spans multiple frames", ErrMalformedFrame)
	ErrBadPriority       = errors.New("wire: priority out of range")
	ErrBadSubjectID      = errors.New("wire: subject id out of range")
	ErrBadServiceID      = errors.New("wire: service id out of range")
	ErrBadNodeID         = errors.New("wire: node id out of range")
	ErrNoSourceNode      = errors.New("wire: service transfer requires a valid source node id")
	ErrNoDestinationNode = errors.New("wire: service transfer requires a valid destination node id")
)

// Limits constrains frame and transfer memory use. MTU counts the tail
// byte; MaxTransferBytes bounds a reassembled payload including the
// transfer CRC.
type Limits struct {
	MTU              int
	MaxTransferBytes int
}

// DefaultLimits matches the classic 8-byte link.
func DefaultLimits() Limits {
	return Limits{
		MTU:              8,
		MaxTransferBytes: 1024,
	}
}

// Capacity is the usable payload per frame after the tail byte.
func (l Limits) Capacity() int {
	return l.MTU - TailSize
}

// Frame is one decoded link-level unit. Payload excludes the tail
// byte. Source is meaningful only when Anonymous is false;
// Destination only for service kinds.
type Frame struct {
	Priority    Priority
	Kind        Kind
	PortID      uint16
	Source      uint8
	Destination uint8
	Anonymous   bool
	TransferID  uint8
	Toggle      bool
	Start       bool
	End         bool
	Payload     []byte
}

// Validate enforces structural validity so that Encode never fails.
func (f Frame) Validate() error {
	if f.Priority > PriorityMax {
		return ErrBadPriority
	}
	switch {
	case f.Kind.IsService():
		if f.PortID > MaxServiceID {
			return ErrBadServiceID
		}
		if f.Source > MaxNodeID {
			return ErrNoSourceNode
		}
		if f.Destination > MaxNodeID {
			return ErrNoDestinationNode
		}
	default:
		if f.PortID > MaxSubjectID {
			return ErrBadSubjectID
		}
		if !f.Anonymous && f.Source > MaxNodeID {
			return ErrBadNodeID
		}
		if f.Anonymous && !(f.Start && f.End) {
			return ErrAnonMultiFrame
		}
	}
	if f.TransferID > MaxTransferID {
		return fmt.Errorf("wire: transfer id %d out of range", f.TransferID)
	}
	return nil
}

// Encode packs the frame into a raw extended identifier and the
// on-wire payload (payload bytes followed by the tail byte). The
// frame must have passed Validate.
func (f Frame) Encode() (uint32, []byte) {
	var id uint32
	if f.Kind.IsService() {
		id = serviceIdent(f.Priority, f.Kind == KindRequest, f.PortID, f.Destination, f.Source)
	} else {
		id = messageIdent(f.Priority, f.PortID, f.Source, f.Anonymous)
	}
	raw := make([]byte, 0, len(f.Payload)+TailSize)
	raw = append(raw, f.Payload...)
	raw = append(raw, makeTail(f.Start, f.End, f.Toggle, f.TransferID))
	return id, raw
}

// Decode parses a raw extended identifier and on-wire payload into a
// Frame. The returned Payload aliases raw (tail byte stripped).
func Decode(id uint32, raw []byte, limits Limits) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrFrameEmpty
	}
	if len(raw) > limits.MTU {
		return Frame{}, ErrFrameTooLong
	}

	id &= maskExtendedID
	start, end, toggle, transferID := parseTail(raw[len(raw)-1])

	// The initial toggle value is fixed; a start frame carrying the
	// flipped value can never belong to a valid transfer.
	if start && toggle {
		return Frame{}, ErrStartToggleSet
	}
	// Non-last frames of a multi-frame transfer must use the MTU
	// fully; anything shorter signals truncation on the link.
	if !end && len(raw) < limits.MTU {
		return Frame{}, ErrUnderfilledFrame
	}

	f := Frame{
		Priority:   Priority(id >> offsetPriority & 0x7),
		TransferID: transferID,
		Toggle:     toggle,
		Start:      start,
		End:        end,
		Payload:    raw[:len(raw)-1],
	}

	if id&flagServiceNotMessage != 0 {
		if id&flagReserved23 != 0 {
			return Frame{}, ErrReservedBitSet
		}
		if id&flagRequestNotResponse != 0 {
			f.Kind = KindRequest
		} else {
			f.Kind = KindResponse
		}
		f.PortID = uint16(id >> offsetServiceID & uint32(MaxServiceID))
		f.Destination = uint8(id >> offsetDstNodeID & uint32(MaxNodeID))
		f.Source = uint8(id & uint32(MaxNodeID))
		return f, nil
	}

	if id&(flagReserved23|flagReserved07) != 0 {
		return Frame{}, ErrReservedBitSet
	}
	f.Kind = KindMessage
	f.PortID = uint16(id >> offsetSubjectID & uint32(MaxSubjectID))
	if id&flagAnonymousMessage != 0 {
		f.Anonymous = true
		if !(start && end) {
			return Frame{}, ErrAnonMultiFrame
		}
	} else {
		f.Source = uint8(id & uint32(MaxNodeID))
	}
	return f, nil
}
