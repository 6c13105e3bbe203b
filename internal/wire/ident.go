package wire

// Priority is the transfer precedence ordinal. Lower value wins bus
// arbitration first.
type Priority uint8

const (
	PriorityExceptional Priority = iota
	PriorityImmediate
	PriorityFast
	PriorityHigh
	PriorityNominal
	PriorityLow
	PrioritySlow
	PriorityOptional

	PriorityMax = PriorityOptional
)

// Kind distinguishes the three transfer classes.
type Kind uint8

const (
	KindMessage Kind = iota
	KindResponse
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// IsService reports whether the kind is request or response.
func (k Kind) IsService() bool {
	return k == KindRequest || k == KindResponse
}

// Parameter ranges are inclusive; the lower bound is zero for all.
const (
	MaxSubjectID uint16 = 8191
	MaxServiceID uint16 = 511
	MaxNodeID    uint8  = 127

	TransferIDBits   = 5
	TransferIDModulo = 1 << TransferIDBits
	MaxTransferID    = TransferIDModulo - 1
)

// Extended identifier bit layout.
const (
	flagServiceNotMessage  uint32 = 1 << 25
	flagAnonymousMessage   uint32 = 1 << 24
	flagRequestNotResponse uint32 = 1 << 24
	flagReserved23         uint32 = 1 << 23
	flagReserved07         uint32 = 1 << 7

	offsetPriority  = 26
	offsetSubjectID = 8
	offsetServiceID = 14
	offsetDstNodeID = 7

	maskExtendedID uint32 = 0x1FFFFFFF

	// Identifier bits 22:21 sit above the 13-bit subject field. The
	// protocol requires them set on transmission and ignored on
	// reception.
	subjectReservedSet uint16 = 0x6000
)

func messageIdent(priority Priority, subject uint16, source uint8, anonymous bool) uint32 {
	id := uint32(priority)<<offsetPriority |
		uint32(subject|subjectReservedSet)<<offsetSubjectID |
		uint32(source&MaxNodeID)
	if anonymous {
		id |= flagAnonymousMessage
	}
	return id
}

func serviceIdent(priority Priority, request bool, service uint16, destination, source uint8) uint32 {
	id := uint32(priority)<<offsetPriority |
		flagServiceNotMessage |
		uint32(service)<<offsetServiceID |
		uint32(destination)<<offsetDstNodeID |
		uint32(source)
	if request {
		id |= flagRequestNotResponse
	}
	return id
}
