package engine

import (
	"time"

	"github.com/tarnhill/canwire/internal/wire"
)

// Transfer is one complete application-level message produced by the
// reassembly engine or requested from the fragmentation engine. The
// payload is opaque to this layer.
type Transfer struct {
	Priority    wire.Priority
	Kind        wire.Kind
	PortID      uint16
	Source      uint8
	Destination uint8
	Anonymous   bool
	TransferID  uint8
	Payload     []byte

	// Timestamp is the arrival time of the first frame; Interface is
	// the link the first frame arrived on. Both are diagnostic.
	Timestamp time.Time
	Interface uint8
}
