package session

import (
	"fmt"

	"github.com/tarnhill/canwire/internal/wire"
)

// NodeUnset fills the destination slot of message keys, which have no
// destination dimension. Valid node ids are 0..127.
const NodeUnset uint8 = 255

// Key identifies one logical reassembly stream. The interface a frame
// arrived on is deliberately not part of the key: redundant links feed
// the same session.
type Key struct {
	Source      uint8
	Kind        wire.Kind
	PortID      uint16
	Destination uint8
}

// KeyForFrame derives the session key from a decoded frame.
func KeyForFrame(f wire.Frame) Key {
	k := Key{
		Source:      f.Source,
		Kind:        f.Kind,
		PortID:      f.PortID,
		Destination: NodeUnset,
	}
	if f.Kind.IsService() {
		k.Destination = f.Destination
	}
	return k
}

func (k Key) String() string {
	if k.Destination == NodeUnset {
		return fmt.Sprintf("%s:%d@%d", k.Kind, k.PortID, k.Source)
	}
	return fmt.Sprintf("%s:%d@%d->%d", k.Kind, k.PortID, k.Source, k.Destination)
}
