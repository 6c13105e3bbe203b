package link

import (
	"sync"
	"time"
)

// Loopback is an in-memory bus connecting any number of ports. A
// frame transmitted on one port is delivered to the receive queue of
// every other port. Queues are bounded; a full peer queue makes the
// transmit report ErrBusy, which exercises the caller's backpressure
// path the way a saturated bus would.
type Loopback struct {
	mu    sync.Mutex
	now   func() time.Time
	ports []*Port
}

// NewLoopback builds a bus. now supplies frame arrival timestamps.
func NewLoopback(now func() time.Time) *Loopback {
	if now == nil {
		now = time.Now
	}
	return &Loopback{now: now}
}

// Port is one endpoint on the loopback bus.
type Port struct {
	bus   *Loopback
	iface uint8
	queue []RawFrame
	depth int
}

// NewPort attaches an endpoint with the given interface id and a
// bounded receive queue.
func (b *Loopback) NewPort(iface uint8, depth int) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Port{bus: b, iface: iface, depth: depth}
	b.ports = append(b.ports, p)
	return p
}

// Receive pops one pending frame.
func (p *Port) Receive() (RawFrame, bool) {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	if len(p.queue) == 0 {
		return RawFrame{}, false
	}
	f := p.queue[0]
	p.queue = p.queue[1:]
	return f, true
}

// Transmit broadcasts one frame to every other port. If any peer
// queue is full the frame is delivered nowhere and ErrBusy is
// returned, so the caller keeps it queued.
func (p *Port) Transmit(id uint32, payload []byte) error {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	for _, peer := range p.bus.ports {
		if peer != p && len(peer.queue) >= peer.depth {
			return ErrBusy
		}
	}
	at := p.bus.now()
	for _, peer := range p.bus.ports {
		if peer == p {
			continue
		}
		buf := append([]byte(nil), payload...)
		peer.queue = append(peer.queue, RawFrame{
			ID:        id,
			Payload:   buf,
			Interface: peer.iface,
			Timestamp: at,
		})
	}
	return nil
}

// Pending returns the number of frames waiting on the port.
func (p *Port) Pending() int {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	return len(p.queue)
}
