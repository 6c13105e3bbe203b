// Package node glues the transfer engine to a link driver: it drains
// received frames into the reassembly engine, dispatches completed
// transfers to subscriptions, and pumps the priority queue into the
// transmitter. Every method is non-blocking and meant to be driven by
// an external poll loop.
package node

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarnhill/canwire/internal/engine"
	"github.com/tarnhill/canwire/internal/link"
	"github.com/tarnhill/canwire/internal/observability"
	"github.com/tarnhill/canwire/internal/wire"
)

// Options configures a Node.
type Options struct {
	NodeID        uint8
	Name          string
	Limits        wire.Limits
	Sessions      int
	QueueCapacity int
}

// Node is one protocol participant bound to a link driver.
type Node struct {
	id     uint8
	name   string
	limits wire.Limits
	drv    link.Driver
	rx     *engine.Reassembler
	txq    *engine.TxQueue
	log    zerolog.Logger

	mu      sync.Mutex
	subs    map[subKey]Subscription
	nextTID map[streamKey]uint8
}

type subKey struct {
	kind   wire.Kind
	portID uint16
}

type streamKey struct {
	kind        wire.Kind
	portID      uint16
	destination uint8
}

// Subscription filters inbound transfers by kind and port. Extent
// bounds the payload length delivered to the application; longer
// payloads are truncated so a subscriber reads only the prefix it
// understands. Zero means unlimited.
type Subscription struct {
	Kind   wire.Kind
	PortID uint16
	Extent int
}

// New builds a node over drv.
func New(opts Options, drv link.Driver, log zerolog.Logger) *Node {
	return &Node{
		id:      opts.NodeID,
		name:    opts.Name,
		limits:  opts.Limits,
		drv:     drv,
		rx:      engine.NewReassembler(opts.Limits, opts.Sessions, log),
		txq:     engine.NewTxQueue(opts.QueueCapacity),
		log:     log,
		subs:    make(map[subKey]Subscription),
		nextTID: make(map[streamKey]uint8),
	}
}

// ID returns the node identifier.
func (n *Node) ID() uint8 { return n.id }

// Subscribe registers interest in (kind, portID).
func (n *Node) Subscribe(s Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[subKey{s.Kind, s.PortID}] = s
}

// Unsubscribe removes interest in (kind, portID).
func (n *Node) Unsubscribe(kind wire.Kind, portID uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, subKey{kind, portID})
}

// Publish enqueues a message transfer on subject.
func (n *Node) Publish(priority wire.Priority, subject uint16, payload []byte) error {
	return n.send(engine.Params{
		Priority:   priority,
		Kind:       wire.KindMessage,
		PortID:     subject,
		Source:     n.id,
		TransferID: n.allocTID(wire.KindMessage, subject, 0),
	}, payload)
}

// PublishAnonymous enqueues a source-less single-frame message.
func (n *Node) PublishAnonymous(priority wire.Priority, subject uint16, payload []byte) error {
	return n.send(engine.Params{
		Priority:   priority,
		Kind:       wire.KindMessage,
		PortID:     subject,
		Anonymous:  true,
		TransferID: n.allocTID(wire.KindMessage, subject, 0),
	}, payload)
}

// Request enqueues a service request to destination.
func (n *Node) Request(priority wire.Priority, service uint16, destination uint8, payload []byte) error {
	return n.send(engine.Params{
		Priority:    priority,
		Kind:        wire.KindRequest,
		PortID:      service,
		Source:      n.id,
		Destination: destination,
		TransferID:  n.allocTID(wire.KindRequest, service, destination),
	}, payload)
}

// Respond enqueues a service response, echoing the request's
// transfer-id so the client can match it.
func (n *Node) Respond(priority wire.Priority, service uint16, destination, transferID uint8, payload []byte) error {
	return n.send(engine.Params{
		Priority:    priority,
		Kind:        wire.KindResponse,
		PortID:      service,
		Source:      n.id,
		Destination: destination,
		TransferID:  transferID,
	}, payload)
}

func (n *Node) send(p engine.Params, payload []byte) error {
	frames, err := engine.Fragment(p, payload, n.limits)
	if err != nil {
		return err
	}
	if err := n.txq.Enqueue(frames); err != nil {
		return err
	}
	observability.SetQueueDepth(n.name, n.txq.Len())
	return nil
}

// PumpRx drains the link driver into the reassembly engine and
// returns the transfers completed during this poll, filtered through
// the subscription set. Malformed frames and discards are counted and
// logged, never fatal.
func (n *Node) PumpRx() []*engine.Transfer {
	var out []*engine.Transfer
	for {
		raw, ok := n.drv.Receive()
		if !ok {
			break
		}
		tr, err := n.rx.Accept(raw.ID, raw.Payload, raw.Interface, raw.Timestamp)
		if err != nil {
			n.countError(err)
			continue
		}
		observability.RecordFrameReceived(n.name, "ok")
		if tr == nil {
			continue
		}
		if tr = n.dispatch(tr); tr != nil {
			out = append(out, tr)
		}
	}
	observability.SetLiveSessions(n.name, n.rx.Sessions())
	return out
}

func (n *Node) dispatch(tr *engine.Transfer) *engine.Transfer {
	// Service transfers addressed to another node are bus noise for
	// this one; only the matching destination id passes.
	if tr.Kind.IsService() && tr.Destination != n.id {
		return nil
	}
	n.mu.Lock()
	sub, ok := n.subs[subKey{tr.Kind, tr.PortID}]
	n.mu.Unlock()
	if !ok {
		return nil
	}
	if sub.Extent > 0 && len(tr.Payload) > sub.Extent {
		tr.Payload = tr.Payload[:sub.Extent]
	}
	observability.RecordTransferCompleted(n.name, tr.Kind.String())
	return tr
}

func (n *Node) countError(err error) {
	var discard engine.DiscardError
	switch {
	case errors.As(err, &discard):
		observability.RecordFrameReceived(n.name, "discarded")
		observability.RecordTransferDiscarded(n.name, discard.Reason.String())
	case errors.Is(err, wire.ErrMalformedFrame):
		observability.RecordFrameReceived(n.name, "malformed")
		n.log.Debug().Err(err).Msg("malformed frame dropped")
	default:
		observability.RecordFrameReceived(n.name, "error")
		n.log.Warn().Err(err).Msg("frame processing failed")
	}
}

// PumpTx moves queued frames to the link until the queue empties or
// the link reports busy. Unsent frames stay queued for the next call.
// At most one goroutine may pump a node's transmit side; publishers on
// other goroutines are fine, since the peeked frame is confirmed by
// its priority bucket and new enqueues cannot displace it.
func (n *Node) PumpTx() error {
	for {
		f, ok := n.txq.Peek()
		if !ok {
			break
		}
		id, raw := f.Encode()
		if err := n.drv.Transmit(id, raw); err != nil {
			if errors.Is(err, link.ErrBusy) {
				break
			}
			return err
		}
		n.txq.PopHead(f.Priority)
		observability.RecordFrameTransmitted(n.name)
	}
	observability.SetQueueDepth(n.name, n.txq.Len())
	return nil
}

// Prune evicts reassembly sessions older than maxAge. Called by the
// driving loop at its own cadence.
func (n *Node) Prune(now time.Time, maxAge time.Duration) int {
	return n.rx.Prune(now, maxAge)
}

// QueueDepth returns the number of frames pending transmission.
func (n *Node) QueueDepth() int { return n.txq.Len() }

// Sessions returns the live reassembly session count.
func (n *Node) Sessions() int { return n.rx.Sessions() }

func (n *Node) allocTID(kind wire.Kind, portID uint16, destination uint8) uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := streamKey{kind, portID, destination}
	tid := n.nextTID[k]
	n.nextTID[k] = (tid + 1) % wire.TransferIDModulo
	return tid
}
