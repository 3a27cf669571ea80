package mem

import (
    "sync"
    "sync/atomic"

    "dirmesh/pkg/protocol"
    "dirmesh/pkg/transport"
)

// DefaultBuffer is the inbox capacity used when none is given.
const DefaultBuffer = 256

// Inbox is the bounded receive queue of one simulated node. Closing it makes
// every link pointing at it fail with transport.ErrLinkClosed.
type Inbox struct {
    mu     sync.RWMutex
    ch     chan protocol.Envelope
    closed bool
}

func NewInbox(buffer int) *Inbox {
    if buffer <= 0 { buffer = DefaultBuffer }
    return &Inbox{ch: make(chan protocol.Envelope, buffer)}
}

// C returns the receive side consumed by the node's processing loop.
func (in *Inbox) C() <-chan protocol.Envelope { return in.ch }

func (in *Inbox) put(e protocol.Envelope) error {
    in.mu.RLock()
    defer in.mu.RUnlock()
    if in.closed { return transport.ErrLinkClosed }
    select {
    case in.ch <- e:
        return nil
    default:
        return transport.ErrLinkFull
    }
}

// Close closes the inbox channel once.
func (in *Inbox) Close() {
    in.mu.Lock()
    defer in.mu.Unlock()
    if !in.closed {
        in.closed = true
        close(in.ch)
    }
}

// Link delivers fragments into a peer's inbox without blocking.
type Link struct {
    to     *Inbox
    closed atomic.Bool
}

func NewLink(to *Inbox) *Link { return &Link{to: to} }

func (l *Link) Kind() transport.Kind { return transport.KindMem }

func (l *Link) Deliver(e protocol.Envelope) error {
    if l.closed.Load() { return transport.ErrLinkClosed }
    return l.to.put(e)
}

// Close marks this direction unusable; the peer's inbox stays open.
func (l *Link) Close() error {
    l.closed.Store(true)
    return nil
}

// Network is an in-process registry of inboxes used to build simulated
// topologies in tests and the demo.
type Network struct {
    mu      sync.Mutex
    buffer  int
    inboxes map[transport.PeerID]*Inbox
}

func NewNetwork(buffer int) *Network {
    return &Network{buffer: buffer, inboxes: make(map[transport.PeerID]*Inbox)}
}

// Inbox returns (creating on first use) the inbox of node id.
func (n *Network) Inbox(id transport.PeerID) *Inbox {
    n.mu.Lock(); defer n.mu.Unlock()
    in := n.inboxes[id]
    if in == nil {
        in = NewInbox(n.buffer)
        n.inboxes[id] = in
    }
    return in
}

// Link returns a new one-way link towards node to.
func (n *Network) Link(to transport.PeerID) *Link { return NewLink(n.Inbox(to)) }

// Close closes every inbox.
func (n *Network) Close() {
    n.mu.Lock(); defer n.mu.Unlock()
    for _, in := range n.inboxes { in.Close() }
}
