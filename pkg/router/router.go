// Package router fragments outgoing payloads, delivers them to the right
// neighbor and turns inbound fragments back into complete messages.
//
// Next-hop resolution is local only: the destination itself when it is a
// direct neighbor, otherwise the reverse path learned from traffic that
// arrived from the destination. There is no path computation or flooding.
package router

import (
    "context"
    "errors"
    "fmt"
    "sync/atomic"

    "go.uber.org/zap"

    "dirmesh/pkg/assembler"
    "dirmesh/pkg/peers"
    "dirmesh/pkg/protocol"
    "dirmesh/pkg/transport"
)

// DefaultMaxFragmentSize is the payload size of a single fragment.
const DefaultMaxFragmentSize = 128

// ErrNoRoute is returned (inside a RoutingError) when neither the
// destination nor a learned next hop is a direct neighbor.
var ErrNoRoute = errors.New("no route")

// RoutingError describes a failed send. Fragment is the index of the first
// fragment that could not be delivered; earlier ones are already on the wire.
type RoutingError struct {
    Dest      transport.PeerID
    NextHop   transport.PeerID
    SessionID uint64
    Fragment  int
    Err       error
}

func (e *RoutingError) Error() string {
    if e.NextHop == 0 {
        return fmt.Sprintf("route to %s (session %d): %v", e.Dest, e.SessionID, e.Err)
    }
    return fmt.Sprintf("route to %s via %s (session %d, fragment %d): %v", e.Dest, e.NextHop, e.SessionID, e.Fragment, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

type Options struct {
    MaxFragmentSize int
    HopLimit        uint8
}

func (o Options) withDefaults() Options {
    if o.MaxFragmentSize <= 0 { o.MaxFragmentSize = DefaultMaxFragmentSize }
    if o.HopLimit == 0 { o.HopLimit = protocol.DefaultHopLimit }
    return o
}

// Stats is a snapshot of router counters.
type Stats struct {
    FragmentsOut uint64
    FragmentsIn  uint64
    Relayed      uint64
    Dropped      uint64
    SendFailures uint64
}

type Router struct {
    local transport.PeerID
    opts  Options
    table *transport.Table
    ps    *peers.Store
    asm   *assembler.Assembler

    fragsOut atomic.Uint64
    fragsIn  atomic.Uint64
    relayed  atomic.Uint64
    dropped  atomic.Uint64
    failures atomic.Uint64
}

func New(local transport.PeerID, ps *peers.Store, asm *assembler.Assembler, opts Options) *Router {
    return &Router{
        local: local,
        opts:  opts.withDefaults(),
        table: transport.NewTable(),
        ps:    ps,
        asm:   asm,
    }
}

func (r *Router) Local() transport.PeerID { return r.local }

// Assembler exposes the reassembly engine fed by HandleInbound.
func (r *Router) Assembler() *assembler.Assembler { return r.asm }

func (r *Router) Peers() *peers.Store { return r.ps }

// AddNeighbor installs (or replaces) the outbound link towards id. A replaced
// link is closed.
func (r *Router) AddNeighbor(id transport.PeerID, l transport.Link) error {
    if id == 0 { return errors.New("neighbor id must be non-zero") }
    if id == r.local { return fmt.Errorf("node %s cannot be its own neighbor", id) }
    if l == nil { return fmt.Errorf("nil link for neighbor %s", id) }
    if old, replaced := r.table.Add(id, l); replaced && old != l {
        _ = old.Close()
    }
    r.ps.MarkDirect(id, l.Kind())
    return nil
}

// RemoveNeighbor drops id from the table and forgets every reverse path
// through it. Removing an unknown neighbor is a no-op.
func (r *Router) RemoveNeighbor(id transport.PeerID) bool {
    l, ok := r.table.Remove(id)
    if !ok { return false }
    _ = l.Close()
    r.ps.UnmarkDirect(id)
    return true
}

// AddRoute pins the next hop used to reach a node that is not a direct
// neighbor. It is how a requester learns about servers several hops away.
func (r *Router) AddRoute(target, via transport.PeerID) {
    r.ps.PinPath(target, via)
}

// Neighbors lists direct neighbors in ascending order.
func (r *Router) Neighbors() []transport.PeerID { return r.table.IDs() }

func (r *Router) resolve(dest transport.PeerID) (transport.PeerID, transport.Link, bool) {
    if l, ok := r.table.Get(dest); ok { return dest, l, true }
    if nh, ok := r.ps.NextHop(dest); ok {
        if l, ok := r.table.Get(nh); ok { return nh, l, true }
    }
    return 0, nil, false
}

// Send fragments payload as a response addressed to dest under sessionID.
func (r *Router) Send(ctx context.Context, payload []byte, dest transport.PeerID, sessionID uint64) error {
    return r.send(ctx, protocol.MsgResponse, payload, dest, sessionID)
}

// SendRequest is Send for requester-side traffic.
func (r *Router) SendRequest(ctx context.Context, payload []byte, dest transport.PeerID, sessionID uint64) error {
    return r.send(ctx, protocol.MsgRequest, payload, dest, sessionID)
}

func (r *Router) send(ctx context.Context, typ uint8, payload []byte, dest transport.PeerID, sessionID uint64) error {
    nh, link, ok := r.resolve(dest)
    if !ok {
        r.failures.Add(1)
        return &RoutingError{Dest: dest, SessionID: sessionID, Err: ErrNoRoute}
    }
    h := protocol.Header{
        Type:      typ,
        SessionID: sessionID,
        Origin:    uint64(r.local),
        Dest:      uint64(dest),
        Hop:       uint64(r.local),
        HopLimit:  r.opts.HopLimit,
    }
    frags, err := protocol.Split(h, payload, r.opts.MaxFragmentSize)
    if err != nil {
        return &RoutingError{Dest: dest, NextHop: nh, SessionID: sessionID, Err: err}
    }
    var sent uint64
    for i, f := range frags {
        if err := ctx.Err(); err != nil {
            r.failures.Add(1)
            return &RoutingError{Dest: dest, NextHop: nh, SessionID: sessionID, Fragment: i, Err: err}
        }
        if err := link.Deliver(f); err != nil {
            r.failures.Add(1)
            r.ps.RecordFailure(nh)
            return &RoutingError{Dest: dest, NextHop: nh, SessionID: sessionID, Fragment: i, Err: err}
        }
        sent += uint64(len(f.Payload))
        r.fragsOut.Add(1)
    }
    r.ps.RecordExchange(nh, 0, sent, 0, uint64(len(frags)))
    zap.L().Debug("sent",
        zap.Stringer("dest", dest),
        zap.Stringer("next_hop", nh),
        zap.Uint64("session", sessionID),
        zap.Int("fragments", len(frags)),
        zap.Int("bytes", len(payload)))
    return nil
}

// HandleInbound processes one fragment received from a neighbor. Fragments
// addressed to another node are relayed. Fragments for this node are fed to
// the assembler; the completed message is returned once.
func (r *Router) HandleInbound(env protocol.Envelope) (assembler.Message, bool) {
    r.fragsIn.Add(1)
    h := env.Header
    hop := transport.PeerID(h.Hop)
    origin := transport.PeerID(h.Origin)

    if hop != 0 {
        r.ps.RecordExchange(hop, uint64(len(env.Payload)), 0, 1, 0)
        if origin != 0 && origin != r.local && origin != hop {
            if _, ok := r.table.Get(hop); ok {
                r.ps.LearnPath(origin, hop, r.hopsTravelled(h.HopLimit))
            }
        }
    }

    if dest := transport.PeerID(h.Dest); dest != 0 && dest != r.local {
        r.relay(env)
        return assembler.Message{}, false
    }

    msg, done, err := r.asm.Feed(env)
    if err != nil {
        r.dropped.Add(1)
        zap.L().Warn("fragment dropped",
            zap.Uint64("origin", h.Origin),
            zap.Uint64("session", h.SessionID),
            zap.Uint32("index", h.FragIndex),
            zap.Uint32("total", h.FragTotal),
            zap.Error(err))
        return assembler.Message{}, false
    }
    return msg, done
}

func (r *Router) hopsTravelled(left uint8) uint8 {
    if left >= r.opts.HopLimit { return 1 }
    return r.opts.HopLimit - left + 1
}

func (r *Router) relay(env protocol.Envelope) {
    h := env.Header
    dest := transport.PeerID(h.Dest)
    if h.HopLimit <= 1 {
        r.dropped.Add(1)
        zap.L().Warn("relay dropped: hop limit reached", zap.Stringer("dest", dest), zap.Uint64("origin", h.Origin), zap.Uint64("session", h.SessionID))
        return
    }
    nh, link, ok := r.resolve(dest)
    if !ok || nh == transport.PeerID(h.Hop) {
        r.dropped.Add(1)
        zap.L().Warn("relay dropped: no route", zap.Stringer("dest", dest), zap.Uint64("origin", h.Origin), zap.Uint64("session", h.SessionID))
        return
    }
    env.Header.HopLimit--
    env.Header.Hop = uint64(r.local)
    env.SetFlag(protocol.FlagRelayed, true)
    if err := link.Deliver(env); err != nil {
        r.dropped.Add(1)
        r.ps.RecordFailure(nh)
        zap.L().Warn("relay failed", zap.Stringer("dest", dest), zap.Stringer("next_hop", nh), zap.Uint64("session", h.SessionID), zap.Error(err))
        return
    }
    r.relayed.Add(1)
    r.ps.RecordExchange(nh, 0, uint64(len(env.Payload)), 0, 1)
}

func (r *Router) Stats() Stats {
    return Stats{
        FragmentsOut: r.fragsOut.Load(),
        FragmentsIn:  r.fragsIn.Load(),
        Relayed:      r.relayed.Load(),
        Dropped:      r.dropped.Load(),
        SendFailures: r.failures.Load(),
    }
}
