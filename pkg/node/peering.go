package node

import (
    "context"
    "net"
    "time"

    "go.uber.org/zap"

    "dirmesh/pkg/transport"
    "dirmesh/pkg/transport/mem"
    "dirmesh/pkg/transport/stream"
)

const removeTimeout = 2 * time.Second

// ConnectMem joins a and b with in-process links in both directions.
func ConnectMem(ctx context.Context, a, b *Node) error {
    if err := a.AddNeighbor(ctx, b.ID, mem.NewLink(b.inbox)); err != nil { return err }
    return b.AddNeighbor(ctx, a.ID, mem.NewLink(a.inbox))
}

// ServeStream makes peer a neighbor of n over conn and copies inbound frames
// into n's inbox until conn fails or ctx is done.
func ServeStream(ctx context.Context, n *Node, peer transport.PeerID, conn net.Conn) error {
    link, err := attach(ctx, n, peer, conn)
    if err != nil { return err }
    return pump(ctx, n, peer, conn, link)
}

func attach(ctx context.Context, n *Node, peer transport.PeerID, conn net.Conn) (*stream.Link, error) {
    link := stream.NewNetConn(conn)
    if err := n.AddNeighbor(ctx, peer, link); err != nil {
        _ = link.Close()
        return nil, err
    }
    zap.L().Info("stream link up", zap.Stringer("node", n.ID), zap.Stringer("peer", peer))
    return link, nil
}

// pump blocks until the stream ends, then removes the neighbor.
func pump(ctx context.Context, n *Node, peer transport.PeerID, conn net.Conn, link *stream.Link) error {
    stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
    defer stop()

    err := stream.Pump(ctx, conn, mem.NewLink(n.inbox))

    log := zap.L().With(zap.Stringer("node", n.ID), zap.Stringer("peer", peer))
    cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
    defer cancel()
    if _, rerr := n.RemoveNeighbor(cleanup, peer); rerr != nil {
        log.Debug("neighbor not removed", zap.Error(rerr))
    }
    _ = link.Close()
    log.Info("stream link down", zap.Error(err))
    return err
}

// ConnectStream joins a and b over a synchronous in-memory pipe. Both
// neighbors are installed before it returns; the channel yields the two
// pump results once the pipe is torn down.
func ConnectStream(ctx context.Context, a, b *Node) (<-chan error, error) {
    ca, cb := net.Pipe()
    la, err := attach(ctx, a, b.ID, ca)
    if err != nil {
        _ = cb.Close()
        return nil, err
    }
    lb, err := attach(ctx, b, a.ID, cb)
    if err != nil {
        _ = la.Close()
        return nil, err
    }
    done := make(chan error, 2)
    go func() { done <- pump(ctx, a, b.ID, ca, la) }()
    go func() { done <- pump(ctx, b, a.ID, cb, lb) }()
    return done, nil
}
