// Package stream carries fragments over any byte stream (net.Conn, pipes)
// using the fixed 64-byte protocol header as framing.
package stream

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "sync/atomic"

    "go.uber.org/zap"

    "dirmesh/pkg/protocol"
    pstream "dirmesh/pkg/protocol/stream"
    "dirmesh/pkg/transport"
)

// Link writes fragments to a byte stream. Deliver blocks until the frame is
// flushed, so the peer must keep reading (see Pump).
type Link struct {
    conn   *pstream.Conn
    closed atomic.Bool
}

func New(rw io.ReadWriter) *Link { return &Link{conn: pstream.New(rw)} }

func NewNetConn(c net.Conn) *Link { return New(c) }

func (l *Link) Kind() transport.Kind { return transport.KindStream }

func (l *Link) Deliver(e protocol.Envelope) error {
    if l.closed.Load() { return transport.ErrLinkClosed }
    if err := l.conn.Send(&e); err != nil {
        return fmt.Errorf("%w: %v", transport.ErrLinkClosed, err)
    }
    return nil
}

func (l *Link) Close() error {
    if l.closed.Swap(true) { return nil }
    return l.conn.Close()
}

// Pump decodes frames from r and hands them to into (usually a link to the
// local node's inbox) until r fails or ctx is done. Frames that into rejects
// because it is full are dropped; a closed into stops the pump. io.EOF is
// reported as a nil error.
func Pump(ctx context.Context, r io.ReadWriter, into transport.Link) error {
    conn := pstream.New(r)
    for {
        if err := ctx.Err(); err != nil { return err }
        var e protocol.Envelope
        if err := conn.Recv(&e); err != nil {
            if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) { return nil }
            zap.L().Warn("stream recv", zap.Error(err))
            return err
        }
        switch err := into.Deliver(e); {
        case err == nil:
        case errors.Is(err, transport.ErrLinkFull):
            zap.L().Warn("stream frame dropped", zap.Uint64("origin", e.Header.Origin), zap.Uint64("session", e.Header.SessionID), zap.Error(err))
        default:
            return err
        }
    }
}
