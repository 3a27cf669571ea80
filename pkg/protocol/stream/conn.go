// Package stream frames envelopes on a byte stream: each frame is the
// 64-byte header followed by PayloadLen bytes.
package stream

import (
    "bufio"
    "errors"
    "io"
    "sync"
    "sync/atomic"

    "dirmesh/pkg/protocol"
)

// ErrConnClosed is returned by Send after Close.
var ErrConnClosed = errors.New("stream conn closed")

// Counters reports frames and bytes moved through a Conn.
type Counters struct {
    FramesOut uint64
    FramesIn  uint64
    BytesOut  uint64
    BytesIn   uint64
}

// Conn sends and receives envelope frames on an io.ReadWriter.
// Send is safe for concurrent use; Recv expects a single reader.
type Conn struct {
    rw     io.ReadWriter
    br     *bufio.Reader
    mu     sync.Mutex
    bw     *bufio.Writer
    closed atomic.Bool

    framesOut, framesIn atomic.Uint64
    bytesOut, bytesIn   atomic.Uint64
}

func New(rw io.ReadWriter) *Conn {
    return &Conn{rw: rw, br: bufio.NewReader(rw), bw: bufio.NewWriter(rw)}
}

// Send writes one frame and flushes it.
func (c *Conn) Send(e *protocol.Envelope) error {
    if c.closed.Load() { return ErrConnClosed }
    c.mu.Lock()
    defer c.mu.Unlock()
    n, err := e.WriteTo(c.bw)
    if err != nil { return err }
    if err := c.bw.Flush(); err != nil { return err }
    c.framesOut.Add(1)
    c.bytesOut.Add(uint64(n))
    return nil
}

// Recv reads the next frame into e. A stream that ends exactly on a frame
// boundary yields io.EOF; one that ends mid-frame yields io.ErrUnexpectedEOF.
func (c *Conn) Recv(e *protocol.Envelope) error {
    n, err := e.ReadFrom(c.br)
    if err != nil { return err }
    c.framesIn.Add(1)
    c.bytesIn.Add(uint64(n))
    return nil
}

func (c *Conn) Counters() Counters {
    return Counters{
        FramesOut: c.framesOut.Load(),
        FramesIn:  c.framesIn.Load(),
        BytesOut:  c.bytesOut.Load(),
        BytesIn:   c.bytesIn.Load(),
    }
}

// Close closes the underlying stream when it supports closing. Only the
// first call reaches the stream.
func (c *Conn) Close() error {
    if c.closed.Swap(true) { return nil }
    if cl, ok := c.rw.(io.Closer); ok { return cl.Close() }
    return nil
}
