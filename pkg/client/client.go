// Package client sends requests to directory servers through a router and
// matches the replies by session id.
package client

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "dirmesh/pkg/protocol"
    "dirmesh/pkg/router"
    "dirmesh/pkg/transport"
    "dirmesh/pkg/webproto"
)

// ErrClosed is returned by Do once Run has returned.
var ErrClosed = errors.New("client closed")

type result struct {
    resp webproto.Response
    err  error
}

// Client is safe for concurrent Do calls. Run must be running for replies
// to arrive; it also relays traffic for other nodes through the router.
type Client struct {
    rt    *router.Router
    codec *webproto.Codec
    in    <-chan protocol.Envelope

    mu      sync.Mutex
    pending map[protocol.SessionKey]chan result
    closed  bool
}

func New(rt *router.Router, codec *webproto.Codec, inbound <-chan protocol.Envelope) *Client {
    return &Client{rt: rt, codec: codec, in: inbound, pending: make(map[protocol.SessionKey]chan result)}
}

// Run feeds inbound fragments to the router until ctx is done or the
// inbound channel closes. Outstanding requests fail with ErrClosed.
func (c *Client) Run(ctx context.Context) error {
    defer c.close()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case env, ok := <-c.in:
            if !ok { return nil }
            msg, done := c.rt.HandleInbound(env)
            if !done { continue }
            c.deliver(msg.Origin, msg.SessionID, msg.Type, msg.Payload)
        }
    }
}

func (c *Client) deliver(origin, session uint64, typ uint8, payload []byte) {
    key := protocol.SessionKey{Origin: origin, SessionID: session}
    c.mu.Lock()
    ch, ok := c.pending[key]
    ok = ok && typ == protocol.MsgResponse
    if ok { delete(c.pending, key) }
    c.mu.Unlock()
    if !ok {
        zap.L().Debug("unsolicited message dropped", zap.Uint64("origin", origin), zap.Uint64("session", session), zap.Uint8("type", typ))
        return
    }
    resp, err := c.codec.DecodeResponse(payload)
    ch <- result{resp: resp, err: err}
}

func (c *Client) close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.closed = true
    for k, ch := range c.pending {
        ch <- result{err: ErrClosed}
        delete(c.pending, k)
    }
}

// Do sends req to dest and waits for the reply carrying the same session id.
func (c *Client) Do(ctx context.Context, dest transport.PeerID, req webproto.Request) (webproto.Response, error) {
    b, err := c.codec.EncodeRequest(req)
    if err != nil { return nil, fmt.Errorf("encode %s: %w", req.Kind(), err) }
    sid, err := protocol.NewSessionID()
    if err != nil { return nil, err }

    key := protocol.SessionKey{Origin: uint64(dest), SessionID: sid}
    ch := make(chan result, 1)
    c.mu.Lock()
    if c.closed {
        c.mu.Unlock()
        return nil, ErrClosed
    }
    c.pending[key] = ch
    c.mu.Unlock()

    forget := func() {
        c.mu.Lock()
        delete(c.pending, key)
        c.mu.Unlock()
    }
    if err := c.rt.SendRequest(ctx, b, dest, sid); err != nil {
        forget()
        return nil, err
    }
    select {
    case r := <-ch:
        return r.resp, r.err
    case <-ctx.Done():
        forget()
        return nil, ctx.Err()
    }
}
