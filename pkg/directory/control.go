package directory

import (
    "context"

    "dirmesh/pkg/content"
    "dirmesh/pkg/transport"
)

// Control is a synchronous front end over a server's command channel. Once
// done is closed every call fails with ErrTerminated instead of waiting.
type Control struct {
    ch   chan<- Command
    done <-chan struct{}
}

// NewControl wraps ch. done is usually Server.Done; a nil done never fires.
func NewControl(ch chan<- Command, done <-chan struct{}) *Control {
    return &Control{ch: ch, done: done}
}

func (c *Control) send(ctx context.Context, cmd Command) error {
    select {
    case <-c.done:
        return ErrTerminated
    default:
    }
    select {
    case c.ch <- cmd:
        return nil
    case <-c.done:
        return ErrTerminated
    case <-ctx.Done():
        return ctx.Err()
    }
}

// await prefers a reply that raced with termination over ErrTerminated.
func await[T any](ctx context.Context, done <-chan struct{}, ch chan T) (T, error) {
    var zero T
    select {
    case v := <-ch:
        return v, nil
    case <-done:
        select {
        case v := <-ch:
            return v, nil
        default:
            return zero, ErrTerminated
        }
    case <-ctx.Done():
        return zero, ctx.Err()
    }
}

func (c *Control) AddNeighbor(ctx context.Context, id transport.PeerID, l transport.Link) error {
    ch := make(chan error, 1)
    if err := c.send(ctx, AddNeighbor{ID: id, Link: l, Reply: ch}); err != nil { return err }
    res, err := await(ctx, c.done, ch)
    if err != nil { return err }
    return res
}

func (c *Control) RemoveNeighbor(ctx context.Context, id transport.PeerID) (bool, error) {
    ch := make(chan bool, 1)
    if err := c.send(ctx, RemoveNeighbor{ID: id, Reply: ch}); err != nil { return false, err }
    return await(ctx, c.done, ch)
}

func (c *Control) list(ctx context.Context, cmd func(chan<- ListReply) Command) ([]string, error) {
    ch := make(chan ListReply, 1)
    if err := c.send(ctx, cmd(ch)); err != nil { return nil, err }
    res, err := await(ctx, c.done, ch)
    if err != nil { return nil, err }
    return res.Items, res.Err
}

func (c *Control) item(ctx context.Context, cmd func(chan<- ItemReply) Command) (content.Record, error) {
    ch := make(chan ItemReply, 1)
    if err := c.send(ctx, cmd(ch)); err != nil { return nil, err }
    res, err := await(ctx, c.done, ch)
    if err != nil { return nil, err }
    return res.Record, res.Err
}

// ListItems lists the server's store whatever its kind.
func (c *Control) ListItems(ctx context.Context) ([]string, error) {
    return c.list(ctx, func(r chan<- ListReply) Command { return ListCachedItems{Reply: r} })
}

// GetItem returns the record or nil when the id is unknown.
func (c *Control) GetItem(ctx context.Context, id string) (content.Record, error) {
    return c.item(ctx, func(r chan<- ItemReply) Command { return GetItem{ID: id, Reply: r} })
}

// ListTextItems fails with ErrRoleMismatch on a media server.
func (c *Control) ListTextItems(ctx context.Context) ([]string, error) {
    return c.list(ctx, func(r chan<- ListReply) Command { return ListTextItems{Reply: r} })
}

func (c *Control) GetTextItem(ctx context.Context, id string) (content.Record, error) {
    return c.item(ctx, func(r chan<- ItemReply) Command { return GetTextItem{ID: id, Reply: r} })
}

// ListMediaItems fails with ErrRoleMismatch on a text server.
func (c *Control) ListMediaItems(ctx context.Context) ([]string, error) {
    return c.list(ctx, func(r chan<- ListReply) Command { return ListMediaItems{Reply: r} })
}

func (c *Control) GetMediaItem(ctx context.Context, id string) (content.Record, error) {
    return c.item(ctx, func(r chan<- ItemReply) Command { return GetMediaItem{ID: id, Reply: r} })
}

func (c *Control) Insert(ctx context.Context, rec content.Record) error {
    ch := make(chan error, 1)
    if err := c.send(ctx, InsertItem{Record: rec, Reply: ch}); err != nil { return err }
    res, err := await(ctx, c.done, ch)
    if err != nil { return err }
    return res
}

func (c *Control) Remove(ctx context.Context, id string) (content.Record, error) {
    return c.item(ctx, func(r chan<- ItemReply) Command { return RemoveItem{ID: id, Reply: r} })
}

// Shutdown asks the server to stop; it does not wait for Run to return.
func (c *Control) Shutdown(ctx context.Context) error { return c.send(ctx, Shutdown{}) }
