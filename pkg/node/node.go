// Package node assembles one overlay node (router, assembler, path memory,
// content store and processing loop) from configuration.
package node

import (
    "context"
    "errors"
    "fmt"
    "path/filepath"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"

    "dirmesh/pkg/assembler"
    "dirmesh/pkg/client"
    "dirmesh/pkg/config"
    "dirmesh/pkg/content"
    "dirmesh/pkg/directory"
    "dirmesh/pkg/memkv"
    "dirmesh/pkg/peers"
    "dirmesh/pkg/protocol"
    "dirmesh/pkg/protocol/codec"
    "dirmesh/pkg/router"
    "dirmesh/pkg/transport"
    "dirmesh/pkg/transport/mem"
    "dirmesh/pkg/webproto"
)

type Node struct {
    ID   transport.PeerID
    Name string
    Role config.Role

    inbox   *mem.Inbox
    kv      *memkv.Store
    asm     *assembler.Assembler
    rt      *router.Router
    codec   *webproto.Codec
    control *directory.Control
    client  *client.Client
    run     func(context.Context) error
    running atomic.Bool
    ready   chan struct{}
    once    sync.Once
    closers []func() error
}

// New builds the node described by cfg.Node. Server roles get a content
// store (seeded from cfg.Seed when set) and a directory server; the client
// role gets a request helper. Every role relays traffic for others.
func New(cfg *config.Config, reg *codec.Registry) (*Node, error) {
    format, err := protocol.ParseFormat(cfg.Codec.Format)
    if err != nil { return nil, err }

    n := &Node{
        ID:    transport.PeerID(cfg.Node.ID),
        Name:  cfg.Node.Name,
        Role:  cfg.Node.Role,
        inbox: mem.NewInbox(cfg.Routing.InboxBuffer),
        kv:    memkv.New(memkv.Options{SweepInterval: cfg.Routing.RouteTTL()}),
        codec: webproto.NewCodec(reg, format),
        ready: make(chan struct{}),
    }
    n.closers = append(n.closers, func() error { n.kv.Close(); return nil })
    n.asm = assembler.New(assembler.Options{
        MaxSessions:      cfg.Assembler.MaxSessions,
        IdleTimeout:      cfg.Assembler.IdleTimeout(),
        CompletedTTL:     cfg.Assembler.CompletedTTL(),
        MaxFragments:     cfg.Assembler.MaxFragments,
        MaxMessageSize:   cfg.Assembler.MaxMessageBytes,
        MaxBufferedBytes: cfg.Assembler.MaxBufferedBytes,
    })
    n.closers = append(n.closers, func() error { n.asm.Close(); return nil })
    n.rt = router.New(n.ID, peers.NewStore(n.kv, cfg.Routing.RouteTTL()), n.asm, router.Options{
        MaxFragmentSize: cfg.Routing.MaxFragmentSize,
        HopLimit:        uint8(cfg.Routing.HopLimit),
    })

    switch cfg.Node.Role {
    case config.RoleText:
        err = setupServer[content.TextFile](n, cfg, content.KindText, func(s content.Seed) []content.TextFile { return s.Text })
    case config.RoleMedia:
        err = setupServer[content.MediaFile](n, cfg, content.KindMedia, func(s content.Seed) []content.MediaFile { return s.Media })
    case config.RoleClient:
        n.client = client.New(n.rt, n.codec, n.inbox.C())
        n.run = n.client.Run
    default:
        err = fmt.Errorf("unknown role %q", cfg.Node.Role)
    }
    if err != nil {
        _ = n.Close()
        return nil, err
    }
    zap.L().Info("node ready", zap.Stringer("id", n.ID), zap.String("name", n.Name), zap.String("role", string(n.Role)), zap.Stringer("format", format))
    return n, nil
}

func setupServer[R content.Record](n *Node, cfg *config.Config, kind content.Kind, pick func(content.Seed) []R) error {
    store, err := openStore[R](cfg, kind)
    if err != nil { return err }
    n.closers = append(n.closers, store.Close)

    if cfg.Seed != "" {
        seed, err := content.LoadSeed(cfg.Seed)
        if err != nil { return err }
        added, skipped := 0, 0
        for _, r := range pick(seed) {
            switch err := store.Insert(r); {
            case err == nil:
                added++
            case errors.Is(err, content.ErrDuplicate):
                skipped++
            default:
                return fmt.Errorf("seed %s: %w", cfg.Seed, err)
            }
        }
        zap.L().Info("store seeded", zap.Stringer("node", n.ID), zap.Int("added", added), zap.Int("already_present", skipped))
    }

    cmds := make(chan directory.Command, 16)
    srv := directory.New[R](n.rt, store, n.codec, n.inbox.C(), cmds, directory.Options{
        SweepInterval: cfg.Assembler.SweepInterval(),
    })
    n.control = directory.NewControl(cmds, srv.Done())
    n.run = srv.Run
    return nil
}

func openStore[R content.Record](cfg *config.Config, kind content.Kind) (content.Store[R], error) {
    if cfg.Store.Backend != "badger" {
        return content.NewMemory[R](), nil
    }
    opts := content.BadgerOptions{InMemory: cfg.Store.Path == ""}
    if !opts.InMemory {
        opts.Path = filepath.Join(cfg.Store.Path, cfg.Node.Name)
    }
    return content.OpenBadger[R](kind, opts)
}

// Router exposes the node's routing layer.
func (n *Node) Router() *router.Router { return n.rt }

// Inbox is where links towards this node deliver.
func (n *Node) Inbox() *mem.Inbox { return n.inbox }

// Client is nil unless the node has the client role.
func (n *Node) Client() *client.Client { return n.client }

// Control is nil for client nodes.
func (n *Node) Control() *directory.Control { return n.control }

// Run blocks in the node's processing loop.
func (n *Node) Run(ctx context.Context) error {
    n.running.Store(true)
    defer n.running.Store(false)
    n.once.Do(func() { close(n.ready) })
    return n.run(ctx)
}

// Ready is closed once Run has been entered.
func (n *Node) Ready() <-chan struct{} { return n.ready }

// Running reports whether Run is active.
func (n *Node) Running() bool { return n.running.Load() }

// AddNeighbor installs a link. While a server node runs, the change goes
// through its command channel; once the server has stopped it is applied
// directly.
func (n *Node) AddNeighbor(ctx context.Context, id transport.PeerID, l transport.Link) error {
    if n.control != nil && n.Running() {
        err := n.control.AddNeighbor(ctx, id, l)
        if !errors.Is(err, directory.ErrTerminated) { return err }
    }
    return n.rt.AddNeighbor(id, l)
}

func (n *Node) RemoveNeighbor(ctx context.Context, id transport.PeerID) (bool, error) {
    if n.control != nil && n.Running() {
        ok, err := n.control.RemoveNeighbor(ctx, id)
        if !errors.Is(err, directory.ErrTerminated) { return ok, err }
    }
    return n.rt.RemoveNeighbor(id), nil
}

// Close releases the store and closes the inbox. Call it after Run returned.
func (n *Node) Close() error {
    n.inbox.Close()
    var errs []error
    for i := len(n.closers) - 1; i >= 0; i-- {
        if err := n.closers[i](); err != nil { errs = append(errs, err) }
    }
    n.closers = nil
    return errors.Join(errs...)
}
