package node

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"

    "go.uber.org/zap"

    "dirmesh/pkg/config"
    "dirmesh/pkg/protocol/codec"
    "dirmesh/pkg/transport"
)

// Cluster runs the demo topology of a config in one process.
type Cluster struct {
    cfg   *config.Config
    nodes map[transport.PeerID]*Node

    wg      sync.WaitGroup
    mu      sync.Mutex
    runErrs []error
    pipes   []<-chan error
}

// NewCluster builds every node of cfg.Demo. Nothing runs yet.
func NewCluster(cfg *config.Config, reg *codec.Registry) (*Cluster, error) {
    if len(cfg.Demo.Nodes) == 0 { return nil, errors.New("demo: no nodes configured") }
    c := &Cluster{cfg: cfg, nodes: make(map[transport.PeerID]*Node, len(cfg.Demo.Nodes))}
    for _, nc := range cfg.Demo.Nodes {
        n, err := New(cfg.ForNode(nc), reg)
        if err != nil {
            _ = c.Close()
            return nil, fmt.Errorf("node %d: %w", nc.ID, err)
        }
        c.nodes[n.ID] = n
    }
    return c, nil
}

// Node returns a node by id.
func (c *Cluster) Node(id transport.PeerID) (*Node, bool) {
    n, ok := c.nodes[id]
    return n, ok
}

// Nodes lists every node ordered by id.
func (c *Cluster) Nodes() []*Node {
    out := make([]*Node, 0, len(c.nodes))
    for _, n := range c.nodes { out = append(out, n) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// Start launches every node loop, then installs links and static routes.
func (c *Cluster) Start(ctx context.Context) error {
    for _, n := range c.nodes {
        n := n
        c.wg.Add(1)
        go func() {
            defer c.wg.Done()
            if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                c.mu.Lock()
                c.runErrs = append(c.runErrs, fmt.Errorf("node %s: %w", n.ID, err))
                c.mu.Unlock()
            }
        }()
    }
    for _, n := range c.nodes {
        select {
        case <-n.Ready():
        case <-ctx.Done():
            return ctx.Err()
        }
    }
    for _, l := range c.cfg.Demo.Links {
        a, b := c.nodes[transport.PeerID(l.A)], c.nodes[transport.PeerID(l.B)]
        if l.Kind == "stream" {
            done, err := ConnectStream(ctx, a, b)
            if err != nil { return fmt.Errorf("link %d-%d: %w", l.A, l.B, err) }
            c.pipes = append(c.pipes, done)
            continue
        }
        if err := ConnectMem(ctx, a, b); err != nil { return fmt.Errorf("link %d-%d: %w", l.A, l.B, err) }
    }
    for _, r := range c.cfg.Demo.Routes {
        c.nodes[transport.PeerID(r.Node)].Router().AddRoute(transport.PeerID(r.Target), transport.PeerID(r.Via))
    }
    zap.L().Info("demo topology up", zap.Int("nodes", len(c.nodes)), zap.Int("links", len(c.cfg.Demo.Links)))
    return nil
}

// Wait blocks until every node loop returned and reports their failures.
func (c *Cluster) Wait() error {
    c.wg.Wait()
    c.mu.Lock()
    defer c.mu.Unlock()
    return errors.Join(c.runErrs...)
}

// Close releases every node. Call it after the context given to Start is
// done and Wait returned.
func (c *Cluster) Close() error {
    var errs []error
    for _, n := range c.nodes {
        if err := n.Close(); err != nil { errs = append(errs, err) }
    }
    for _, p := range c.pipes {
        for i := 0; i < 2; i++ { <-p }
    }
    c.pipes = nil
    return errors.Join(errs...)
}
