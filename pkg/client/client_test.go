package client

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "dirmesh/pkg/assembler"
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

func newRouter(t *testing.T, id transport.PeerID, frag int) *router.Router {
    t.Helper()
    kv := memkv.New(memkv.Options{})
    asm := assembler.New(assembler.Options{})
    t.Cleanup(func() { asm.Close(); kv.Close() })
    return router.New(id, peers.NewStore(kv, time.Minute), asm, router.Options{MaxFragmentSize: frag})
}

func join(t *testing.T, network *mem.Network, a, b *router.Router) {
    t.Helper()
    if err := a.AddNeighbor(b.Local(), network.Link(b.Local())); err != nil { t.Fatalf("link: %v", err) }
    if err := b.AddNeighbor(a.Local(), network.Link(a.Local())); err != nil { t.Fatalf("link: %v", err) }
}

func newCodec(t *testing.T) *webproto.Codec {
    t.Helper()
    reg, err := codec.Default()
    if err != nil { t.Fatalf("registry: %v", err) }
    return webproto.NewCodec(reg, protocol.FormatCBOR)
}

// TestTwoHopRequest runs client(1) -> relay(2) -> text server(3). The server
// only knows the client through the reverse path learned from the request.
func TestTwoHopRequest(t *testing.T) {
    network := mem.NewNetwork(512)
    c := newCodec(t)
    cliRt, relayRt, srvRt := newRouter(t, 1, 8), newRouter(t, 2, 8), newRouter(t, 3, 8)
    join(t, network, cliRt, relayRt)
    join(t, network, relayRt, srvRt)
    cliRt.AddRoute(3, 2)

    store := content.NewMemory[content.TextFile]()
    rec := content.NewText("far away", "served across two hops in many small fragments")
    if err := store.Insert(rec); err != nil { t.Fatalf("insert: %v", err) }
    cmds := make(chan directory.Command, 1)
    srv := directory.New[content.TextFile](srvRt, store, c, network.Inbox(3).C(), cmds, directory.Options{})

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    cli := New(cliRt, c, network.Inbox(1).C())
    relay := New(relayRt, c, network.Inbox(2).C())
    go func() { _ = cli.Run(ctx) }()
    go func() { _ = relay.Run(ctx) }()
    go func() { _ = srv.Run(ctx) }()

    reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
    defer reqCancel()

    resp, err := cli.Do(reqCtx, 3, webproto.ServerTypeQuery{})
    if err != nil { t.Fatalf("server type: %v", err) }
    if resp != (webproto.ServerType{Server: webproto.ServerText}) { t.Fatalf("server type = %#v", resp) }

    resp, err = cli.Do(reqCtx, 3, webproto.ItemQuery{ID: rec.ID.String()})
    if err != nil { t.Fatalf("item: %v", err) }
    item, ok := resp.(webproto.Item)
    if !ok { t.Fatalf("item response = %#v", resp) }
    var got content.TextFile
    if err := c.Unmarshal(item.Data, &got); err != nil || got != rec {
        t.Fatalf("record = %+v err %v", got, err)
    }

    if r, ok := srvRt.Peers().Route(1); !ok || r.NextHop != 2 { t.Fatalf("server reverse path = %+v %v", r, ok) }
    if relayRt.Stats().Relayed == 0 { t.Fatalf("relay forwarded nothing") }
}

func TestConcurrentRequestsAreCorrelated(t *testing.T) {
    network := mem.NewNetwork(4096)
    c := newCodec(t)
    cliRt, srvRt := newRouter(t, 1, 4), newRouter(t, 3, 4)
    join(t, network, cliRt, srvRt)

    store := content.NewMemory[content.TextFile]()
    var ids []string
    for i := 0; i < 8; i++ {
        r := content.NewText(fmt.Sprintf("doc-%d", i), fmt.Sprintf("body %d", i))
        if err := store.Insert(r); err != nil { t.Fatalf("insert: %v", err) }
        ids = append(ids, r.ID.String())
    }
    srv := directory.New[content.TextFile](srvRt, store, c, network.Inbox(3).C(), nil, directory.Options{})

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    cli := New(cliRt, c, network.Inbox(1).C())
    go func() { _ = cli.Run(ctx) }()
    go func() { _ = srv.Run(ctx) }()

    var wg sync.WaitGroup
    errs := make(chan error, len(ids))
    for _, id := range ids {
        id := id
        wg.Add(1)
        go func() {
            defer wg.Done()
            reqCtx, reqCancel := context.WithTimeout(ctx, 3*time.Second)
            defer reqCancel()
            resp, err := cli.Do(reqCtx, 3, webproto.ItemQuery{ID: id})
            if err != nil { errs <- err; return }
            item, ok := resp.(webproto.Item)
            if !ok { errs <- fmt.Errorf("%s: %#v", id, resp); return }
            var got content.TextFile
            if err := c.Unmarshal(item.Data, &got); err != nil { errs <- err; return }
            if got.ID.String() != id { errs <- fmt.Errorf("asked %s, got %s", id, got.ID) }
        }()
    }
    wg.Wait()
    close(errs)
    for err := range errs { t.Error(err) }
}

func TestDoWithoutRoute(t *testing.T) {
    cli := New(newRouter(t, 1, 8), newCodec(t), nil)
    _, err := cli.Do(context.Background(), 99, webproto.ServerTypeQuery{})
    var re *router.RoutingError
    if !errors.As(err, &re) || !errors.Is(err, router.ErrNoRoute) { t.Fatalf("expected routing error, got %v", err) }
    if len(cli.pending) != 0 { t.Fatalf("pending request leaked") }
}

func TestDoTimesOutAndClose(t *testing.T) {
    network := mem.NewNetwork(16)
    rt := newRouter(t, 1, 8)
    if err := rt.AddNeighbor(5, network.Link(5)); err != nil { t.Fatalf("link: %v", err) }
    in := mem.NewInbox(4)
    cli := New(rt, newCodec(t), in.C())

    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    if _, err := cli.Do(ctx, 5, webproto.ServerTypeQuery{}); !errors.Is(err, context.DeadlineExceeded) {
        t.Fatalf("expected deadline, got %v", err)
    }

    in.Close()
    if err := cli.Run(context.Background()); err != nil { t.Fatalf("run: %v", err) }
    if _, err := cli.Do(context.Background(), 5, webproto.ServerTypeQuery{}); !errors.Is(err, ErrClosed) {
        t.Fatalf("expected ErrClosed, got %v", err)
    }
}
