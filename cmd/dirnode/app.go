package main

import (
    "context"
    "fmt"
    "io"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "go.uber.org/zap"
    "gopkg.in/yaml.v3"

    "dirmesh/pkg/config"
    "dirmesh/pkg/node"
    "dirmesh/pkg/observability"
    "dirmesh/pkg/protocol/codec"
    "dirmesh/pkg/transport"
    "dirmesh/pkg/webproto"
)

var (
    demoLinger  bool
    demoTimeout time.Duration
)

var demoCmd = &cobra.Command{
    Use:   "demo",
    Short: "Run the configured demo topology in-process and query every server",
    Long: `demo builds every node listed under demo.nodes, joins them as described
by demo.links and demo.routes, then lets the first client node ask each
directory server for its kind, its listing and its first item.

With --linger the topology keeps running until interrupted.`,
    RunE: runDemo,
}

var configCmd = &cobra.Command{
    Use:   "config",
    Short: "Print the effective configuration",
    RunE: func(cmd *cobra.Command, args []string) error {
        cfg, err := config.Load(configPath)
        if err != nil { return err }
        out, err := yaml.Marshal(cfg)
        if err != nil { return err }
        _, err = cmd.OutOrStdout().Write(out)
        return err
    },
}

func init() {
    demoCmd.Flags().BoolVar(&demoLinger, "linger", false, "Keep the topology running until interrupted")
    demoCmd.Flags().DurationVar(&demoTimeout, "timeout", 5*time.Second, "Per-request timeout")
}

func runDemo(cmd *cobra.Command, args []string) error {
    cfg, err := config.Load(configPath)
    if err != nil { return fmt.Errorf("load config: %w", err) }

    _, flush, err := observability.SetupLogger(cfg.Log)
    if err != nil { return fmt.Errorf("setup logger: %w", err) }
    defer flush()

    zap.L().Info("dirnode demo started", zap.String("app", cfg.AppName), zap.String("version", Version))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    reg, err := codec.Default()
    if err != nil { return err }
    cl, err := node.NewCluster(cfg, reg)
    if err != nil { return err }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    runCtx, cancel := context.WithCancel(ctx)
    defer func() {
        cancel()
        if err := cl.Wait(); err != nil { zap.L().Error("node failed", zap.Error(err)) }
        if err := cl.Close(); err != nil { zap.L().Warn("close cluster", zap.Error(err)) }
    }()
    if err := cl.Start(runCtx); err != nil { return err }

    var requester *node.Node
    for _, n := range cl.Nodes() {
        if n.Role == config.RoleClient {
            requester = n
            break
        }
    }
    if requester == nil { return fmt.Errorf("demo: no client node configured") }

    out := cmd.OutOrStdout()
    for _, n := range cl.Nodes() {
        if n.Role == config.RoleClient { continue }
        if err := queryServer(ctx, out, requester, n.ID); err != nil {
            zap.L().Warn("query failed", zap.Stringer("server", n.ID), zap.Error(err))
            fmt.Fprintf(out, "node %s: %v\n", n.ID, err)
        }
    }

    if demoLinger {
        zap.L().Info("topology running; press Ctrl+C to exit")
        <-ctx.Done()
    }
    return nil
}

func queryServer(ctx context.Context, out io.Writer, from *node.Node, server transport.PeerID) error {
    ask := func(req webproto.Request) (webproto.Response, error) {
        reqCtx, cancel := context.WithTimeout(ctx, demoTimeout)
        defer cancel()
        return from.Client().Do(reqCtx, server, req)
    }

    resp, err := ask(webproto.ServerTypeQuery{})
    if err != nil { return err }
    st, ok := resp.(webproto.ServerType)
    if !ok { return fmt.Errorf("unexpected %s", resp.Kind()) }
    fmt.Fprintf(out, "node %s: %s server\n", server, st.Server)

    listReq, itemReq := webproto.Request(webproto.TextListQuery{}), func(id string) webproto.Request { return webproto.ItemQuery{ID: id} }
    if st.Server == webproto.ServerMedia {
        listReq = webproto.MediaListQuery{}
        itemReq = func(id string) webproto.Request { return webproto.MediaQuery{ID: id} }
    }
    resp, err = ask(listReq)
    if err != nil { return err }
    list, ok := resp.(webproto.ItemList)
    if !ok { return fmt.Errorf("unexpected %s", resp.Kind()) }
    for _, s := range list.Summaries { fmt.Fprintf(out, "  %s\n", s) }
    if len(list.Summaries) == 0 { return nil }

    id, _, _ := strings.Cut(list.Summaries[0], ":")
    resp, err = ask(itemReq(id))
    if err != nil { return err }
    switch r := resp.(type) {
    case webproto.Item:
        fmt.Fprintf(out, "  fetched %s (%d bytes)\n", id, len(r.Data))
    default:
        fmt.Fprintf(out, "  fetch %s: %s\n", id, r.Kind())
    }
    return nil
}
