package config

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "dirmesh.yaml")
    if err := os.WriteFile(path, []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }
    return path
}

func TestLoadDefaults(t *testing.T) {
    cfg, err := Load(writeConfig(t, "app_name: test\n"))
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.AppName != "test" || cfg.Node.ID != 1 || cfg.Node.Role != RoleText {
        t.Fatalf("unexpected config: %+v", cfg)
    }
    if cfg.Routing.MaxFragmentSize != 128 || cfg.Store.Backend != "memory" || cfg.Codec.Format != "json" {
        t.Fatalf("defaults not applied: %+v", cfg)
    }
    if cfg.Assembler.MaxFragments != 8192 || cfg.Assembler.MaxMessageBytes != 1<<20 || cfg.Assembler.MaxBufferedBytes != 32<<20 {
        t.Fatalf("assembler bounds: %+v", cfg.Assembler)
    }
    if cfg.Assembler.IdleTimeout() != 30*time.Second || cfg.Routing.RouteTTL() != 2*time.Minute {
        t.Fatalf("durations: %v %v", cfg.Assembler.IdleTimeout(), cfg.Routing.RouteTTL())
    }
}

func TestLoadFileAndEnv(t *testing.T) {
    path := writeConfig(t, `
node:
  id: 7
  name: media-7
  role: Media
routing:
  max_fragment_size: 32
store:
  backend: badger
  path: /tmp/x
codec:
  format: cbor
demo:
  nodes:
    - {id: 1, role: client}
    - {id: 2, role: text}
  links:
    - {a: 1, b: 2, kind: stream}
  routes:
    - {node: 1, target: 9, via: 2}
`)
    t.Setenv("DIRMESH_LOG_LEVEL", "debug")
    t.Setenv("DIRMESH_ROUTING_HOP_LIMIT", "4")

    cfg, err := Load(path)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Node.ID != 7 || cfg.Node.Role != RoleMedia || cfg.Node.Name != "media-7" { t.Fatalf("node: %+v", cfg.Node) }
    if cfg.Routing.MaxFragmentSize != 32 || cfg.Routing.HopLimit != 4 { t.Fatalf("routing: %+v", cfg.Routing) }
    if cfg.Assembler.MaxFragments != (1<<20)/32 { t.Fatalf("max fragments not derived from fragment size: %d", cfg.Assembler.MaxFragments) }
    if cfg.Log.Level != "debug" { t.Fatalf("env override ignored: %q", cfg.Log.Level) }
    if cfg.Store.Backend != "badger" || cfg.Codec.Format != "cbor" { t.Fatalf("store/codec: %+v %+v", cfg.Store, cfg.Codec) }
    if len(cfg.Demo.Nodes) != 2 || cfg.Demo.Nodes[0].Name != "node-1" || cfg.Demo.Links[0].Kind != "stream" {
        t.Fatalf("demo: %+v", cfg.Demo)
    }
    if len(cfg.Demo.Routes) != 1 || cfg.Demo.Routes[0].Via != 2 { t.Fatalf("routes: %+v", cfg.Demo.Routes) }
}

func TestLoadRejectsInvalid(t *testing.T) {
    cases := map[string]string{
        "level":   "log:\n  level: loud\n",
        "backend": "store:\n  backend: postgres\n",
        "codec":   "codec:\n  format: xml\n",
        "role":    "node:\n  role: printer\n",
        "zero id": "node:\n  id: 0\n",
        "link":    "demo:\n  nodes:\n    - {id: 1, role: client}\n  links:\n    - {a: 1, b: 5}\n",
        "dup":     "demo:\n  nodes:\n    - {id: 1, role: client}\n    - {id: 1, role: text}\n",
    }
    for name, body := range cases {
        if _, err := Load(writeConfig(t, body)); err == nil {
            t.Fatalf("%s: expected error", name)
        }
    }
}

func TestForNode(t *testing.T) {
    cfg := Default()
    cfg.Seed = "base.yaml"
    n := cfg.ForNode(NodeConfig{ID: 3, Name: "x", Role: RoleMedia, Seed: "media.yaml"})
    if n.Node.ID != 3 || n.Seed != "media.yaml" || cfg.Node.ID != 1 || cfg.Seed != "base.yaml" {
        t.Fatalf("ForNode mutated or ignored input: %+v / %+v", n, cfg)
    }
    if !strings.HasPrefix(n.AppName, "dirmesh") { t.Fatalf("app name lost") }
}

func TestSampleConfig(t *testing.T) {
    cfg, err := Load(filepath.Join("..", "..", "configs", "dirmesh.yaml"))
    if err != nil { t.Fatalf("load sample: %v", err) }
    if len(cfg.Demo.Nodes) != 4 || len(cfg.Demo.Links) != 3 || len(cfg.Demo.Routes) != 2 {
        t.Fatalf("demo topology: %+v", cfg.Demo)
    }
    if cfg.Demo.Links[1].Kind != "stream" || cfg.Demo.Nodes[2].Role != RoleText {
        t.Fatalf("demo entries: %+v", cfg.Demo)
    }
}
