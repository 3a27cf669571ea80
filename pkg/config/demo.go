package config

import "fmt"

// DemoConfig describes an in-process topology.
// Example YAML:
// demo:
//   nodes:
//     - {id: 1, name: client, role: client}
//     - {id: 2, name: relay, role: client}
//     - {id: 3, name: texts, role: text, seed: seeds/text.yaml}
//   links:
//     - {a: 1, b: 2}
//     - {a: 2, b: 3, kind: stream}
//   routes:
//     - {node: 1, target: 3, via: 2}
type DemoConfig struct {
    Nodes  []NodeConfig  `mapstructure:"nodes" yaml:"nodes"`
    Links  []LinkConfig  `mapstructure:"links" yaml:"links"`
    Routes []RouteConfig `mapstructure:"routes" yaml:"routes"`
}

// LinkConfig joins two demo nodes in both directions.
type LinkConfig struct {
    A uint64 `mapstructure:"a" yaml:"a"`
    B uint64 `mapstructure:"b" yaml:"b"`
    // Kind: mem (default) or stream
    Kind string `mapstructure:"kind" yaml:"kind"`
}

// RouteConfig pins the next hop a node uses towards a distant target.
type RouteConfig struct {
    Node   uint64 `mapstructure:"node" yaml:"node"`
    Target uint64 `mapstructure:"target" yaml:"target"`
    Via    uint64 `mapstructure:"via" yaml:"via"`
}

func (d *DemoConfig) validate() error {
    ids := make(map[uint64]bool, len(d.Nodes))
    for i := range d.Nodes {
        if err := d.Nodes[i].validate(); err != nil {
            return fmt.Errorf("demo: %w", err)
        }
        if ids[d.Nodes[i].ID] {
            return fmt.Errorf("demo: duplicate node id %d", d.Nodes[i].ID)
        }
        ids[d.Nodes[i].ID] = true
    }
    for _, l := range d.Links {
        if !ids[l.A] || !ids[l.B] || l.A == l.B {
            return fmt.Errorf("demo: invalid link %d-%d", l.A, l.B)
        }
        switch l.Kind {
        case "", "mem", "stream":
        default:
            return fmt.Errorf("demo: link %d-%d: unknown kind %q", l.A, l.B, l.Kind)
        }
    }
    for _, r := range d.Routes {
        if !ids[r.Node] || !ids[r.Via] {
            return fmt.Errorf("demo: invalid route %d->%d via %d", r.Node, r.Target, r.Via)
        }
    }
    return nil
}
