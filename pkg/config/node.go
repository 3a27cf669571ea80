package config

import (
    "fmt"
    "strings"
)

// Role is what a node does with reassembled messages.
type Role string

const (
    RoleText  Role = "text"  // serves text records
    RoleMedia Role = "media" // serves media records
    RoleClient Role = "client"
)

// NodeConfig describes one overlay node.
type NodeConfig struct {
    // ID is the overlay address; zero is reserved
    ID   uint64 `mapstructure:"id" yaml:"id"`
    Name string `mapstructure:"name" yaml:"name"`
    Role Role   `mapstructure:"role" yaml:"role"`
    // Seed overrides the top-level seed file for this node (demo only)
    Seed string `mapstructure:"seed" yaml:"seed"`
}

func (n *NodeConfig) validate() error {
    if n.ID == 0 {
        return fmt.Errorf("node %q: id must be non-zero", n.Name)
    }
    n.Role = Role(strings.ToLower(strings.TrimSpace(string(n.Role))))
    switch n.Role {
    case RoleText, RoleMedia, RoleClient:
    default:
        return fmt.Errorf("node %d: invalid role %q", n.ID, n.Role)
    }
    if n.Name == "" {
        n.Name = fmt.Sprintf("node-%d", n.ID)
    }
    return nil
}
