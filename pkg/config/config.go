// Package config provides YAML-based configuration loading for dirmesh.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name of the application
    AppName string `mapstructure:"app_name" yaml:"app_name"`

    // DataDir base directory for persistent data
    DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

    // Node identifies the local node and its role
    Node NodeConfig `mapstructure:"node" yaml:"node"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log" yaml:"log"`

    Assembler AssemblerConfig `mapstructure:"assembler" yaml:"assembler"`
    Routing   RoutingConfig   `mapstructure:"routing" yaml:"routing"`
    Store     StoreConfig     `mapstructure:"store" yaml:"store"`
    Codec     CodecConfig     `mapstructure:"codec" yaml:"codec"`

    // Seed is the YAML file with the node's initial content
    Seed string `mapstructure:"seed" yaml:"seed"`

    // Demo describes the in-process topology used by `dirnode demo`
    Demo DemoConfig `mapstructure:"demo" yaml:"demo"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level" yaml:"level"`
    // Format: console or json
    Format string `mapstructure:"format" yaml:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs" yaml:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable" yaml:"enable"`
    Filename   string `mapstructure:"filename" yaml:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
    Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// StoreConfig selects the content store backend.
type StoreConfig struct {
    // Backend: memory or badger
    Backend string `mapstructure:"backend" yaml:"backend"`
    // Path of the badger directory; empty keeps badger in memory
    Path string `mapstructure:"path" yaml:"path"`
}

// CodecConfig selects the body format of outgoing messages.
type CodecConfig struct {
    // Format: json, cbor or proto
    Format string `mapstructure:"format" yaml:"format"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "dirmesh",
        DataDir: "./data",
        Node:    NodeConfig{ID: 1, Name: "node-1", Role: RoleText},
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/dirmesh.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Assembler: AssemblerConfig{
            MaxSessions:      1024,
            IdleTimeoutMS:    30_000,
            CompletedTTLMS:   60_000,
            MaxMessageBytes:  1 << 20,
            MaxBufferedBytes: 32 << 20,
            SweepIntervalMS:  5_000,
        },
        Routing: RoutingConfig{
            MaxFragmentSize: 128,
            HopLimit:        16,
            RouteTTLMS:      120_000,
            InboxBuffer:     256,
        },
        Store: StoreConfig{Backend: "memory"},
        Codec: CodecConfig{Format: "json"},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix DIRMESH and `.`/`-` are replaced with `_`.
// Example: DIRMESH_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("DIRMESH")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("data_dir", cfg.DataDir)
    v.SetDefault("node.id", cfg.Node.ID)
    v.SetDefault("node.name", cfg.Node.Name)
    v.SetDefault("node.role", cfg.Node.Role)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("assembler.max_sessions", cfg.Assembler.MaxSessions)
    v.SetDefault("assembler.idle_timeout_ms", cfg.Assembler.IdleTimeoutMS)
    v.SetDefault("assembler.completed_ttl_ms", cfg.Assembler.CompletedTTLMS)
    v.SetDefault("assembler.max_fragments", cfg.Assembler.MaxFragments)
    v.SetDefault("assembler.max_message_bytes", cfg.Assembler.MaxMessageBytes)
    v.SetDefault("assembler.max_buffered_bytes", cfg.Assembler.MaxBufferedBytes)
    v.SetDefault("assembler.sweep_interval_ms", cfg.Assembler.SweepIntervalMS)
    v.SetDefault("routing.max_fragment_size", cfg.Routing.MaxFragmentSize)
    v.SetDefault("routing.hop_limit", cfg.Routing.HopLimit)
    v.SetDefault("routing.route_ttl_ms", cfg.Routing.RouteTTLMS)
    v.SetDefault("routing.inbox_buffer", cfg.Routing.InboxBuffer)
    v.SetDefault("store.backend", cfg.Store.Backend)
    v.SetDefault("store.path", cfg.Store.Path)
    v.SetDefault("codec.format", cfg.Codec.Format)
    v.SetDefault("seed", cfg.Seed)

    // Choose config file
    if path == "" {
        // Allow override via env var
        if envPath := os.Getenv("DIRMESH_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `dirmesh`
        v.SetConfigName("dirmesh")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".dirmesh"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if err := c.Node.validate(); err != nil {
        return err
    }
    c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
    switch c.Store.Backend {
    case "":
        c.Store.Backend = "memory"
    case "memory", "badger":
    default:
        return fmt.Errorf("invalid store.backend: %q", c.Store.Backend)
    }
    switch strings.ToLower(strings.TrimSpace(c.Codec.Format)) {
    case "", "json", "cbor", "proto", "protobuf":
    default:
        return fmt.Errorf("invalid codec.format: %q", c.Codec.Format)
    }
    if err := c.Routing.validate(); err != nil {
        return err
    }
    c.Assembler.fill(c.Routing.MaxFragmentSize)
    return c.Demo.validate()
}

// ForNode returns a copy of c describing another node of the same process.
func (c *Config) ForNode(n NodeConfig) *Config {
    cp := *c
    cp.Node = n
    if n.Seed != "" {
        cp.Seed = n.Seed
    }
    return &cp
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
