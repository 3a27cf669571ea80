package config

import (
    "fmt"
    "time"
)

// AssemblerConfig bounds fragment reassembly state.
type AssemblerConfig struct {
    MaxSessions    int `mapstructure:"max_sessions" yaml:"max_sessions"`
    IdleTimeoutMS  int `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms"`
    CompletedTTLMS int `mapstructure:"completed_ttl_ms" yaml:"completed_ttl_ms"`
    // MaxFragments defaults to max_message_bytes / routing.max_fragment_size
    MaxFragments uint32 `mapstructure:"max_fragments" yaml:"max_fragments"`
    // MaxMessageBytes caps one reassembled message
    MaxMessageBytes int `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
    // MaxBufferedBytes caps all incomplete sessions together
    MaxBufferedBytes int `mapstructure:"max_buffered_bytes" yaml:"max_buffered_bytes"`
    SweepIntervalMS  int `mapstructure:"sweep_interval_ms" yaml:"sweep_interval_ms"`
}

func (a *AssemblerConfig) fill(fragmentSize int) {
    d := Default().Assembler
    if a.MaxSessions <= 0 { a.MaxSessions = d.MaxSessions }
    if a.IdleTimeoutMS <= 0 { a.IdleTimeoutMS = d.IdleTimeoutMS }
    if a.CompletedTTLMS <= 0 { a.CompletedTTLMS = d.CompletedTTLMS }
    if a.MaxMessageBytes <= 0 { a.MaxMessageBytes = d.MaxMessageBytes }
    if a.MaxBufferedBytes <= 0 { a.MaxBufferedBytes = d.MaxBufferedBytes }
    if a.MaxFragments == 0 && fragmentSize > 0 {
        a.MaxFragments = uint32((a.MaxMessageBytes + fragmentSize - 1) / fragmentSize)
    }
    if a.SweepIntervalMS < 0 { a.SweepIntervalMS = 0 }
}

func (a AssemblerConfig) IdleTimeout() time.Duration { return ms(a.IdleTimeoutMS) }
func (a AssemblerConfig) CompletedTTL() time.Duration { return ms(a.CompletedTTLMS) }
func (a AssemblerConfig) SweepInterval() time.Duration { return ms(a.SweepIntervalMS) }

// RoutingConfig contains fragmenting and path memory options.
type RoutingConfig struct {
    MaxFragmentSize int `mapstructure:"max_fragment_size" yaml:"max_fragment_size"`
    HopLimit        int `mapstructure:"hop_limit" yaml:"hop_limit"`
    RouteTTLMS      int `mapstructure:"route_ttl_ms" yaml:"route_ttl_ms"`
    // InboxBuffer is the capacity of in-process links
    InboxBuffer int `mapstructure:"inbox_buffer" yaml:"inbox_buffer"`
}

func (r *RoutingConfig) validate() error {
    d := Default().Routing
    if r.MaxFragmentSize <= 0 { r.MaxFragmentSize = d.MaxFragmentSize }
    if r.HopLimit <= 0 { r.HopLimit = d.HopLimit }
    if r.HopLimit > 255 {
        return fmt.Errorf("invalid routing.hop_limit: %d", r.HopLimit)
    }
    if r.RouteTTLMS <= 0 { r.RouteTTLMS = d.RouteTTLMS }
    if r.InboxBuffer <= 0 { r.InboxBuffer = d.InboxBuffer }
    return nil
}

func (r RoutingConfig) RouteTTL() time.Duration { return ms(r.RouteTTLMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
