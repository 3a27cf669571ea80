// Package transport defines the link abstraction that carries fragments
// between neighboring overlay nodes, plus the neighbor table that maps peer
// ids to links.
//
// Key concepts:
// - PeerID: numeric node identity inside the overlay
// - Link: outbound delivery handle towards one direct neighbor
// - Table: the node's neighbor table, mutated by topology commands
//
// Implementations live in subpackages: mem (bounded channels, used for
// simulated topologies) and stream (framed envelopes over a byte stream).
package transport
