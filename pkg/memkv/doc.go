// Package memkv is a small thread-safe in-memory key/value store with
// per-key TTL, lazy and periodic expiry, and cheap atomic metrics.
//
// Properties:
//   - sharded map guarded by RW mutexes (16 shards by default)
//   - TTL per key; expired keys vanish on read and on the periodic sweep
//   - values are copied on Set and Get unless NoCopy is requested
//   - injectable clock for deterministic tests
//
// The node uses it for short-lived bookkeeping: completed-session
// tombstones in the assembler and learned reverse paths in the peer store.
package memkv
