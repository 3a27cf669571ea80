package transport

import (
    "sort"
    "sync"
)

// Table keeps at most one link per neighbor. It is mutated only by
// topology commands and read on every send.
type Table struct {
    mu    sync.RWMutex
    links map[PeerID]Link
}

func NewTable() *Table { return &Table{links: make(map[PeerID]Link)} }

// Add registers link for id. A previous link for the same neighbor is
// returned so the caller can decide whether to close it.
func (t *Table) Add(id PeerID, l Link) (old Link, replaced bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    old, replaced = t.links[id]
    t.links[id] = l
    return old, replaced
}

// Get returns the link for a neighbor (if any).
func (t *Table) Get(id PeerID) (Link, bool) {
    t.mu.RLock()
    defer t.mu.RUnlock()
    l, ok := t.links[id]
    return l, ok
}

// Remove drops the neighbor and returns its link. Unknown ids are a no-op.
func (t *Table) Remove(id PeerID) (Link, bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    l, ok := t.links[id]
    if ok { delete(t.links, id) }
    return l, ok
}

// Len returns the number of neighbors.
func (t *Table) Len() int {
    t.mu.RLock(); defer t.mu.RUnlock()
    return len(t.links)
}

// IDs returns all neighbor ids in ascending order.
func (t *Table) IDs() []PeerID {
    t.mu.RLock(); defer t.mu.RUnlock()
    out := make([]PeerID, 0, len(t.links))
    for id := range t.links { out = append(out, id) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}
