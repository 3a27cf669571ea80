package peers

import (
    "encoding/json"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"

    "dirmesh/pkg/memkv"
    "dirmesh/pkg/transport"
)

// Store keeps neighbor metadata/counters and learned reverse paths in the
// in-memory KV.
type Store struct {
    kv       *memkv.Store
    routeTTL time.Duration
    now      func() time.Time
}

// DefaultRouteTTL is how long a learned reverse path stays usable without
// being refreshed by new traffic.
const DefaultRouteTTL = 2 * time.Minute

func NewStore(kv *memkv.Store, routeTTL time.Duration) *Store {
    if routeTTL <= 0 { routeTTL = DefaultRouteTTL }
    return &Store{kv: kv, routeTTL: routeTTL, now: time.Now}
}

type PeerMeta struct {
    ID        transport.PeerID `json:"id"`
    Link      string           `json:"link,omitempty"`
    Direct    bool             `json:"direct"`
    FirstSeen int64            `json:"first_seen_unix_ms"`
    LastSeen  int64            `json:"last_seen_unix_ms"`
    // Counters
    MsgsIn    uint64           `json:"msgs_in"`
    MsgsOut   uint64           `json:"msgs_out"`
    BytesIn   uint64           `json:"bytes_in"`
    BytesOut  uint64           `json:"bytes_out"`
    Failures  uint64           `json:"failures"`
}

// RouteTo describes a reverse path to a node that is not a direct neighbor:
// fragments from Target arrived through NextHop after Hops relays.
type RouteTo struct {
    Target  transport.PeerID `json:"target"`
    NextHop transport.PeerID `json:"next_hop"`
    Hops    uint8            `json:"hops"`
    Static  bool             `json:"static,omitempty"`
    Updated int64            `json:"updated_unix_ms"`
}

func keyPeer(id transport.PeerID) string { return "peer:" + id.String() }
func keyRoute(id transport.PeerID) string { return "route:" + id.String() }

func (s *Store) update(id transport.PeerID, fn func(pm *PeerMeta)) {
    now := s.now().UnixMilli()
    _ = s.kv.Update(keyPeer(id), func(old []byte) []byte {
        var pm PeerMeta
        if old != nil { _ = json.Unmarshal(old, &pm) }
        if pm.FirstSeen == 0 { pm.FirstSeen = now }
        pm.ID = id
        fn(&pm)
        b, _ := json.Marshal(pm)
        return b
    })
}

// MarkDirect records that id became a direct neighbor over a link of kind k.
func (s *Store) MarkDirect(id transport.PeerID, k transport.Kind) {
    s.update(id, func(pm *PeerMeta) {
        pm.Direct = true
        pm.Link = k.String()
        pm.LastSeen = s.now().UnixMilli()
    })
    zap.L().Info("adjacency added", zap.Stringer("peer", id), zap.Stringer("link", k))
}

// UnmarkDirect clears the neighbor flag and drops every reverse path that
// used id as next hop. Counters are kept.
func (s *Store) UnmarkDirect(id transport.PeerID) {
    if _, ok := s.Get(id); ok {
        s.update(id, func(pm *PeerMeta) { pm.Direct = false; pm.Link = "" })
    }
    n := s.ForgetVia(id)
    zap.L().Info("adjacency removed", zap.Stringer("peer", id), zap.Int("routes_dropped", n))
}

func (s *Store) Get(id transport.PeerID) (PeerMeta, bool) {
    b, ok := s.kv.Get(keyPeer(id))
    if !ok { return PeerMeta{}, false }
    var pm PeerMeta
    if err := json.Unmarshal(b, &pm); err != nil { return PeerMeta{}, false }
    return pm, true
}

// RecordExchange updates message/byte counters for a neighbor.
func (s *Store) RecordExchange(id transport.PeerID, inBytes, outBytes, inMsgs, outMsgs uint64) {
    s.update(id, func(pm *PeerMeta) {
        pm.MsgsIn += inMsgs
        pm.MsgsOut += outMsgs
        pm.BytesIn += inBytes
        pm.BytesOut += outBytes
        if inMsgs > 0 { pm.LastSeen = s.now().UnixMilli() }
    })
}

// RecordFailure counts a failed delivery towards a neighbor.
func (s *Store) RecordFailure(id transport.PeerID) {
    s.update(id, func(pm *PeerMeta) { pm.Failures++ })
}

// PinPath installs a static path to target through nextHop. Static paths do
// not expire and are never replaced by learned ones.
func (s *Store) PinPath(target, nextHop transport.PeerID) RouteTo {
    r := RouteTo{Target: target, NextHop: nextHop, Static: true, Updated: s.now().UnixMilli()}
    b, _ := json.Marshal(r)
    s.kv.Set(keyRoute(target), b, 0)
    zap.L().Info("static route", zap.Stringer("target", target), zap.Stringer("next_hop", nextHop))
    return r
}

// LearnPath stores a reverse path to target through nextHop. An existing
// live path is replaced only when the new one is not longer.
func (s *Store) LearnPath(target, nextHop transport.PeerID, hops uint8) (RouteTo, bool) {
    now := s.now().UnixMilli()
    nr := RouteTo{Target: target, NextHop: nextHop, Hops: hops, Updated: now}
    out := nr
    updated := false
    _ = s.kv.Update(keyRoute(target), func(old []byte) []byte {
        var cur RouteTo
        if old != nil { _ = json.Unmarshal(old, &cur) }
        if old != nil && cur.Static {
            out = cur
            return old
        }
        if old == nil || hops <= cur.Hops || cur.NextHop == nextHop {
            updated = true
            b, _ := json.Marshal(nr)
            return b
        }
        out = cur
        return old
    })
    if updated {
        _ = s.kv.Expire(keyRoute(target), s.routeTTL)
        zap.L().Debug("route learned", zap.Stringer("target", target), zap.Stringer("next_hop", nextHop), zap.Uint8("hops", hops))
    }
    return out, updated
}

// NextHop returns the learned next hop towards target.
func (s *Store) NextHop(target transport.PeerID) (transport.PeerID, bool) {
    r, ok := s.Route(target)
    if !ok { return 0, false }
    return r.NextHop, true
}

// Route returns the learned reverse path for target, if any.
func (s *Store) Route(target transport.PeerID) (RouteTo, bool) {
    b, ok := s.kv.Get(keyRoute(target))
    if !ok { return RouteTo{}, false }
    var r RouteTo
    if err := json.Unmarshal(b, &r); err != nil { return RouteTo{}, false }
    return r, true
}

// ForgetVia drops every learned path whose next hop is via.
func (s *Store) ForgetVia(via transport.PeerID) int {
    n := 0
    for _, k := range s.kv.Keys("route:") {
        id, err := strconv.ParseUint(strings.TrimPrefix(k, "route:"), 10, 64)
        if err != nil { continue }
        if r, ok := s.Route(transport.PeerID(id)); ok && r.NextHop == via {
            if s.kv.Delete(k) { n++ }
        }
    }
    return n
}

// Routes returns a snapshot of every live reverse path.
func (s *Store) Routes() []RouteTo {
    var out []RouteTo
    for _, k := range s.kv.Keys("route:") {
        id, err := strconv.ParseUint(strings.TrimPrefix(k, "route:"), 10, 64)
        if err != nil { continue }
        if r, ok := s.Route(transport.PeerID(id)); ok { out = append(out, r) }
    }
    return out
}
