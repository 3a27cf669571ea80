// Package assembler rebuilds complete messages from fragments that arrive
// out of order, interleaved across many (origin, session) pairs.
//
// Eviction policy: at most Options.MaxSessions incomplete sessions are kept;
// a new session beyond that evicts the least recently active one. Sessions
// idle for longer than Options.IdleTimeout are dropped on the next Feed or
// Sweep. Evicted fragments are lost and a later fragment for the same key
// starts a new session. Completed keys are remembered for
// Options.CompletedTTL so that duplicate or late fragments are discarded.
//
// Memory is bounded in bytes as well: a session may not buffer more than
// Options.MaxMessageSize payload bytes, and all sessions together may not
// hold more than Options.MaxBufferedBytes (payload plus a fixed per-fragment
// overhead). Slots are only allocated for fragments that actually arrived.
package assembler

import (
    "container/list"
    "errors"
    "fmt"
    "strconv"
    "sync"
    "time"

    "go.uber.org/zap"

    "dirmesh/pkg/memkv"
    "dirmesh/pkg/protocol"
)

var (
    // ErrMalformedFragment reports total == 0, index >= total or a total above
    // Options.MaxFragments.
    ErrMalformedFragment = errors.New("malformed fragment")
    // ErrTotalMismatch reports a fragment whose total disagrees with the
    // session it belongs to.
    ErrTotalMismatch = errors.New("fragment total mismatch")
    // ErrMessageTooLarge reports a session whose buffered payload passed
    // Options.MaxMessageSize. The session is dropped.
    ErrMessageTooLarge = errors.New("message too large")
)

const (
    DefaultMaxSessions      = 1024
    DefaultIdleTimeout      = 30 * time.Second
    DefaultCompletedTTL     = time.Minute
    DefaultMaxMessageSize   = 1 << 20
    DefaultMaxBufferedBytes = 32 << 20
    // DefaultMaxFragments is the largest message cut at the default
    // 128-byte fragment size.
    DefaultMaxFragments = DefaultMaxMessageSize / 128

    // slotOverhead is charged per buffered fragment on top of its payload.
    slotOverhead = 64
)

type Options struct {
    MaxSessions      int
    IdleTimeout      time.Duration
    CompletedTTL     time.Duration
    MaxFragments     uint32
    MaxMessageSize   int
    MaxBufferedBytes int
    Now              func() time.Time
}

func (o Options) withDefaults() Options {
    if o.MaxSessions <= 0 { o.MaxSessions = DefaultMaxSessions }
    if o.IdleTimeout <= 0 { o.IdleTimeout = DefaultIdleTimeout }
    if o.CompletedTTL <= 0 { o.CompletedTTL = DefaultCompletedTTL }
    if o.MaxFragments == 0 { o.MaxFragments = DefaultMaxFragments }
    if o.MaxMessageSize <= 0 { o.MaxMessageSize = DefaultMaxMessageSize }
    if o.MaxBufferedBytes <= 0 { o.MaxBufferedBytes = DefaultMaxBufferedBytes }
    if o.MaxBufferedBytes < o.MaxMessageSize+slotOverhead { o.MaxBufferedBytes = o.MaxMessageSize + slotOverhead }
    if o.Now == nil { o.Now = time.Now }
    return o
}

// Message is a fully reassembled payload together with its correlation data.
type Message struct {
    Origin    uint64
    SessionID uint64
    Type      uint8
    Payload   []byte
}

// Stats is a snapshot of assembler counters.
type Stats struct {
    Pending   int
    Buffered  int
    Completed uint64
    Evicted   uint64
    Rejected  uint64
    Late      uint64
}

type session struct {
    key      protocol.SessionKey
    msgType  uint8
    total    uint32
    received uint32
    size     int // payload bytes
    cost     int // size plus per-slot overhead
    slots    map[uint32][]byte
    last     time.Time
    elem     *list.Element
}

// Assembler is safe for concurrent use, although a node drives it from a
// single goroutine.
type Assembler struct {
    opts Options

    mu       sync.Mutex
    sessions map[protocol.SessionKey]*session
    lru      *list.List // front = least recently active
    done     *memkv.Store
    buffered int
    stats    Stats
}

func New(opts Options) *Assembler {
    opts = opts.withDefaults()
    return &Assembler{
        opts:     opts,
        sessions: make(map[protocol.SessionKey]*session),
        lru:      list.New(),
        done:     memkv.New(memkv.Options{Now: opts.Now, NoCopy: true}),
    }
}

// Close releases the tombstone store.
func (a *Assembler) Close() { a.done.Close() }

func doneKey(k protocol.SessionKey) string {
    return "done:" + strconv.FormatUint(k.Origin, 10) + ":" + strconv.FormatUint(k.SessionID, 10)
}

// Feed adds one fragment. It returns the complete message exactly once, when
// the last missing fragment of its session arrives. Malformed fragments are
// rejected with an error wrapping ErrMalformedFragment or ErrTotalMismatch
// and leave existing sessions untouched.
func (a *Assembler) Feed(env protocol.Envelope) (Message, bool, error) {
    h := env.Header
    if err := env.Validate(); err != nil {
        a.reject()
        return Message{}, false, fmt.Errorf("%w: %v", ErrMalformedFragment, err)
    }
    if h.FragTotal > a.opts.MaxFragments {
        a.reject()
        return Message{}, false, fmt.Errorf("%w: total %d exceeds limit %d", ErrMalformedFragment, h.FragTotal, a.opts.MaxFragments)
    }

    now := a.opts.Now()
    key := h.Key()

    a.mu.Lock()
    defer a.mu.Unlock()

    a.evictIdle(now)

    if a.done.Has(doneKey(key)) {
        a.stats.Late++
        return Message{}, false, nil
    }

    s := a.sessions[key]
    if s == nil {
        s = a.open(key, h, now)
    } else if s.total != h.FragTotal {
        a.stats.Rejected++
        return Message{}, false, fmt.Errorf("%w: session (%d,%d) expects %d, got %d",
            ErrTotalMismatch, key.Origin, key.SessionID, s.total, h.FragTotal)
    }

    idx := h.FragIndex
    if old, ok := s.slots[idx]; ok {
        a.charge(s, -len(old), -slotOverhead)
    } else {
        s.received++
    }
    s.slots[idx] = env.Payload
    a.charge(s, len(env.Payload), slotOverhead)
    s.last = now
    a.lru.MoveToBack(s.elem)

    if s.size > a.opts.MaxMessageSize {
        a.evict(s, "oversize")
        return Message{}, false, fmt.Errorf("%w: session (%d,%d) holds %d bytes, limit %d",
            ErrMessageTooLarge, key.Origin, key.SessionID, s.size, a.opts.MaxMessageSize)
    }
    a.trim(s)

    if s.received < s.total {
        return Message{}, false, nil
    }

    out := make([]byte, 0, s.size)
    for i := uint32(0); i < s.total; i++ {
        out = append(out, s.slots[i]...)
    }
    a.drop(s)
    a.done.Set(doneKey(key), []byte{}, a.opts.CompletedTTL)
    a.stats.Completed++
    return Message{Origin: key.Origin, SessionID: key.SessionID, Type: s.msgType, Payload: out}, true, nil
}

func (a *Assembler) open(key protocol.SessionKey, h protocol.Header, now time.Time) *session {
    for len(a.sessions) >= a.opts.MaxSessions {
        oldest := a.lru.Front()
        if oldest == nil { break }
        victim := oldest.Value.(*session)
        a.evict(victim, "capacity")
    }
    s := &session{
        key:     key,
        msgType: h.Type,
        total:   h.FragTotal,
        slots:   make(map[uint32][]byte),
        last:    now,
    }
    s.elem = a.lru.PushBack(s)
    a.sessions[key] = s
    return s
}

func (a *Assembler) drop(s *session) {
    a.lru.Remove(s.elem)
    delete(a.sessions, s.key)
    a.buffered -= s.cost
}

func (a *Assembler) charge(s *session, bytes, overhead int) {
    s.size += bytes
    s.cost += bytes + overhead
    a.buffered += bytes + overhead
}

// trim evicts the least recently active sessions other than keep until the
// buffered total fits MaxBufferedBytes.
func (a *Assembler) trim(keep *session) {
    for e := a.lru.Front(); e != nil && a.buffered > a.opts.MaxBufferedBytes; {
        next := e.Next()
        if s := e.Value.(*session); s != keep { a.evict(s, "memory") }
        e = next
    }
}

func (a *Assembler) evict(s *session, reason string) {
    a.drop(s)
    a.stats.Evicted++
    zap.L().Debug("session evicted",
        zap.Uint64("origin", s.key.Origin),
        zap.Uint64("session", s.key.SessionID),
        zap.Uint32("received", s.received),
        zap.Uint32("total", s.total),
        zap.String("reason", reason))
}

func (a *Assembler) evictIdle(now time.Time) int {
    n := 0
    for e := a.lru.Front(); e != nil; e = a.lru.Front() {
        s := e.Value.(*session)
        if now.Sub(s.last) <= a.opts.IdleTimeout { break }
        a.evict(s, "idle")
        n++
    }
    return n
}

func (a *Assembler) reject() {
    a.mu.Lock()
    a.stats.Rejected++
    a.mu.Unlock()
}

// Sweep evicts sessions idle at now and expired tombstones. It returns the
// number of sessions dropped.
func (a *Assembler) Sweep(now time.Time) int {
    a.mu.Lock()
    defer a.mu.Unlock()
    a.done.Sweep()
    return a.evictIdle(now)
}

// Reset discards every incomplete session and returns how many were dropped.
func (a *Assembler) Reset() int {
    a.mu.Lock()
    defer a.mu.Unlock()
    n := len(a.sessions)
    a.sessions = make(map[protocol.SessionKey]*session)
    a.lru.Init()
    a.buffered = 0
    return n
}

// Pending returns the number of incomplete sessions.
func (a *Assembler) Pending() int {
    a.mu.Lock()
    defer a.mu.Unlock()
    return len(a.sessions)
}

func (a *Assembler) Stats() Stats {
    a.mu.Lock()
    defer a.mu.Unlock()
    st := a.stats
    st.Pending = len(a.sessions)
    st.Buffered = a.buffered
    return st
}
