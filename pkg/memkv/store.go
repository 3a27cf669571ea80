package memkv

import (
    "sync"
    "sync/atomic"
    "time"
)

type Options struct {
    Shards        int              // number of shards (default 16)
    SweepInterval time.Duration    // periodic expiry sweep; 0 disables the sweeper
    NoCopy        bool             // store and return caller slices as-is
    Now           func() time.Time // clock; defaults to time.Now
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 {
        o.Shards = 16
    }
    if o.Now == nil {
        o.Now = time.Now
    }
    return o
}

type Store struct {
    opts    Options
    shards  []shard
    closeCh chan struct{}
    once    sync.Once
    wg      sync.WaitGroup

    mKeys    atomic.Int64
    mSets    atomic.Uint64
    mHits    atomic.Uint64
    mMisses  atomic.Uint64
    mDels    atomic.Uint64
    mExpired atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano; 0 = no expiry
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:    opts,
        shards:  make([]shard, opts.Shards),
        closeCh: make(chan struct{}),
    }
    for i := range s.shards {
        s.shards[i].m = make(map[string]*entry)
    }
    if opts.SweepInterval > 0 {
        s.wg.Add(1)
        go s.sweeper(opts.SweepInterval)
    }
    return s
}

// Close stops the sweeper. The store stays readable.
func (s *Store) Close() {
    s.once.Do(func() { close(s.closeCh) })
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    // FNV-1a 64
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[int(h%uint64(len(s.shards)))]
}

func (s *Store) copyIfNeeded(b []byte) []byte {
    if s.opts.NoCopy || b == nil {
        return b
    }
    out := make([]byte, len(b))
    copy(out, b)
    return out
}

func (s *Store) deadline(ttl time.Duration) int64 {
    if ttl <= 0 {
        return 0
    }
    return s.opts.Now().Add(ttl).UnixNano()
}

// Set stores val under key. ttl <= 0 means no expiry. Returns true if the
// key was created rather than overwritten.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    e := &entry{val: s.copyIfNeeded(val), expireAt: s.deadline(ttl)}
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    if existed && prev.expired(now) {
        existed = false
        s.mExpired.Add(1)
        s.mKeys.Add(-1)
    }
    sh.m[key] = e
    sh.mu.Unlock()
    if !existed {
        s.mKeys.Add(1)
    }
    s.mSets.Add(1)
    return !existed
}

// Get returns the value and presence.
func (s *Store) Get(key string) ([]byte, bool) {
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if ok && e.expired(now) {
        s.expireKey(sh, key, now)
        ok = false
    }
    if !ok {
        s.mMisses.Add(1)
        return nil, false
    }
    s.mHits.Add(1)
    return s.copyIfNeeded(e.val), true
}

// Has reports presence without copying the value.
func (s *Store) Has(key string) bool {
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if ok && e.expired(now) {
        s.expireKey(sh, key, now)
        return false
    }
    return ok
}

// Delete removes key. Returns true if a live key was removed.
func (s *Store) Delete(key string) bool {
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok {
        delete(sh.m, key)
    }
    sh.mu.Unlock()
    if !ok {
        return false
    }
    s.mKeys.Add(-1)
    if e.expired(now) {
        s.mExpired.Add(1)
        return false
    }
    s.mDels.Add(1)
    return true
}

// Update applies fn to the current value (nil when absent or expired) and
// stores the result, keeping the existing TTL. Returning nil from fn deletes
// the key. Returns true if a value is stored afterwards.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if ok && e.expired(now) {
        delete(sh.m, key)
        s.mKeys.Add(-1)
        s.mExpired.Add(1)
        ok = false
    }
    var old []byte
    if ok {
        old = e.val
    }
    nv := fn(old)
    if nv == nil {
        if ok {
            delete(sh.m, key)
            s.mKeys.Add(-1)
            s.mDels.Add(1)
        }
        return false
    }
    if ok {
        sh.m[key] = &entry{val: s.copyIfNeeded(nv), expireAt: e.expireAt}
    } else {
        sh.m[key] = &entry{val: s.copyIfNeeded(nv)}
        s.mKeys.Add(1)
    }
    s.mSets.Add(1)
    return true
}

// Expire sets a new TTL on an existing key. ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 {
        return s.Delete(key)
    }
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    stale := ok && e.expired(now)
    if ok && !stale {
        sh.m[key] = &entry{val: e.val, expireAt: s.deadline(ttl)}
    }
    sh.mu.Unlock()
    if stale {
        s.expireKey(sh, key, now)
        return false
    }
    return ok
}

// TTL returns the remaining lifetime. A key without expiry reports 0, true.
func (s *Store) TTL(key string) (time.Duration, bool) {
    now := s.opts.Now().UnixNano()
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok {
        return 0, false
    }
    if e.expireAt == 0 {
        return 0, true
    }
    if e.expired(now) {
        s.expireKey(sh, key, now)
        return 0, false
    }
    return time.Duration(e.expireAt - now), true
}

// Keys returns a snapshot of live keys with the given prefix.
func (s *Store) Keys(prefix string) []string {
    now := s.opts.Now().UnixNano()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if e.expired(now) || len(k) < len(prefix) || k[:len(prefix)] != prefix {
                continue
            }
            out = append(out, k)
        }
        sh.mu.RUnlock()
    }
    return out
}

// Sweep removes every expired key and returns how many were dropped.
func (s *Store) Sweep() int {
    now := s.opts.Now().UnixNano()
    n := 0
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.Lock()
        for k, e := range sh.m {
            if e.expired(now) {
                delete(sh.m, k)
                n++
            }
        }
        sh.mu.Unlock()
    }
    if n > 0 {
        s.mKeys.Add(int64(-n))
        s.mExpired.Add(uint64(n))
    }
    return n
}

func (s *Store) expireKey(sh *shard, key string, now int64) {
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok && e.expired(now) {
        delete(sh.m, key)
    } else {
        ok = false
    }
    sh.mu.Unlock()
    if ok {
        s.mKeys.Add(-1)
        s.mExpired.Add(1)
    }
}

func (s *Store) sweeper(every time.Duration) {
    defer s.wg.Done()
    t := time.NewTicker(every)
    defer t.Stop()
    for {
        select {
        case <-s.closeCh:
            return
        case <-t.C:
            s.Sweep()
        }
    }
}

// Stats is a snapshot of store metrics.
type Stats struct {
    Keys    int64
    Sets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
}

// Metrics returns current metrics without blocking store operations.
func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.mKeys.Load(),
        Sets:    s.mSets.Load(),
        Hits:    s.mHits.Load(),
        Misses:  s.mMisses.Load(),
        Dels:    s.mDels.Load(),
        Expired: s.mExpired.Load(),
    }
}
