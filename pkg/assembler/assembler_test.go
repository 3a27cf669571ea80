package assembler

import (
    "bytes"
    "errors"
    "testing"
    "time"

    "pgregory.net/rapid"

    "dirmesh/pkg/protocol"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAssembler(t *testing.T, opts Options) (*Assembler, *fakeClock) {
    t.Helper()
    clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
    opts.Now = clk.Now
    a := New(opts)
    t.Cleanup(a.Close)
    return a, clk
}

func frag(origin, session uint64, idx, total uint32, payload string) protocol.Envelope {
    return protocol.Envelope{
        Header: protocol.Header{
            Type:      protocol.MsgRequest,
            Origin:    origin,
            SessionID: session,
            FragIndex: idx,
            FragTotal: total,
        },
        Payload: []byte(payload),
    }
}

func TestOutOfOrderReassembly(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})

    if _, done, err := a.Feed(frag(1, 7, 0, 3, "AB")); err != nil || done {
        t.Fatalf("feed 0: done=%v err=%v", done, err)
    }
    if _, done, err := a.Feed(frag(1, 7, 2, 3, "EF")); err != nil || done {
        t.Fatalf("feed 2: done=%v err=%v", done, err)
    }
    msg, done, err := a.Feed(frag(1, 7, 1, 3, "CD"))
    if err != nil || !done {
        t.Fatalf("feed 1: done=%v err=%v", done, err)
    }
    if string(msg.Payload) != "ABCDEF" { t.Fatalf("payload = %q", msg.Payload) }
    if msg.Origin != 1 || msg.SessionID != 7 || msg.Type != protocol.MsgRequest {
        t.Fatalf("unexpected message header: %+v", msg)
    }
    if a.Pending() != 0 { t.Fatalf("session should be gone") }
}

func TestSingleFragment(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    msg, done, err := a.Feed(frag(3, 1, 0, 1, ""))
    if err != nil || !done { t.Fatalf("done=%v err=%v", done, err) }
    if len(msg.Payload) != 0 { t.Fatalf("expected empty payload, got %q", msg.Payload) }
}

func TestDuplicateBeforeCompletion(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    a.Feed(frag(1, 1, 0, 2, "xx"))
    if _, done, _ := a.Feed(frag(1, 1, 0, 2, "AB")); done {
        t.Fatalf("duplicate must not complete the session")
    }
    msg, done, err := a.Feed(frag(1, 1, 1, 2, "CD"))
    if err != nil || !done { t.Fatalf("done=%v err=%v", done, err) }
    if string(msg.Payload) != "ABCD" { t.Fatalf("payload = %q", msg.Payload) }
}

func TestLateFragmentAfterCompletion(t *testing.T) {
    a, clk := newTestAssembler(t, Options{CompletedTTL: time.Minute})
    a.Feed(frag(1, 1, 0, 2, "AB"))
    if _, done, _ := a.Feed(frag(1, 1, 1, 2, "CD")); !done { t.Fatalf("expected completion") }

    if _, done, err := a.Feed(frag(1, 1, 1, 2, "CD")); done || err != nil {
        t.Fatalf("late fragment: done=%v err=%v", done, err)
    }
    if a.Pending() != 0 { t.Fatalf("late fragment must not open a session") }
    if a.Stats().Late != 1 { t.Fatalf("late counter = %d", a.Stats().Late) }

    clk.Advance(2 * time.Minute)
    if _, done, _ := a.Feed(frag(1, 1, 0, 1, "new")); !done {
        t.Fatalf("key must be reusable once the tombstone expired")
    }
}

func TestMalformedLeavesSessionsIntact(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    a.Feed(frag(1, 1, 0, 2, "AB"))

    cases := []protocol.Envelope{
        frag(1, 1, 2, 2, "??"),
        frag(1, 1, 0, 0, "??"),
        frag(2, 9, 5, 3, "??"),
    }
    for _, env := range cases {
        _, done, err := a.Feed(env)
        if !errors.Is(err, ErrMalformedFragment) || done {
            t.Fatalf("fragment %+v: done=%v err=%v", env.Header, done, err)
        }
    }
    if _, _, err := a.Feed(frag(1, 1, 1, 5, "??")); !errors.Is(err, ErrTotalMismatch) {
        t.Fatalf("expected total mismatch, got %v", err)
    }
    if a.Pending() != 1 { t.Fatalf("pending = %d", a.Pending()) }

    msg, done, err := a.Feed(frag(1, 1, 1, 2, "CD"))
    if err != nil || !done || string(msg.Payload) != "ABCD" {
        t.Fatalf("session corrupted: done=%v err=%v payload=%q", done, err, msg.Payload)
    }
    if st := a.Stats(); st.Rejected != 4 { t.Fatalf("rejected = %d", st.Rejected) }
}

func TestTotalAboveLimit(t *testing.T) {
    a, _ := newTestAssembler(t, Options{MaxFragments: 4})
    if _, _, err := a.Feed(frag(1, 1, 0, 5, "x")); !errors.Is(err, ErrMalformedFragment) {
        t.Fatalf("expected malformed, got %v", err)
    }
}

func TestLargeTotalsDoNotPreallocate(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    for i := uint64(0); i < DefaultMaxSessions; i++ {
        if _, _, err := a.Feed(frag(1, i+1, 0, DefaultMaxFragments, "x")); err != nil {
            t.Fatalf("feed %d: %v", i, err)
        }
    }
    st := a.Stats()
    if st.Pending != DefaultMaxSessions { t.Fatalf("pending = %d", st.Pending) }
    if want := DefaultMaxSessions * (1 + slotOverhead); st.Buffered != want {
        t.Fatalf("buffered = %d, want %d", st.Buffered, want)
    }
}

func TestMessageSizeLimit(t *testing.T) {
    a, _ := newTestAssembler(t, Options{MaxMessageSize: 4})
    if _, _, err := a.Feed(frag(1, 1, 0, 3, "abc")); err != nil { t.Fatalf("feed 0: %v", err) }
    _, done, err := a.Feed(frag(1, 1, 1, 3, "de"))
    if done || !errors.Is(err, ErrMessageTooLarge) { t.Fatalf("done=%v err=%v", done, err) }
    st := a.Stats()
    if st.Pending != 0 || st.Buffered != 0 || st.Evicted != 1 { t.Fatalf("stats = %+v", st) }
}

func TestBufferedBytesBudget(t *testing.T) {
    budget := 2 * (8 + slotOverhead)
    a, clk := newTestAssembler(t, Options{MaxMessageSize: 8, MaxBufferedBytes: budget})
    a.Feed(frag(1, 1, 0, 2, "aaaaaaaa"))
    clk.Advance(time.Millisecond)
    a.Feed(frag(1, 2, 0, 2, "bbbbbbbb"))
    if st := a.Stats(); st.Pending != 2 || st.Buffered != budget { t.Fatalf("stats = %+v", st) }

    clk.Advance(time.Millisecond)
    a.Feed(frag(1, 3, 0, 2, "c"))
    st := a.Stats()
    if st.Pending != 2 || st.Evicted != 1 || st.Buffered > budget { t.Fatalf("stats = %+v", st) }
    // session 1 was the least recently active and is gone
    if _, done, _ := a.Feed(frag(1, 1, 1, 2, "a")); done { t.Fatalf("evicted session completed") }
    if _, done, _ := a.Feed(frag(1, 3, 1, 2, "c")); !done { t.Fatalf("session 3 should complete") }
}

func TestDuplicateDoesNotDoubleCharge(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    a.Feed(frag(1, 1, 0, 2, "abcd"))
    a.Feed(frag(1, 1, 0, 2, "ab"))
    if st := a.Stats(); st.Buffered != 2+slotOverhead { t.Fatalf("buffered = %d", st.Buffered) }
    a.Feed(frag(1, 1, 1, 2, "cd"))
    if st := a.Stats(); st.Buffered != 0 { t.Fatalf("buffered after completion = %d", st.Buffered) }
}

func TestInterleavedSessions(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    a.Feed(frag(1, 1, 1, 2, "b1"))
    a.Feed(frag(2, 1, 0, 2, "a2"))
    a.Feed(frag(1, 2, 0, 2, "a3"))

    m, done, _ := a.Feed(frag(2, 1, 1, 2, "b2"))
    if !done || string(m.Payload) != "a2b2" || m.Origin != 2 { t.Fatalf("origin 2: %+v", m) }
    m, done, _ = a.Feed(frag(1, 1, 0, 2, "a1"))
    if !done || string(m.Payload) != "a1b1" || m.SessionID != 1 { t.Fatalf("origin 1 s1: %+v", m) }
    if a.Pending() != 1 { t.Fatalf("pending = %d", a.Pending()) }
}

func TestEvictOldestOverCapacity(t *testing.T) {
    a, clk := newTestAssembler(t, Options{MaxSessions: 2})
    a.Feed(frag(1, 1, 0, 2, "A"))
    clk.Advance(time.Millisecond)
    a.Feed(frag(1, 2, 0, 2, "B"))
    clk.Advance(time.Millisecond)
    // touch session 1 so that session 2 becomes the least recently active
    a.Feed(frag(1, 1, 0, 2, "A"))
    a.Feed(frag(1, 3, 0, 2, "C"))

    if a.Pending() != 2 { t.Fatalf("pending = %d", a.Pending()) }
    if a.Stats().Evicted != 1 { t.Fatalf("evicted = %d", a.Stats().Evicted) }

    if _, done, _ := a.Feed(frag(1, 1, 1, 2, "a")); !done { t.Fatalf("session 1 should survive") }
    // session 2 restarts from scratch
    if _, done, _ := a.Feed(frag(1, 2, 1, 2, "b")); done { t.Fatalf("evicted session must not complete") }
}

func TestIdleEviction(t *testing.T) {
    a, clk := newTestAssembler(t, Options{IdleTimeout: 10 * time.Second})
    a.Feed(frag(1, 1, 0, 2, "A"))
    clk.Advance(5 * time.Second)
    a.Feed(frag(2, 1, 0, 2, "B"))
    clk.Advance(6 * time.Second)

    if n := a.Sweep(clk.Now()); n != 1 { t.Fatalf("swept %d", n) }
    if a.Pending() != 1 { t.Fatalf("pending = %d", a.Pending()) }

    clk.Advance(time.Minute)
    // lazy eviction on Feed drops the other one too
    a.Feed(frag(3, 1, 0, 2, "C"))
    if a.Pending() != 1 || a.Stats().Evicted != 2 {
        t.Fatalf("pending=%d evicted=%d", a.Pending(), a.Stats().Evicted)
    }
}

func TestReset(t *testing.T) {
    a, _ := newTestAssembler(t, Options{})
    a.Feed(frag(1, 1, 0, 2, "A"))
    a.Feed(frag(2, 1, 0, 3, "B"))
    if n := a.Reset(); n != 2 { t.Fatalf("reset dropped %d", n) }
    if st := a.Stats(); st.Pending != 0 || st.Buffered != 0 { t.Fatalf("stats = %+v", st) }
}

func TestPermutationsCompleteOnce(t *testing.T) {
    rapid.Check(t, func(t *rapid.T) {
        payload := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(t, "payload")
        chunk := rapid.IntRange(1, 64).Draw(t, "chunk")

        frags, err := protocol.Split(protocol.Header{Origin: 4, SessionID: 42}, payload, chunk)
        if err != nil { t.Fatalf("split: %v", err) }
        order := rapid.Permutation(frags).Draw(t, "order")

        a := New(Options{})
        defer a.Close()
        completions := 0
        for i, env := range order {
            msg, done, err := a.Feed(env)
            if err != nil { t.Fatalf("feed %d: %v", i, err) }
            if !done { continue }
            completions++
            if i != len(order)-1 { t.Fatalf("completed after %d of %d feeds", i+1, len(order)) }
            if !bytes.Equal(msg.Payload, payload) { t.Fatalf("payload mismatch") }
        }
        if completions != 1 { t.Fatalf("completions = %d", completions) }

        replay := rapid.IntRange(0, len(order)-1).Draw(t, "replay")
        if _, done, _ := a.Feed(order[replay]); done { t.Fatalf("duplicate after completion re-emitted") }
    })
}

func TestDuplicatesNeverCompleteEarly(t *testing.T) {
    rapid.Check(t, func(t *rapid.T) {
        total := rapid.IntRange(2, 12).Draw(t, "total")
        a := New(Options{})
        defer a.Close()
        seen := map[int]bool{}
        feeds := rapid.SliceOfN(rapid.IntRange(0, total-1), 1, 60).Draw(t, "feeds")
        for _, idx := range feeds {
            _, done, err := a.Feed(frag(1, 1, uint32(idx), uint32(total), "x"))
            if err != nil { t.Fatalf("feed: %v", err) }
            seen[idx] = true
            if done && len(seen) != total { t.Fatalf("completed with %d of %d slots", len(seen), total) }
            if done { return }
        }
    })
}
