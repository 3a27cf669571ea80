package stream

import (
    "bytes"
    "errors"
    "io"
    "testing"

    "dirmesh/pkg/protocol"
)

func TestConnFramesRoundTrip(t *testing.T) {
    var buf bytes.Buffer
    c := New(&buf)
    h := protocol.Header{Version: 1, Type: protocol.MsgRequest, SessionID: 7, Origin: 1, Dest: 2, Hop: 1}
    frags, err := protocol.Split(h, []byte("hello stream framing"), 6)
    if err != nil { t.Fatalf("split: %v", err) }
    for i := range frags {
        if err := c.Send(&frags[i]); err != nil { t.Fatalf("send %d: %v", i, err) }
    }

    var got []byte
    for i := 0; i < len(frags); i++ {
        var e protocol.Envelope
        if err := c.Recv(&e); err != nil { t.Fatalf("recv %d: %v", i, err) }
        if e.Header.FragIndex != uint32(i) { t.Fatalf("frame %d index %d", i, e.Header.FragIndex) }
        got = append(got, e.Payload...)
    }
    if string(got) != "hello stream framing" { t.Fatalf("payload = %q", got) }

    var e protocol.Envelope
    if err := c.Recv(&e); !errors.Is(err, io.EOF) { t.Fatalf("want EOF, got %v", err) }

    cs := c.Counters()
    if cs.FramesOut != uint64(len(frags)) || cs.FramesIn != uint64(len(frags)) || cs.BytesOut != cs.BytesIn {
        t.Fatalf("counters = %+v", cs)
    }
}

func TestConnTruncatedFrame(t *testing.T) {
    var buf bytes.Buffer
    e := protocol.Envelope{Header: protocol.Header{FragTotal: 1}, Payload: []byte("abcdef")}
    if _, err := e.WriteTo(&buf); err != nil { t.Fatalf("write: %v", err) }
    c := New(bytes.NewBuffer(buf.Bytes()[:protocol.HeaderSize+2]))
    var out protocol.Envelope
    if err := c.Recv(&out); !errors.Is(err, io.ErrUnexpectedEOF) { t.Fatalf("want unexpected EOF, got %v", err) }
}

func TestSendAfterClose(t *testing.T) {
    c := New(&bytes.Buffer{})
    if err := c.Close(); err != nil { t.Fatalf("close: %v", err) }
    if err := c.Close(); err != nil { t.Fatalf("second close: %v", err) }
    if err := c.Send(&protocol.Envelope{}); !errors.Is(err, ErrConnClosed) { t.Fatalf("want ErrConnClosed, got %v", err) }
}
