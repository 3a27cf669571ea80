package main

import (
    "bytes"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "dirmesh/pkg/protocol"
)

func TestWriteFrames(t *testing.T) {
    dir := t.TempDir()
    var out bytes.Buffer
    payload := []byte("0123456789abcdefXYZ")
    if err := writeFrames(&out, dir, payload, 8); err != nil { t.Fatalf("write: %v", err) }

    var got []byte
    for i := 0; i < 3; i++ {
        b, err := os.ReadFile(filepath.Join(dir, "frame_0"+string(rune('0'+i))+".bin"))
        if err != nil { t.Fatalf("read frame %d: %v", i, err) }
        var e protocol.Envelope
        if err := e.DecodeFrame(b); err != nil { t.Fatalf("decode frame %d: %v", i, err) }
        if e.Header.FragIndex != uint32(i) || e.Header.FragTotal != 3 { t.Fatalf("frame %d header %+v", i, e.Header) }
        got = append(got, e.Payload...)
    }
    if !bytes.Equal(got, payload) { t.Fatalf("payload = %q", got) }
    if !strings.Contains(out.String(), "3 frames") { t.Fatalf("summary missing: %s", out.String()) }
}

func TestShortHex(t *testing.T) {
    if got := shortHex([]byte{0xde, 0xad, 0xbe, 0xef, 1}, 4); got != "dead beef ..." {
        t.Fatalf("shortHex = %q", got)
    }
}
