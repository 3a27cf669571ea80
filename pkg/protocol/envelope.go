package protocol

import (
    "crypto/rand"
    "encoding/binary"
    "fmt"
    "io"
)

// maxPayloadLen guards ReadFrom/DecodeFrame against absurd sizes.
const maxPayloadLen = 1 << 24

// Envelope is a header + payload wrapper for a single fragment transfer.
type Envelope struct {
    Header  Header
    Payload []byte
}

// NewSessionID returns a random non-zero session id.
func NewSessionID() (uint64, error) {
    var b [8]byte
    for {
        if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
            return 0, err
        }
        if id := binary.LittleEndian.Uint64(b[:]); id != 0 {
            return id, nil
        }
    }
}

// HasFlag checks whether a flag is set.
func (e *Envelope) HasFlag(flag uint32) bool { return (e.Header.Flags & flag) != 0 }

// SetFlag sets/unsets a flag.
func (e *Envelope) SetFlag(flag uint32, on bool) {
    if on {
        e.Header.Flags |= flag
    } else {
        e.Header.Flags &^= flag
    }
}

// Validate checks the fragment invariants: total >= 1 and index < total.
func (e *Envelope) Validate() error {
    if e.Header.FragTotal == 0 {
        return fmt.Errorf("fragment total is zero (origin=%d session=%d)", e.Header.Origin, e.Header.SessionID)
    }
    if e.Header.FragIndex >= e.Header.FragTotal {
        return fmt.Errorf("fragment index %d out of range for total %d (origin=%d session=%d)",
            e.Header.FragIndex, e.Header.FragTotal, e.Header.Origin, e.Header.SessionID)
    }
    return nil
}

// WriteTo writes header + payload to w.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
    e.Header.PayloadLen = uint32(len(e.Payload))
    hb, err := e.Header.MarshalBinary()
    if err != nil {
        return 0, err
    }
    n1, err := w.Write(hb)
    if err != nil {
        return int64(n1), err
    }
    n2, err := w.Write(e.Payload)
    return int64(n1 + n2), err
}

// ReadFrom reads header + payload from r.
func (e *Envelope) ReadFrom(r io.Reader) (int64, error) {
    hb := make([]byte, headerSize)
    if _, err := io.ReadFull(r, hb); err != nil {
        return 0, err
    }
    if err := e.Header.UnmarshalBinary(hb); err != nil {
        return 0, err
    }
    if e.Header.PayloadLen > 0 {
        if e.Header.PayloadLen > maxPayloadLen {
            return 0, fmt.Errorf("payload too large: %d", e.Header.PayloadLen)
        }
        e.Payload = make([]byte, int(e.Header.PayloadLen))
        if _, err := io.ReadFull(r, e.Payload); err != nil {
            return 0, err
        }
    } else {
        e.Payload = nil
    }
    return int64(headerSize + int(e.Header.PayloadLen)), nil
}

// EncodeFrame returns header+payload as a single byte slice.
func (e *Envelope) EncodeFrame() ([]byte, error) {
    e.Header.PayloadLen = uint32(len(e.Payload))
    hb, err := e.Header.MarshalBinary()
    if err != nil { return nil, err }
    out := make([]byte, headerSize+len(e.Payload))
    copy(out, hb)
    copy(out[headerSize:], e.Payload)
    return out, nil
}

// DecodeFrame parses a single frame from buf.
func (e *Envelope) DecodeFrame(buf []byte) error {
    if len(buf) < headerSize {
        return io.ErrUnexpectedEOF
    }
    if err := e.Header.UnmarshalBinary(buf[:headerSize]); err != nil {
        return err
    }
    need := int(e.Header.PayloadLen)
    if need > maxPayloadLen {
        return fmt.Errorf("payload too large: %d", need)
    }
    if headerSize+need > len(buf) {
        return io.ErrUnexpectedEOF
    }
    e.Payload = append(e.Payload[:0], buf[headerSize:headerSize+need]...)
    return nil
}

// Split cuts payload into chunk-sized fragments that all share h. An empty
// payload still yields a single (empty) fragment so that the receiver gets a
// complete message.
func Split(h Header, payload []byte, chunk int) ([]Envelope, error) {
    if chunk <= 0 {
        return nil, fmt.Errorf("invalid chunk size %d", chunk)
    }
    total := (len(payload) + chunk - 1) / chunk
    if total == 0 {
        total = 1
    }
    if uint64(total) > uint64(^uint32(0)) {
        return nil, fmt.Errorf("payload needs %d fragments", total)
    }
    out := make([]Envelope, 0, total)
    for i := 0; i < total; i++ {
        start := i * chunk
        end := start + chunk
        if end > len(payload) { end = len(payload) }
        ne := Envelope{Header: h}
        ne.Payload = append([]byte(nil), payload[start:end]...)
        ne.Header.PayloadLen = uint32(len(ne.Payload))
        ne.Header.FragIndex = uint32(i)
        ne.Header.FragTotal = uint32(total)
        ne.SetFlag(FlagFragment, total > 1)
        if i == total-1 { ne.Header.Flags |= FlagLastFrag }
        out = append(out, ne)
    }
    return out, nil
}
