package protocol

import (
    "encoding/binary"
    "errors"
)

// Fixed header layout (64 bytes) for fast parsing over any channel.
// All integer fields are little-endian.
//
//  0  ..1   Magic   'D''M' (0x444d)
//  2        Version u8
//  3        Type    u8
//  4  ..7   Flags   u32
//  8  ..11  PayloadLen u32
//  12 ..19  SessionID u64
//  20 ..27  Origin u64
//  28 ..35  Dest   u64
//  36 ..43  Hop    u64
//  44 ..47  FragIndex u32
//  48 ..51  FragTotal u32
//  52       HopLimit u8
//  53 ..63  Reserved
const (
    headerSize = 64
    magicWord  = uint16(0x444d) // 'D''M'
)

// HeaderSize is the encoded size of Header.
const HeaderSize = headerSize

var (
    errShortHeader = errors.New("short header")
    errBadMagic    = errors.New("bad magic")
)

// Header describes metadata for an envelope.
type Header struct {
    Version    uint8
    Type       uint8
    Flags      uint32
    PayloadLen uint32
    SessionID  uint64
    Origin     uint64 // node that created the message
    Dest       uint64 // node the message is addressed to
    Hop        uint64 // node that handed this fragment to us
    FragIndex  uint32
    FragTotal  uint32
    HopLimit   uint8
}

// Key returns the reassembly key of the header.
func (h *Header) Key() SessionKey { return SessionKey{Origin: h.Origin, SessionID: h.SessionID} }

// MarshalBinary encodes header to 64-byte buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
    buf := make([]byte, headerSize)
    binary.LittleEndian.PutUint16(buf[0:2], magicWord)
    buf[2] = h.Version
    buf[3] = h.Type
    binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
    binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLen)
    binary.LittleEndian.PutUint64(buf[12:20], h.SessionID)
    binary.LittleEndian.PutUint64(buf[20:28], h.Origin)
    binary.LittleEndian.PutUint64(buf[28:36], h.Dest)
    binary.LittleEndian.PutUint64(buf[36:44], h.Hop)
    binary.LittleEndian.PutUint32(buf[44:48], h.FragIndex)
    binary.LittleEndian.PutUint32(buf[48:52], h.FragTotal)
    buf[52] = h.HopLimit
    return buf, nil
}

// UnmarshalBinary decodes header from 64-byte buffer.
func (h *Header) UnmarshalBinary(buf []byte) error {
    if len(buf) < headerSize {
        return errShortHeader
    }
    if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
        return errBadMagic
    }
    h.Version = buf[2]
    h.Type = buf[3]
    h.Flags = binary.LittleEndian.Uint32(buf[4:8])
    h.PayloadLen = binary.LittleEndian.Uint32(buf[8:12])
    h.SessionID = binary.LittleEndian.Uint64(buf[12:20])
    h.Origin = binary.LittleEndian.Uint64(buf[20:28])
    h.Dest = binary.LittleEndian.Uint64(buf[28:36])
    h.Hop = binary.LittleEndian.Uint64(buf[36:44])
    h.FragIndex = binary.LittleEndian.Uint32(buf[44:48])
    h.FragTotal = binary.LittleEndian.Uint32(buf[48:52])
    h.HopLimit = buf[52]
    return nil
}
