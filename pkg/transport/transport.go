package transport

import (
    "errors"
    "strconv"

    "dirmesh/pkg/protocol"
)

// PeerID is the numeric identity of a node in the overlay. Zero means unset.
type PeerID uint64

func (p PeerID) String() string { return strconv.FormatUint(uint64(p), 10) }

// Kind identifies link type for logging.
type Kind int

const (
    KindUnknown Kind = iota
    KindMem
    KindStream
)

func (k Kind) String() string {
    switch k {
    case KindMem:
        return "mem"
    case KindStream:
        return "stream"
    default:
        return "unknown"
    }
}

var (
    // ErrLinkClosed is returned by Deliver once the link or its peer is gone.
    ErrLinkClosed = errors.New("link closed")
    // ErrLinkFull is returned by Deliver when the peer cannot accept more
    // fragments right now. Callers do not retry.
    ErrLinkFull = errors.New("link full")
)

// Link is the outbound delivery handle towards one direct neighbor.
type Link interface {
    // Deliver hands one fragment to the neighbor without blocking.
    Deliver(protocol.Envelope) error
    Kind() Kind
    Close() error
}
