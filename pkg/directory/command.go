package directory

import (
    "errors"

    "dirmesh/pkg/content"
    "dirmesh/pkg/transport"
)

var (
    // ErrRoleMismatch answers an administrative command for the content
    // kind this server does not hold.
    ErrRoleMismatch = errors.New("command not supported by this server kind")
    // ErrInvalidID reports an administrative lookup with a malformed id.
    ErrInvalidID = errors.New("invalid content id")
    // ErrTerminated is returned by Run and by Control once the server stopped.
    ErrTerminated = errors.New("server terminated")
)

// Command is a control-plane message. The set of commands is closed.
//
// Reply channels are written without blocking: give them capacity 1 or
// be receiving when the command is handled.
type Command interface{ isCommand() }

// ListReply answers the listing commands.
type ListReply struct {
    Items []string
    Err   error
}

// ItemReply answers the lookup commands. Record is nil when not found.
type ItemReply struct {
    Record content.Record
    Err    error
}

type AddNeighbor struct {
    ID    transport.PeerID
    Link  transport.Link
    Reply chan<- error
}

type RemoveNeighbor struct {
    ID    transport.PeerID
    Reply chan<- bool
}

type Shutdown struct{}

// ListCachedItems lists the store regardless of its kind.
type ListCachedItems struct{ Reply chan<- ListReply }

// GetItem looks up an id regardless of the store kind.
type GetItem struct {
    ID    string
    Reply chan<- ItemReply
}

type ListTextItems struct{ Reply chan<- ListReply }

type GetTextItem struct {
    ID    string
    Reply chan<- ItemReply
}

type ListMediaItems struct{ Reply chan<- ListReply }

type GetMediaItem struct {
    ID    string
    Reply chan<- ItemReply
}

// InsertItem adds a record; it must match the server kind.
type InsertItem struct {
    Record content.Record
    Reply  chan<- error
}

type RemoveItem struct {
    ID    string
    Reply chan<- ItemReply
}

func (AddNeighbor) isCommand()     {}
func (RemoveNeighbor) isCommand()  {}
func (Shutdown) isCommand()        {}
func (ListCachedItems) isCommand() {}
func (GetItem) isCommand()         {}
func (ListTextItems) isCommand()   {}
func (GetTextItem) isCommand()     {}
func (ListMediaItems) isCommand()  {}
func (GetMediaItem) isCommand()    {}
func (InsertItem) isCommand()      {}
func (RemoveItem) isCommand()      {}

func reply[T any](ch chan<- T, v T) bool {
    if ch == nil { return true }
    select {
    case ch <- v:
        return true
    default:
        return false
    }
}
