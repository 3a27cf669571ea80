package webproto

import (
    "errors"
    "fmt"

    "dirmesh/pkg/protocol"
    "dirmesh/pkg/protocol/codec"
)

// ErrUnknownKind is returned when a document carries a kind tag that is not
// valid in its direction.
var ErrUnknownKind = errors.New("unknown message kind")

// doc is the flat tagged form of every message on the wire.
type doc struct {
    Kind      string   `json:"kind"`
    ID        string   `json:"id,omitempty"`
    Server    string   `json:"server,omitempty"`
    Summaries []string `json:"summaries,omitempty"`
    Data      []byte   `json:"data,omitempty"`
    Request   string   `json:"request,omitempty"`
    Reason    string   `json:"reason,omitempty"`
}

// Codec turns messages into reassembled payloads and back. Encoding uses
// the configured body format; decoding accepts any registered format.
type Codec struct {
    reg    *codec.Registry
    format protocol.Format
}

func NewCodec(reg *codec.Registry, f protocol.Format) *Codec { return &Codec{reg: reg, format: f} }

func (c *Codec) Format() protocol.Format { return c.format }

// Marshal encodes v (a record, typically) with the configured body format.
func (c *Codec) Marshal(v any) ([]byte, error) { return protocol.EncodeBody(c.reg, c.format, v) }

// Unmarshal decodes a payload produced by Marshal on any node.
func (c *Codec) Unmarshal(b []byte, v any) error {
    _, err := protocol.DecodeBody(c.reg, b, v)
    return err
}

func (c *Codec) EncodeRequest(r Request) ([]byte, error) {
    d := doc{Kind: r.Kind()}
    switch v := r.(type) {
    case ItemQuery:
        d.ID = v.ID
    case MediaQuery:
        d.ID = v.ID
    }
    return c.Marshal(d)
}

func (c *Codec) DecodeRequest(b []byte) (Request, error) {
    var d doc
    if err := c.Unmarshal(b, &d); err != nil { return nil, fmt.Errorf("decode request: %w", err) }
    switch d.Kind {
    case kindServerTypeQuery:
        return ServerTypeQuery{}, nil
    case kindTextListQuery:
        return TextListQuery{}, nil
    case kindMediaListQuery:
        return MediaListQuery{}, nil
    case kindItemQuery:
        return ItemQuery{ID: d.ID}, nil
    case kindMediaQuery:
        return MediaQuery{ID: d.ID}, nil
    default:
        return nil, fmt.Errorf("%w: request %q", ErrUnknownKind, d.Kind)
    }
}

func (c *Codec) EncodeResponse(r Response) ([]byte, error) {
    d := doc{Kind: r.Kind()}
    switch v := r.(type) {
    case ServerType:
        d.Server = string(v.Server)
    case ItemList:
        d.Summaries = v.Summaries
    case Item:
        d.Data = v.Data
    case ErrorNotFound:
        d.ID = v.ID
    case ErrorInvalidID:
        d.ID = v.ID
    case ErrorUnsupported:
        d.Request = v.Request
    case ErrorInternal:
        d.Reason = v.Reason
    }
    return c.Marshal(d)
}

func (c *Codec) DecodeResponse(b []byte) (Response, error) {
    var d doc
    if err := c.Unmarshal(b, &d); err != nil { return nil, fmt.Errorf("decode response: %w", err) }
    switch d.Kind {
    case kindServerType:
        return ServerType{Server: ServerKind(d.Server)}, nil
    case kindItemList:
        return ItemList{Summaries: d.Summaries}, nil
    case kindItem:
        return Item{Data: d.Data}, nil
    case kindErrNotFound:
        return ErrorNotFound{ID: d.ID}, nil
    case kindErrInvalidID:
        return ErrorInvalidID{ID: d.ID}, nil
    case kindErrUnsupported:
        return ErrorUnsupported{Request: d.Request}, nil
    case kindErrMalformed:
        return ErrorMalformedRequest{}, nil
    case kindErrInternal:
        return ErrorInternal{Reason: d.Reason}, nil
    default:
        return nil, fmt.Errorf("%w: response %q", ErrUnknownKind, d.Kind)
    }
}

// IsError reports whether r is one of the error responses.
func IsError(r Response) bool {
    switch r.(type) {
    case ErrorNotFound, ErrorInvalidID, ErrorUnsupported, ErrorMalformedRequest, ErrorInternal:
        return true
    }
    return false
}
