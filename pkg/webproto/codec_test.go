package webproto

import (
    "errors"
    "reflect"
    "testing"

    "dirmesh/pkg/protocol"
    "dirmesh/pkg/protocol/codec"
)

func codecs(t *testing.T) map[string]*Codec {
    t.Helper()
    reg, err := codec.Default()
    if err != nil { t.Fatalf("registry: %v", err) }
    return map[string]*Codec{
        "json":  NewCodec(reg, protocol.FormatJSON),
        "cbor":  NewCodec(reg, protocol.FormatCBOR),
        "proto": NewCodec(reg, protocol.FormatProto),
    }
}

func TestRequestsRoundTrip(t *testing.T) {
    reqs := []Request{
        ServerTypeQuery{}, TextListQuery{}, MediaListQuery{},
        ItemQuery{ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, MediaQuery{ID: "not-a-uuid"},
    }
    for name, c := range codecs(t) {
        for _, r := range reqs {
            b, err := c.EncodeRequest(r)
            if err != nil { t.Fatalf("%s encode %T: %v", name, r, err) }
            got, err := c.DecodeRequest(b)
            if err != nil { t.Fatalf("%s decode %T: %v", name, r, err) }
            if !reflect.DeepEqual(got, r) { t.Fatalf("%s: got %#v want %#v", name, got, r) }
        }
    }
}

func TestResponsesRoundTrip(t *testing.T) {
    resps := []Response{
        ServerType{Server: ServerMedia},
        ItemList{Summaries: []string{"a:one", "b:two"}},
        Item{Data: []byte{0, 1, 2, 0xff}},
        ErrorNotFound{ID: "x"},
        ErrorInvalidID{ID: "y"},
        ErrorUnsupported{Request: kindMediaQuery},
        ErrorMalformedRequest{},
        ErrorInternal{Reason: "boom"},
    }
    for name, c := range codecs(t) {
        for _, r := range resps {
            b, err := c.EncodeResponse(r)
            if err != nil { t.Fatalf("%s encode %T: %v", name, r, err) }
            got, err := c.DecodeResponse(b)
            if err != nil { t.Fatalf("%s decode %T: %v", name, r, err) }
            if !reflect.DeepEqual(got, r) { t.Fatalf("%s: got %#v want %#v", name, got, r) }
        }
    }
}

func TestDecodeAcceptsAnyFormat(t *testing.T) {
    cs := codecs(t)
    b, err := cs["cbor"].EncodeRequest(ItemQuery{ID: "abc"})
    if err != nil { t.Fatalf("encode: %v", err) }
    got, err := cs["json"].DecodeRequest(b)
    if err != nil || got != (ItemQuery{ID: "abc"}) { t.Fatalf("got %#v err %v", got, err) }
}

func TestDecodeRejectsWrongDirection(t *testing.T) {
    c := codecs(t)["json"]
    b, _ := c.EncodeResponse(ServerType{Server: ServerText})
    if _, err := c.DecodeRequest(b); !errors.Is(err, ErrUnknownKind) { t.Fatalf("expected unknown kind, got %v", err) }
    if _, err := c.DecodeRequest([]byte{byte(protocol.FormatJSON), '{'}); err == nil { t.Fatalf("expected decode error") }
    if _, err := c.DecodeRequest(nil); err == nil { t.Fatalf("expected error for empty payload") }
}

func TestIsError(t *testing.T) {
    if IsError(ItemList{}) || !IsError(ErrorMalformedRequest{}) { t.Fatalf("IsError misclassifies") }
}
