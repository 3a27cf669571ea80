package codec

import (
    "encoding/json"
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
// Content-Type: application/x-protobuf
//
// Values that are not proto.Message are carried as a google.protobuf.Struct
// built from their JSON form, so plain Go documents can use this codec too.
func Proto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{},
    }
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    if msg, ok := v.(proto.Message); ok {
        return p.mo.Marshal(msg)
    }
    s, err := toStruct(v)
    if err != nil {
        return nil, fmt.Errorf("protobuf: %T: %w", v, err)
    }
    return p.mo.Marshal(s)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    if msg, ok := v.(proto.Message); ok {
        return p.uo.Unmarshal(data, msg)
    }
    var s structpb.Struct
    if err := p.uo.Unmarshal(data, &s); err != nil {
        return err
    }
    jb, err := s.MarshalJSON()
    if err != nil {
        return fmt.Errorf("protobuf: struct to json: %w", err)
    }
    return json.Unmarshal(jb, v)
}

// toStruct converts a JSON-marshalable value into a Struct. Numbers pass
// through float64, so integers above 2^53 lose precision.
func toStruct(v any) (*structpb.Struct, error) {
    jb, err := json.Marshal(v)
    if err != nil { return nil, err }
    var m map[string]any
    if err := json.Unmarshal(jb, &m); err != nil {
        return nil, fmt.Errorf("value is not a JSON object: %w", err)
    }
    return structpb.NewStruct(m)
}
