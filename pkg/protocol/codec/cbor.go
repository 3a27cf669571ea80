package codec

import (
    "fmt"

    cbor "github.com/fxamacker/cbor/v2"
)

// Bodies and stored records never come close to these limits; anything
// larger is treated as hostile input.
const (
    cborMaxItems  = 1 << 16
    cborMaxNested = 16
)

// CBORModes returns the encode/decode modes shared by the wire codec and
// the persistent record store: canonical encoding, duplicate map keys
// rejected on decode.
func CBORModes() (cbor.EncMode, cbor.DecMode, error) {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil { return nil, nil, fmt.Errorf("cbor enc mode: %w", err) }
    dm, err := cbor.DecOptions{
        DupMapKey:        cbor.DupMapKeyEnforcedAPF,
        MaxArrayElements: cborMaxItems,
        MaxMapPairs:      cborMaxItems,
        MaxNestedLevels:  cborMaxNested,
    }.DecMode()
    if err != nil { return nil, nil, fmt.Errorf("cbor dec mode: %w", err) }
    return em, dm, nil
}

type cborCodec struct {
    enc cbor.EncMode
    dec cbor.DecMode
}

// CBOR returns the deterministic CBOR codec. Struct fields fall back to
// their json tags when no cbor tag is present.
func CBOR() (Codec, error) {
    em, dm, err := CBORModes()
    if err != nil { return nil, err }
    return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

// Unmarshal rejects trailing bytes after the first data item.
func (c cborCodec) Unmarshal(data []byte, v any) error {
    rest, err := c.dec.UnmarshalFirst(data, v)
    if err != nil { return err }
    if len(rest) > 0 { return fmt.Errorf("cbor: %d trailing bytes", len(rest)) }
    return nil
}
