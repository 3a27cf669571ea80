package protocol

// Message types (fits in uint8)
const (
    MsgUnknown  uint8 = iota
    MsgRequest        // client -> directory server
    MsgResponse       // directory server -> client
)

// Flags bitmask (uint32)
const (
    FlagFragment uint32 = 1 << 0 // message was split into more than one fragment
    FlagLastFrag uint32 = 1 << 1 // highest index of the fragment set
    FlagRelayed  uint32 = 1 << 2 // fragment passed through at least one relay
)

// DefaultHopLimit bounds how many relays a fragment may traverse.
const DefaultHopLimit = 16

// ContentType is optional hint for payload decoding.
// Kept as constants to avoid coupling; not serialized in header.
const (
    ContentUnknown = "application/octet-stream"
    ContentCBOR    = "application/cbor"
    ContentJSON    = "application/json"
    ContentProto   = "application/x-protobuf"
)

// SessionKey identifies one logical message: the node that created it and
// the session id chosen by that node.
type SessionKey struct {
    Origin    uint64
    SessionID uint64
}
