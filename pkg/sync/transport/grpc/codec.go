package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName names the custom grpc codec this transport negotiates via
// grpc.CallContentSubtype. Sync messages stay JSON rather than
// protobuf, so this codec carries sync.Envelope JSON bytes over gRPC's
// framing, connection management, and flow control instead of a
// generated message type.
const codecName = "wlsync-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
