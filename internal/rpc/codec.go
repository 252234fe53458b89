package rpc

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC codec name this module forces on every call and
// registers server-side, so no protoc-generated proto.Message stub is ever
// required (spec.md treats the RPC transport as out of scope, "an abstract
// request/response channel" — this is the concrete choice that satisfies
// it without a code generator in the loop).
const codecName = "gkfs-msgpack"

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}
