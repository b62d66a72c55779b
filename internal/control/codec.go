// Package control implements a small admin/control-plane gRPC service for
// introspecting a running node (status, known executors, usage queue
// depth) without going through the libp2p wire protocol. It uses a
// hand-written CBOR codec instead of protobuf-generated stubs: gRPC's
// encoding.Codec interface is a first-class extension point, and this
// service's messages are already plain Go structs shared with the rest of
// the stack.
package control

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// codecName is registered with gRPC's content-subtype negotiation; every
// client and server in this module must dial/serve with this codec name
// so the content-type header matches what the other side expects.
const codecName = "cbor"

func init() {
	encoding.RegisterCodec(cborCodec{})
}

// cborCodec implements google.golang.org/grpc/encoding.Codec using
// fxamacker/cbor, the same wire encoding internal/wire already uses for
// the libp2p request/response frames.
type cborCodec struct{}

func (cborCodec) Name() string { return codecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("control: cbor marshal: %w", err)
	}
	return b, nil
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("control: cbor unmarshal: %w", err)
	}
	return nil
}
