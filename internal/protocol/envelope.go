package protocol

import "encoding/json"

// Kind discriminates the payload carried by a RequestMessage/ResponseMessage
// frame before it's fully decoded — the same "peek the tag, then parse"
// shape used for every tagged-union wire message in this stack.
type Kind string

const (
	KindLlmRequest             Kind = "llmRequest"
	KindSignedLlmRequest       Kind = "signedLlmRequest"
	KindModelAnnouncement      Kind = "modelAnnouncement"
	KindModelQuery             Kind = "modelQuery"
	KindModelUpdate            Kind = "modelUpdate"
	KindLlmResponse            Kind = "llmResponse"
	KindSignedLlmResponse      Kind = "signedLlmResponse"
	KindModelQueryResponse     Kind = "modelQueryResponse"
	KindAcknowledgmentResponse Kind = "acknowledgmentResponse"
)

// RequestMessage is the tagged union of every message a Client or Executor
// may send over the request/response stream protocol. Go has no
// enum-with-payload, so the discriminant lives in Kind and the typed
// payload lives behind whichever of the pointer fields is non-nil.
type RequestMessage struct {
	Kind               Kind                          `json:"kind" cbor:"kind"`
	LlmRequest         *LlmRequest                   `json:"llmRequest,omitempty" cbor:"llmRequest,omitempty"`
	SignedLlmRequest   *SignedMessage[LlmRequest]     `json:"signedLlmRequest,omitempty" cbor:"signedLlmRequest,omitempty"`
	ModelAnnouncement  *SignedMessage[ModelAnnouncement] `json:"modelAnnouncement,omitempty" cbor:"modelAnnouncement,omitempty"`
	ModelQuery         *SignedMessage[ModelQuery]     `json:"modelQuery,omitempty" cbor:"modelQuery,omitempty"`
	ModelUpdate        *SignedMessage[ModelUpdate]    `json:"modelUpdate,omitempty" cbor:"modelUpdate,omitempty"`
}

// ResponseMessage is the tagged union of every reply a Validator or
// Executor may send back over the same stream protocol.
type ResponseMessage struct {
	Kind                   Kind                               `json:"kind" cbor:"kind"`
	LlmResponse            *LlmResponse                       `json:"llmResponse,omitempty" cbor:"llmResponse,omitempty"`
	SignedLlmResponse      *SignedMessage[LlmResponse]        `json:"signedLlmResponse,omitempty" cbor:"signedLlmResponse,omitempty"`
	ModelQueryResponse     *SignedMessage[ModelQueryResponse] `json:"modelQueryResponse,omitempty" cbor:"modelQueryResponse,omitempty"`
	AcknowledgmentResponse *SignedMessage[AcknowledgmentResponse] `json:"acknowledgmentResponse,omitempty" cbor:"acknowledgmentResponse,omitempty"`
}

// SignedMessage wraps a payload with its signer, signature, and replay
// metadata. Canonical signing bytes are the deterministic JSON encoding
// of Payload — see internal/signing for the sign/verify contract.
type SignedMessage[T any] struct {
	Payload   T      `json:"payload" cbor:"payload"`
	Signer    string `json:"signer" cbor:"signer"`       // 0x-prefixed EVM address, EIP-55 checksummed hex
	Signature []byte `json:"signature" cbor:"signature"` // 65 bytes: r(32) || s(32) || recoveryId(1)
	Timestamp uint64 `json:"timestamp" cbor:"timestamp"` // unix seconds
	Nonce     *uint64 `json:"nonce,omitempty" cbor:"nonce,omitempty"`
}

// CanonicalBytes returns the deterministic JSON encoding of the payload
// that is hashed and signed/verified. Struct field order in Go's
// encoding/json is fixed by declaration order, so this is stable across
// signer and verifier without a custom canonicalizer.
func (m SignedMessage[T]) CanonicalBytes() ([]byte, error) {
	return json.Marshal(m.Payload)
}

// NewRequestMessage helpers build a tagged RequestMessage from a typed
// payload, keeping Kind and payload pointer in sync.

func NewLlmRequestMessage(r LlmRequest) RequestMessage {
	return RequestMessage{Kind: KindLlmRequest, LlmRequest: &r}
}

func NewSignedLlmRequestMessage(r SignedMessage[LlmRequest]) RequestMessage {
	return RequestMessage{Kind: KindSignedLlmRequest, SignedLlmRequest: &r}
}

func NewModelAnnouncementMessage(a SignedMessage[ModelAnnouncement]) RequestMessage {
	return RequestMessage{Kind: KindModelAnnouncement, ModelAnnouncement: &a}
}

func NewModelQueryMessage(q SignedMessage[ModelQuery]) RequestMessage {
	return RequestMessage{Kind: KindModelQuery, ModelQuery: &q}
}

func NewModelUpdateMessage(u SignedMessage[ModelUpdate]) RequestMessage {
	return RequestMessage{Kind: KindModelUpdate, ModelUpdate: &u}
}

func NewLlmResponseMessage(r LlmResponse) ResponseMessage {
	return ResponseMessage{Kind: KindLlmResponse, LlmResponse: &r}
}

func NewSignedLlmResponseMessage(r SignedMessage[LlmResponse]) ResponseMessage {
	return ResponseMessage{Kind: KindSignedLlmResponse, SignedLlmResponse: &r}
}

func NewModelQueryResponseMessage(r SignedMessage[ModelQueryResponse]) ResponseMessage {
	return ResponseMessage{Kind: KindModelQueryResponse, ModelQueryResponse: &r}
}

func NewAcknowledgmentResponseMessage(r SignedMessage[AcknowledgmentResponse]) ResponseMessage {
	return ResponseMessage{Kind: KindAcknowledgmentResponse, AcknowledgmentResponse: &r}
}
