package wire

import (
	"bytes"
	"testing"

	"github.com/lloom-network/lloom/internal/protocol"
)

func TestRequestRoundTrip_UnsignedLlmRequest(t *testing.T) {
	req := protocol.NewLlmRequestMessage(protocol.LlmRequest{
		Model:           "gpt-3.5-turbo",
		Prompt:          "hello",
		ExecutorAddress: "0x0000000000000000000000000000000000dEaD",
		InboundPrice:    "500000000000000",
		OutboundPrice:   "1000000000000000",
		Nonce:           7,
		Deadline:        123,
	})

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Kind != protocol.KindLlmRequest {
		t.Fatalf("Kind = %v, want %v", got.Kind, protocol.KindLlmRequest)
	}
	if got.LlmRequest == nil || got.LlmRequest.Model != "gpt-3.5-turbo" {
		t.Fatalf("decoded payload mismatch: %+v", got.LlmRequest)
	}
}

func TestResponseRoundTrip_UnsignedLlmResponse(t *testing.T) {
	resp := protocol.NewLlmResponseMessage(protocol.LlmResponse{
		Content:        "ok",
		InboundTokens:  5,
		OutboundTokens: 5,
		TotalCost:      "7500000000000000",
		ModelUsed:      "gpt-3.5-turbo",
	})

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.LlmResponse == nil || got.LlmResponse.Content != "ok" {
		t.Fatalf("decoded payload mismatch: %+v", got.LlmResponse)
	}
}

func TestReadRequest_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	// Declare a frame far larger than MaxFrameSize without supplying the
	// body; ReadRequest must reject based on the length prefix alone.
	lenPrefix := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(lenPrefix)

	if _, err := ReadRequest(&buf); err == nil {
		t.Fatal("expected an error for an oversized declared frame length")
	}
}

func TestReadRequest_TruncatedStreamErrors(t *testing.T) {
	req := protocol.NewLlmRequestMessage(protocol.LlmRequest{Model: "m"})
	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	if _, err := ReadRequest(truncated); err == nil {
		t.Fatal("expected an error reading a truncated frame")
	}
}
