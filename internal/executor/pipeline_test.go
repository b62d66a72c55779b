package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

type mockBackend struct {
	result GenerateResult
	err    error
}

func (m *mockBackend) Generate(_ context.Context, _ GenerateRequest) (GenerateResult, error) {
	return m.result, m.err
}

func newTestPipeline(t *testing.T, backend InferenceProvider, executorID *identity.Identity) *Pipeline {
	t.Helper()
	return New(Config{
		Identity:     executorID,
		Backend:      backend,
		ServedModels: []string{"m"},
		VerifyPolicy: signing.PermissiveVerification(),
		UsageQueue:   NewUsageQueue(),
	})
}

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func TestHandleSigned_HappyPath(t *testing.T) {
	executorID := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{result: GenerateResult{Content: "ok", InboundTokens: 5, OutboundTokens: 5, ModelUsed: "m"}}
	p := newTestPipeline(t, backend, executorID)

	req := protocol.LlmRequest{
		Model:           "m",
		Prompt:          "hi",
		ExecutorAddress: executorID.Address.Hex(),
		InboundPrice:    "500000000000000",
		OutboundPrice:   "1000000000000000",
		Nonce:           1,
	}
	now := time.Unix(1700000000, 0)
	signed, err := signing.Sign(clientID, req, nil, now)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	if resp.Payload.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Payload.Content)
	}
	if total := resp.Payload.InboundTokens + resp.Payload.OutboundTokens; total != 10 {
		t.Errorf("total tokens = %d, want 10", total)
	}
	if resp.Payload.TotalCost != "7500000000000000" {
		t.Errorf("total cost = %s, want 7500000000000000", resp.Payload.TotalCost)
	}
	if resp.Signer != executorID.Address.Hex() {
		t.Errorf("response signer = %s, want %s", resp.Signer, executorID.Address.Hex())
	}

	if p.usageQueue.Len() != 1 {
		t.Fatalf("usage queue len = %d, want 1", p.usageQueue.Len())
	}
	records := p.usageQueue.Drain(0)
	if records[0].ClientAddress != clientID.Address.Hex() {
		t.Errorf("usage record client = %s, want %s", records[0].ClientAddress, clientID.Address.Hex())
	}
	if records[0].TokenCount != 10 {
		t.Errorf("usage record tokens = %d, want 10", records[0].TokenCount)
	}
}

func TestHandleSigned_WrongExecutorRejected(t *testing.T) {
	executorID := mustIdentity(t)
	otherExecutor := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{result: GenerateResult{Content: "ok", InboundTokens: 1, OutboundTokens: 1}}
	p := newTestPipeline(t, backend, executorID)

	req := protocol.LlmRequest{
		Model:           "m",
		Prompt:          "hi",
		ExecutorAddress: otherExecutor.Address.Hex(),
		InboundPrice:    "1",
		OutboundPrice:   "1",
	}
	signed, _ := signing.Sign(clientID, req, nil, time.Unix(1700000000, 0))

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	if resp.Payload.Error == nil || *resp.Payload.Error != ErrWrongExecutor.Error() {
		t.Fatalf("response error = %v, want %q", resp.Payload.Error, ErrWrongExecutor.Error())
	}
}

func TestHandleSigned_UnknownModelRejected(t *testing.T) {
	executorID := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{result: GenerateResult{Content: "ok"}}
	p := newTestPipeline(t, backend, executorID)

	req := protocol.LlmRequest{
		Model:           "not-served",
		Prompt:          "hi",
		ExecutorAddress: executorID.Address.Hex(),
		InboundPrice:    "1",
		OutboundPrice:   "1",
	}
	signed, _ := signing.Sign(clientID, req, nil, time.Unix(1700000000, 0))

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	want := "unsupported model: " + ErrModelNotServed.Error()
	if resp.Payload.Error == nil || *resp.Payload.Error != want {
		t.Fatalf("response error = %v, want %q", resp.Payload.Error, want)
	}
}

func TestHandleSigned_ExpiredDeadlineRejected(t *testing.T) {
	executorID := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{result: GenerateResult{Content: "ok"}}
	p := newTestPipeline(t, backend, executorID)
	p.nowFunc = func() time.Time { return time.Unix(1700001000, 0) }

	req := protocol.LlmRequest{
		Model:           "m",
		Prompt:          "hi",
		ExecutorAddress: executorID.Address.Hex(),
		InboundPrice:    "1",
		OutboundPrice:   "1",
		Deadline:        1700000500,
	}
	signed, _ := signing.Sign(clientID, req, nil, time.Unix(1700000000, 0))

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	if resp.Payload.Error == nil || *resp.Payload.Error != ErrRequestExpired.Error() {
		t.Fatalf("response error = %v, want %q", resp.Payload.Error, ErrRequestExpired.Error())
	}
}

func TestHandleSigned_BadSignatureRejected(t *testing.T) {
	executorID := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{result: GenerateResult{Content: "ok"}}
	p := newTestPipeline(t, backend, executorID)

	req := protocol.LlmRequest{
		Model:           "m",
		ExecutorAddress: executorID.Address.Hex(),
		InboundPrice:    "1",
		OutboundPrice:   "1",
	}
	signed, _ := signing.Sign(clientID, req, nil, time.Unix(1700000000, 0))
	signed.Signature[0] ^= 0xFF

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	if resp.Payload.Error == nil || !strings.HasPrefix(*resp.Payload.Error, "signature invalid") {
		t.Fatalf("response error = %v, want a signature-invalid error for a tampered signature", resp.Payload.Error)
	}
}

func TestHandleSigned_BackendErrorPropagates(t *testing.T) {
	executorID := mustIdentity(t)
	clientID := mustIdentity(t)

	backend := &mockBackend{err: context.DeadlineExceeded}
	p := newTestPipeline(t, backend, executorID)

	req := protocol.LlmRequest{
		Model:           "m",
		ExecutorAddress: executorID.Address.Hex(),
		InboundPrice:    "1",
		OutboundPrice:   "1",
	}
	signed, _ := signing.Sign(clientID, req, nil, time.Unix(1700000000, 0))

	resp, err := p.HandleSigned(context.Background(), signed)
	if err != nil {
		t.Fatalf("HandleSigned: %v", err)
	}
	if resp.Payload.Error == nil || !strings.HasPrefix(*resp.Payload.Error, "backend error") {
		t.Fatalf("response error = %v, want the backend error to propagate", resp.Payload.Error)
	}
	if p.usageQueue.Len() != 0 {
		t.Errorf("usage queue len = %d, want 0 after a failed dispatch", p.usageQueue.Len())
	}
}
