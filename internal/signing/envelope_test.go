package signing

import (
	"testing"
	"time"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func sampleRequest() protocol.LlmRequest {
	return protocol.LlmRequest{
		Model:           "gpt-3.5-turbo",
		Prompt:          "hello",
		ExecutorAddress: "0x0000000000000000000000000000000000000001",
		InboundPrice:    "500000000000000",
		OutboundPrice:   "1000000000000000",
		Nonce:           1,
		Deadline:        9999999999,
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	id := mustIdentity(t)
	now := time.Unix(1700000000, 0)

	nonce := uint64(42)
	signed, err := Sign(id, sampleRequest(), &nonce, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(signed, StrictVerification(), now.Add(time.Second)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_TamperedPayloadFails(t *testing.T) {
	id := mustIdentity(t)
	now := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signed.Payload.Prompt = "tampered"

	if err := Verify(signed, PermissiveVerification(), now); err == nil {
		t.Fatal("expected verification to fail after tampering with payload")
	}
}

func TestVerify_TamperedSignerFails(t *testing.T) {
	id := mustIdentity(t)
	now := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signed.Signer = "0x000000000000000000000000000000000000ff"

	if err := Verify(signed, PermissiveVerification(), now); err != ErrSignerMismatch {
		t.Fatalf("err = %v, want ErrSignerMismatch", err)
	}
}

func TestVerify_TamperedSignatureFails(t *testing.T) {
	id := mustIdentity(t)
	now := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	signed.Signature[0] ^= 0xFF

	if err := Verify(signed, PermissiveVerification(), now); err == nil {
		t.Fatal("expected verification to fail after tampering with signature")
	}
}

func TestStrictVerification_RejectsStaleMessage(t *testing.T) {
	id := mustIdentity(t)
	signedAt := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, signedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	later := signedAt.Add(2 * time.Hour)
	if err := Verify(signed, StrictVerification(), later); err != ErrMessageTooOld {
		t.Fatalf("err = %v, want ErrMessageTooOld", err)
	}
}

func TestStrictVerification_RejectsFutureMessage(t *testing.T) {
	id := mustIdentity(t)
	signedAt := time.Unix(1700001000, 0)

	signed, err := Sign(id, sampleRequest(), nil, signedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	earlier := signedAt.Add(-10 * time.Minute)
	if err := Verify(signed, StrictVerification(), earlier); err != ErrMessageInFuture {
		t.Fatalf("err = %v, want ErrMessageInFuture", err)
	}
}

func TestReplayWindow_CustomMaxAge(t *testing.T) {
	id := mustIdentity(t)
	signedAt := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, signedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	cfg := ReplayWindow(time.Hour)
	if err := Verify(signed, cfg, signedAt.Add(30*time.Minute)); err != nil {
		t.Fatalf("Verify within window: %v", err)
	}
	if err := Verify(signed, cfg, signedAt.Add(2*time.Hour)); err != ErrMessageTooOld {
		t.Fatalf("err = %v, want ErrMessageTooOld outside window", err)
	}
}

func TestPermissiveVerification_IgnoresAge(t *testing.T) {
	id := mustIdentity(t)
	signedAt := time.Unix(1, 0)

	signed, err := Sign(id, sampleRequest(), nil, signedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(signed, PermissiveVerification(), time.Now()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRecoverSigner_MatchesClaimedSigner(t *testing.T) {
	id := mustIdentity(t)
	now := time.Unix(1700000000, 0)

	signed, err := Sign(id, sampleRequest(), nil, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recovered, err := RecoverSigner(signed)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if recovered != id.Address {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), id.Address.Hex())
	}
}
