package signing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/lloom-network/lloom/internal/identity"
)

func TestSignRequestCommitment_RecoversToSigner(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	domain := DefaultDomain(big.NewInt(1), common.HexToAddress("0x00000000000000000000000000000000000abc"))
	commitment := RequestCommitment{
		RequestID:        common.BytesToHash([]byte("request-1")),
		ClientAddress:    id.Address,
		ExecutorAddress:  common.HexToAddress("0x0000000000000000000000000000000000dEaD"),
		ModelName:        "gpt-3.5-turbo",
		MaxTokens:        100,
		Temperature:      "0.7",
		PromptHash:       common.BytesToHash([]byte("prompt")),
		MaxPricePerToken: uint256.NewInt(1000000000000000),
		MaxTotalCost:     uint256.NewInt(100000000000000000),
		Timestamp:        1700000000,
		Nonce:            1,
	}

	sig, err := SignRequestCommitment(id, domain, commitment)
	if err != nil {
		t.Fatalf("SignRequestCommitment: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("v byte = %d, want 27 or 28 (ethereum convention)", sig[64])
	}

	d := digest(hashDomain(domain), hashRequestCommitment(commitment))
	recovered, err := VerifyCommitmentSignature(d, sig)
	if err != nil {
		t.Fatalf("VerifyCommitmentSignature: %v", err)
	}
	if recovered != id.Address {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), id.Address.Hex())
	}
}

func TestSignResponseCommitment_RecoversToSigner(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	domain := DefaultDomain(big.NewInt(1), common.HexToAddress("0x00000000000000000000000000000000000abc"))
	commitment := ResponseCommitment{
		RequestID:     common.BytesToHash([]byte("request-1")),
		ExecutorAddr:  id.Address,
		ResponseHash:  common.BytesToHash([]byte("response")),
		InputTokens:   5,
		OutputTokens:  5,
		TotalTokens:   10,
		PricePerToken: uint256.NewInt(1000000000000000),
		TotalCost:     uint256.NewInt(7500000000000000),
		Timestamp:     1700000000,
	}

	sig, err := SignResponseCommitment(id, domain, commitment)
	if err != nil {
		t.Fatalf("SignResponseCommitment: %v", err)
	}

	d := digest(hashDomain(domain), hashResponseCommitment(commitment))
	recovered, err := VerifyCommitmentSignature(d, sig)
	if err != nil {
		t.Fatalf("VerifyCommitmentSignature: %v", err)
	}
	if recovered != id.Address {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), id.Address.Hex())
	}
}

func TestDomainSeparator_DiffersByChainID(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000abc")
	d1 := hashDomain(DefaultDomain(big.NewInt(1), contract))
	d2 := hashDomain(DefaultDomain(big.NewInt(2), contract))
	if d1 == d2 {
		t.Error("domain separator should differ across chain ids")
	}
}
