package identity

import "testing"

const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testEVMAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestFromHex_Deterministic(t *testing.T) {
	id1, err := FromHex(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	id2, err := FromHex(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}

	if id1.NodeID != id2.NodeID {
		t.Errorf("node id not deterministic: %s vs %s", id1.NodeID, id2.NodeID)
	}
	if id1.Address != id2.Address {
		t.Errorf("evm address not deterministic: %s vs %s", id1.Address.Hex(), id2.Address.Hex())
	}
}

func TestFromHex_KnownVector(t *testing.T) {
	id, err := FromHex(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if id.Address.Hex() != testEVMAddress {
		t.Errorf("evm address = %s, want %s", id.Address.Hex(), testEVMAddress)
	}
	if id.NodeID.String() == "" {
		t.Errorf("expected a non-empty derived node id")
	}
}

func TestFromHex_AcceptsHexPrefix(t *testing.T) {
	id, err := FromHex("0x" + testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if id.Address.Hex() != testEVMAddress {
		t.Errorf("evm address = %s, want %s", id.Address.Hex(), testEVMAddress)
	}
}

func TestGenerate_Unique(t *testing.T) {
	id1, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id2, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id1.Address == id2.Address {
		t.Errorf("two generated identities produced the same address")
	}
	if id1.NodeID == id2.NodeID {
		t.Errorf("two generated identities produced the same node id")
	}
}

func TestString_NeverLeaksKeyMaterial(t *testing.T) {
	id, err := FromHex(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	s := id.String()
	if s == "" {
		t.Fatal("expected non-empty string representation")
	}
	// Only public fields should ever appear.
	if len(s) > 0 {
		for _, forbidden := range []string{testPrivateKeyHex} {
			if contains(s, forbidden) {
				t.Errorf("String() leaked private key material: %s", s)
			}
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestSign_ProducesRecoverableSignature(t *testing.T) {
	id, err := FromHex(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	var hash [32]byte
	copy(hash[:], []byte("0123456789abcdef0123456789abcdef"))

	sig, err := id.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
}
