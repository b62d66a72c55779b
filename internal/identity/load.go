package identity

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/lloom-network/lloom/internal/kms"
)

// KMSDecrypter is the subset of *kms.Client load needs, kept as an
// interface so tests can substitute a fake without touching AWS.
type KMSDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Load resolves a node's identity the way its config section specifies:
// a raw hex private key for local development, or a KMS-encrypted key
// (base64 ciphertext in privateKeyHex, decrypted via kmsKeyID's client)
// in production. Exactly one of the two sourcing modes is used per call.
func Load(ctx context.Context, privateKeyHex, kmsKeyID, awsRegion, localStackEndpoint string) (*Identity, error) {
	if kmsKeyID == "" {
		if privateKeyHex == "" {
			return nil, fmt.Errorf("identity: no private key configured (set identity.private_key_hex or identity.private_key_kms_key_id)")
		}
		return FromHex(privateKeyHex)
	}

	client, err := kms.New(ctx, awsRegion, localStackEndpoint)
	if err != nil {
		return nil, fmt.Errorf("identity: create kms client: %w", err)
	}
	return loadViaKMS(ctx, client, privateKeyHex)
}

func loadViaKMS(ctx context.Context, client KMSDecrypter, ciphertextB64 string) (*Identity, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextB64))
	if err != nil {
		return nil, fmt.Errorf("identity: decode kms ciphertext: %w", err)
	}

	plaintext, err := client.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("identity: kms decrypt private key: %w", err)
	}
	defer memguard.WipeBytes(plaintext)

	keyHex := strings.TrimSpace(string(plaintext))
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		// Plaintext may already be raw key bytes rather than hex text.
		keyBytes = plaintext
	}
	defer memguard.WipeBytes(keyBytes)

	return FromBytes(keyBytes)
}
