// Package kms wraps the subset of the AWS KMS SDK the network's identity
// loader needs: unwrapping a node's secp256k1 private key that was sealed
// with a customer-managed KMS key before it ever touched disk.
package kms

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/rs/zerolog/log"
)

// decryptTimeout bounds a single KMS round trip; a node that can't reach
// KMS within this window should fail startup rather than hang indefinitely
// on a dependency it cannot make progress without.
const decryptTimeout = 10 * time.Second

// EncryptionContext is the AAD the network's key-sealing tooling binds to
// every wrapped identity key. KMS rejects decryption if the caller's
// context doesn't match what was supplied at encrypt time, so this must
// agree with whatever sealed the key originally.
const EncryptionContext = "lloom-node-identity"

// Client wraps an AWS KMS client scoped to one region/endpoint.
type Client struct {
	kms *kms.Client
}

// New creates a Client. If localStackEndpoint is non-empty, the client
// targets that endpoint with static test credentials instead of the AWS
// default credential chain — for local development against LocalStack,
// never for a deployed node.
func New(ctx context.Context, region, localStackEndpoint string) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	if localStackEndpoint != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kms: load aws config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if localStackEndpoint != "" {
		kmsOpts = append(kmsOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(localStackEndpoint)
		})
		log.Warn().Str("endpoint", localStackEndpoint).Msg("kms: targeting a local endpoint, not AWS KMS")
	}

	return &Client{kms: kms.NewFromConfig(cfg, kmsOpts...)}, nil
}

// Decrypt unwraps ciphertext, a key sealed under EncryptionContext, and
// returns the plaintext private key material. The caller owns wiping the
// returned bytes once the key has been loaded into an Identity.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, decryptTimeout)
	defer cancel()

	out, err := c.kms.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
		EncryptionContext: map[string]string{
			"purpose": EncryptionContext,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kms: decrypt node identity key: %w", err)
	}
	return out.Plaintext, nil
}
