// Package signing implements the SignedEnvelope sign/verify contract and
// EIP-712 typed-data commitment signing used across the network.
package signing

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
)

// Sentinel errors returned by Verify.
var (
	ErrBadSignatureLength = errors.New("signing: signature must be 65 bytes")
	ErrSignerMismatch     = errors.New("signing: recovered address does not match claimed signer")
	ErrMessageTooOld      = errors.New("signing: message timestamp outside the allowed age window")
	ErrMessageInFuture    = errors.New("signing: message timestamp is in the future")
	ErrReplayed           = errors.New("signing: (signer, nonce) pair already seen")
)

// VerificationConfig controls how strict timestamp/age checking is for
// Verify. The three named presets below mirror the ones the rest of the
// network pack exposes.
type VerificationConfig struct {
	// MaxAge is the maximum allowed age of a message's timestamp. A nil
	// value disables the age check entirely (Permissive).
	MaxAge *time.Duration
	// StrictTimestamp additionally rejects messages whose timestamp is in
	// the future (beyond a small clock-skew allowance).
	StrictTimestamp bool
	// ClockSkewAllowance bounds how far into the future a timestamp may be
	// before StrictTimestamp rejects it.
	ClockSkewAllowance time.Duration
}

// StrictVerification is the default policy: reject anything older than
// DefaultStrictMaxAge (1 hour) or stamped more than ClockSkewAllowance
// into the future.
func StrictVerification() VerificationConfig {
	maxAge := protocol.DefaultStrictMaxAge
	return VerificationConfig{MaxAge: &maxAge, StrictTimestamp: true, ClockSkewAllowance: protocol.ClockSkewAllowance}
}

// ReplayWindow builds a policy with a caller-supplied max age (typically
// protocol.MaxMessageAge for protocol messages), still rejecting future
// timestamps.
func ReplayWindow(maxAge time.Duration) VerificationConfig {
	return VerificationConfig{MaxAge: &maxAge, StrictTimestamp: true, ClockSkewAllowance: protocol.ClockSkewAllowance}
}

// PermissiveVerification skips every timestamp check — useful for
// integration tests and offline tooling, never for production traffic.
func PermissiveVerification() VerificationConfig {
	return VerificationConfig{MaxAge: nil, StrictTimestamp: false}
}

// Sign produces a SignedMessage[T] for payload, using id's key. The
// signature's final byte is the raw secp256k1 recovery id (0 or 1) — this
// generic envelope is verified entirely within this stack, so there is no
// need for the Ethereum ecrecover v-convention here (contrast
// internal/signing's EIP-712 commitment path, which does use it).
func Sign[T any](id *identity.Identity, payload T, nonce *uint64, now time.Time) (protocol.SignedMessage[T], error) {
	msg := protocol.SignedMessage[T]{
		Payload:   payload,
		Signer:    id.Address.Hex(),
		Timestamp: uint64(now.Unix()),
		Nonce:     nonce,
	}

	canonical, err := msg.CanonicalBytes()
	if err != nil {
		return msg, fmt.Errorf("signing: canonicalize payload: %w", err)
	}
	digest := crypto.Keccak256Hash(canonical)

	var hash [32]byte
	copy(hash[:], digest.Bytes())

	sig, err := id.Sign(hash)
	if err != nil {
		return msg, fmt.Errorf("signing: sign envelope: %w", err)
	}
	msg.Signature = sig
	return msg, nil
}

// Verify checks a SignedMessage's signature against its claimed signer and
// applies the given timestamp policy. It does not consult a replay cache —
// callers that need replay protection for nonce-carrying messages should
// additionally check internal/noncecache (see SPEC_FULL.md §6.10).
func Verify[T any](msg protocol.SignedMessage[T], cfg VerificationConfig, now time.Time) error {
	if len(msg.Signature) != 65 {
		return ErrBadSignatureLength
	}

	canonical, err := msg.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("signing: canonicalize payload: %w", err)
	}
	digest := crypto.Keccak256Hash(canonical)

	pub, err := crypto.SigToPub(digest.Bytes(), msg.Signature)
	if err != nil {
		return fmt.Errorf("signing: recover public key: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)

	claimed := common.HexToAddress(msg.Signer)
	if recovered != claimed {
		return ErrSignerMismatch
	}

	if cfg.MaxAge != nil {
		ts := time.Unix(int64(msg.Timestamp), 0)
		age := now.Sub(ts)
		if age > *cfg.MaxAge {
			return ErrMessageTooOld
		}
		if cfg.StrictTimestamp && ts.After(now.Add(cfg.ClockSkewAllowance)) {
			return ErrMessageInFuture
		}
	}

	return nil
}

// RecoverSigner recovers the signer address without validating that it
// matches msg.Signer, for callers that want "whoever actually signed this"
// semantics (e.g. crediting a UsageRecord to the recovered signer).
func RecoverSigner[T any](msg protocol.SignedMessage[T]) (common.Address, error) {
	if len(msg.Signature) != 65 {
		return common.Address{}, ErrBadSignatureLength
	}
	canonical, err := msg.CanonicalBytes()
	if err != nil {
		return common.Address{}, fmt.Errorf("signing: canonicalize payload: %w", err)
	}
	digest := crypto.Keccak256Hash(canonical)
	pub, err := crypto.SigToPub(digest.Bytes(), msg.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("signing: recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
