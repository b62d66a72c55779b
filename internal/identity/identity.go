// Package identity derives a unified P2P + EVM identity from a single
// secp256k1 private key, and optionally keeps that key sealed in locked
// memory between uses.
package identity

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Identity binds one secp256k1 private key to both a libp2p NodeId and an
// EVM address. The private key itself is kept in a memguard Enclave and is
// only opened momentarily by Sign-adjacent callers in internal/signing —
// this type never exposes the raw key material directly.
type Identity struct {
	NodeID  peer.ID
	Address common.Address

	enclave *memguard.Enclave
}

// String intentionally reports only the public-facing fields, mirroring
// the reference implementation's identity Debug impl, which never prints
// key material.
func (id *Identity) String() string {
	return fmt.Sprintf("Identity{node_id: %s, evm_address: %s}", id.NodeID, id.Address.Hex())
}

// Generate creates a fresh random identity.
func Generate() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return fromECDSA(key)
}

// FromHex parses a hex-encoded secp256k1 private key (with or without a
// 0x prefix) and derives an Identity from it. Deterministic: the same key
// always yields the same NodeID and Address.
func FromHex(hexKey string) (*Identity, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode private key hex: %w", err)
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid private key: %w", err)
	}
	return fromECDSA(key)
}

// FromBytes derives an Identity from a raw 32-byte secp256k1 private key.
// The caller is responsible for zeroing their copy of keyBytes afterward.
func FromBytes(keyBytes []byte) (*Identity, error) {
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid private key: %w", err)
	}
	return fromECDSA(key)
}

func fromECDSA(key *ecdsa.PrivateKey) (*Identity, error) {
	keyBytes := crypto.FromECDSA(key)
	defer memguard.WipeBytes(keyBytes)

	p2pPriv, _, err := libp2pcrypto.KeyPairFromStdKey(key)
	if err != nil {
		return nil, fmt.Errorf("identity: derive libp2p keypair: %w", err)
	}
	pub := p2pPriv.GetPublic()
	nodeID, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: derive peer id: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)

	return &Identity{
		NodeID:  nodeID,
		Address: addr,
		enclave: memguard.NewEnclave(keyBytes),
	}, nil
}

// withKey opens the enclave for the duration of fn and wipes the buffer
// immediately after, regardless of fn's outcome.
func (id *Identity) withKey(fn func(*ecdsa.PrivateKey) error) error {
	buf, err := id.enclave.Open()
	if err != nil {
		return fmt.Errorf("identity: open key enclave: %w", err)
	}
	defer buf.Destroy()

	key, err := crypto.ToECDSA(buf.Bytes())
	if err != nil {
		return fmt.Errorf("identity: parse sealed private key: %w", err)
	}
	return fn(key)
}

// Sign hashes digest-ready bytes are the caller's job; Sign performs the
// raw ECDSA sign over a pre-computed 32-byte hash and returns the 65-byte
// r||s||v signature with the v byte left in go-ethereum's native 0/1 form.
// Callers needing the Ethereum on-chain convention adjust v themselves
// (see internal/signing, which does this explicitly for EIP-712 commitments).
func (id *Identity) Sign(hash [32]byte) ([]byte, error) {
	var sig []byte
	err := id.withKey(func(key *ecdsa.PrivateKey) error {
		s, err := crypto.Sign(hash[:], key)
		if err != nil {
			return err
		}
		sig = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: sign: %w", err)
	}
	return sig, nil
}

// SignTx signs an unsigned transaction for chainID, the EIP-155 on-chain
// signature convention (distinct from Sign's raw r||s||v used for the
// network's own SignedEnvelope contract) — used by internal/settlement to
// submit recordUsage calls under this identity's EVM address.
func (id *Identity) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	var signed *types.Transaction
	err := id.withKey(func(key *ecdsa.PrivateKey) error {
		s, err := types.SignTx(tx, signer, key)
		if err != nil {
			return err
		}
		signed = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: sign transaction: %w", err)
	}
	return signed, nil
}

// Libp2pPrivKey re-derives the libp2p private key from the sealed secp256k1
// key, for constructing a libp2p host (see internal/network.New). The
// returned key is ordinary libp2p key material, not sealed — callers
// should build the host immediately and let it go out of scope.
func (id *Identity) Libp2pPrivKey() (libp2pcrypto.PrivKey, error) {
	var priv libp2pcrypto.PrivKey
	err := id.withKey(func(key *ecdsa.PrivateKey) error {
		p2pPriv, _, err := libp2pcrypto.KeyPairFromStdKey(key)
		if err != nil {
			return err
		}
		priv = p2pPriv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: derive libp2p private key: %w", err)
	}
	return priv, nil
}

// PublicKeyBytes returns the uncompressed public key bytes without ever
// exposing the private key.
func (id *Identity) PublicKeyBytes() ([]byte, error) {
	var pub []byte
	err := id.withKey(func(key *ecdsa.PrivateKey) error {
		pub = crypto.FromECDSAPub(&key.PublicKey)
		return nil
	})
	return pub, err
}

// Destroy drops this Identity's reference to its sealed private key. The
// Identity must not be used afterward.
func (id *Identity) Destroy() {
	// memguard.Enclave has no explicit Destroy; dropping the reference and
	// letting the GC finalizer purge is the documented enclave lifecycle.
	// Destroy does not purge memguard's global session; cmd/*/main.go does
	// that on process shutdown with defer memguard.Purge().
	id.enclave = nil
}
