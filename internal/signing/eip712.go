package signing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/lloom-network/lloom/internal/identity"
)

// EIP-712 type hashes, precomputed once at package init the way the
// teacher's session manager precomputes its domain/order type hashes.
var (
	// keccak256("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// keccak256("LlmRequestCommitment(bytes32 requestId,address clientAddress,address executorAddress,string modelName,uint32 maxTokens,string temperature,bytes32 promptHash,uint256 maxPricePerToken,uint256 maxTotalCost,uint64 timestamp,uint64 nonce)")
	requestCommitmentTypeHash = crypto.Keccak256Hash([]byte(
		"LlmRequestCommitment(bytes32 requestId,address clientAddress,address executorAddress,string modelName,uint32 maxTokens,string temperature,bytes32 promptHash,uint256 maxPricePerToken,uint256 maxTotalCost,uint64 timestamp,uint64 nonce)",
	))

	// keccak256("LlmResponseCommitment(bytes32 requestId,address executorAddress,bytes32 responseHash,uint32 inputTokens,uint32 outputTokens,uint32 totalTokens,uint256 pricePerToken,uint256 totalCost,uint64 timestamp)")
	responseCommitmentTypeHash = crypto.Keccak256Hash([]byte(
		"LlmResponseCommitment(bytes32 requestId,address executorAddress,bytes32 responseHash,uint32 inputTokens,uint32 outputTokens,uint32 totalTokens,uint256 pricePerToken,uint256 totalCost,uint64 timestamp)",
	))
)

// Domain is the EIP-712 domain separator for the network.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the network's canonical EIP-712 domain for the
// given chain and verifying contract.
func DefaultDomain(chainID *big.Int, verifyingContract common.Address) Domain {
	return Domain{
		Name:              "Lloom Network",
		Version:           "1.0.0",
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

func hashDomain(d Domain) common.Hash {
	return crypto.Keccak256Hash(
		eip712DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		common.LeftPadBytes(d.ChainID.Bytes(), 32),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

func digest(domainHash, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainHash.Bytes(), structHash.Bytes())
}

// RequestCommitment is the EIP-712 typed struct a Client commits to when
// issuing an LlmRequest, independently verifiable on-chain.
type RequestCommitment struct {
	RequestID        common.Hash
	ClientAddress    common.Address
	ExecutorAddress  common.Address
	ModelName        string
	MaxTokens        uint32
	Temperature      string
	PromptHash       common.Hash
	MaxPricePerToken *uint256.Int
	MaxTotalCost     *uint256.Int
	Timestamp        uint64
	Nonce            uint64
}

func hashRequestCommitment(c RequestCommitment) common.Hash {
	return crypto.Keccak256Hash(
		requestCommitmentTypeHash.Bytes(),
		c.RequestID.Bytes(),
		common.LeftPadBytes(c.ClientAddress.Bytes(), 32),
		common.LeftPadBytes(c.ExecutorAddress.Bytes(), 32),
		crypto.Keccak256([]byte(c.ModelName)),
		common.LeftPadBytes(big.NewInt(int64(c.MaxTokens)).Bytes(), 32),
		crypto.Keccak256([]byte(c.Temperature)),
		c.PromptHash.Bytes(),
		common.LeftPadBytes(c.MaxPricePerToken.ToBig().Bytes(), 32),
		common.LeftPadBytes(c.MaxTotalCost.ToBig().Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(c.Timestamp).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(c.Nonce).Bytes(), 32),
	)
}

// ResponseCommitment is the EIP-712 typed struct an Executor commits to
// when returning an LlmResponse.
type ResponseCommitment struct {
	RequestID     common.Hash
	ExecutorAddr  common.Address
	ResponseHash  common.Hash
	InputTokens   uint32
	OutputTokens  uint32
	TotalTokens   uint32
	PricePerToken *uint256.Int
	TotalCost     *uint256.Int
	Timestamp     uint64
}

func hashResponseCommitment(c ResponseCommitment) common.Hash {
	return crypto.Keccak256Hash(
		responseCommitmentTypeHash.Bytes(),
		c.RequestID.Bytes(),
		common.LeftPadBytes(c.ExecutorAddr.Bytes(), 32),
		c.ResponseHash.Bytes(),
		common.LeftPadBytes(big.NewInt(int64(c.InputTokens)).Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(c.OutputTokens)).Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(c.TotalTokens)).Bytes(), 32),
		common.LeftPadBytes(c.PricePerToken.ToBig().Bytes(), 32),
		common.LeftPadBytes(c.TotalCost.ToBig().Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(c.Timestamp).Bytes(), 32),
	)
}

// SignRequestCommitment signs an EIP-712 RequestCommitment, returning a
// 65-byte signature using the Ethereum v-convention (27/28) so the
// signature verifies against the standard ecrecover precompile on-chain.
func SignRequestCommitment(id *identity.Identity, domain Domain, c RequestCommitment) ([]byte, error) {
	d := digest(hashDomain(domain), hashRequestCommitment(c))
	return signEthereumConvention(id, d)
}

// SignResponseCommitment signs an EIP-712 ResponseCommitment with the same
// Ethereum v-convention.
func SignResponseCommitment(id *identity.Identity, domain Domain, c ResponseCommitment) ([]byte, error) {
	d := digest(hashDomain(domain), hashResponseCommitment(c))
	return signEthereumConvention(id, d)
}

func signEthereumConvention(id *identity.Identity, d common.Hash) ([]byte, error) {
	var hash [32]byte
	copy(hash[:], d.Bytes())
	sig, err := id.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("signing: eip712 sign: %w", err)
	}
	// go-ethereum's crypto.Sign returns v in {0,1}; on-chain ecrecover
	// expects {27,28}.
	sig[64] += 27
	return sig, nil
}

// VerifyCommitmentSignature recovers the signer of an Ethereum-convention
// (v in {27,28}) EIP-712 signature over the given digest.
func VerifyCommitmentSignature(d common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrBadSignatureLength
	}
	adjusted := make([]byte, 65)
	copy(adjusted, sig)
	if adjusted[64] >= 27 {
		adjusted[64] -= 27
	}
	pub, err := crypto.SigToPub(d.Bytes(), adjusted)
	if err != nil {
		return common.Address{}, fmt.Errorf("signing: recover eip712 signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
