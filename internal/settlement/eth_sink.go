package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
)

// recordUsageABI is the settlement contract's recordUsage(address,string,uint256)
// function, hand-packed without abigen since it's the only call this node
// ever makes.
const recordUsageABI = `[{"inputs":[{"internalType":"address","name":"client","type":"address"},{"internalType":"string","name":"model","type":"string"},{"internalType":"uint256","name":"tokenCount","type":"uint256"}],"name":"recordUsage","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// EthSink is the AccountingSink implementation used in production: it
// submits each UsageRecord as its own recordUsage transaction against the
// network's settlement contract, signed by the executor's identity.
type EthSink struct {
	client   *ethclient.Client
	contract common.Address
	id       *identity.Identity
	chainID  *big.Int
	abi      abi.ABI
}

// NewEthSink dials rpcURL and prepares an EthSink that signs transactions
// with id and sends them to contractAddress.
func NewEthSink(ctx context.Context, rpcURL, contractAddress string, id *identity.Identity) (*EthSink, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("settlement: dial rpc %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement: fetch chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(recordUsageABI))
	if err != nil {
		return nil, fmt.Errorf("settlement: parse recordUsage abi: %w", err)
	}

	return &EthSink{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		id:       id,
		chainID:  chainID,
		abi:      parsed,
	}, nil
}

// RecordUsage implements AccountingSink.
func (s *EthSink) RecordUsage(ctx context.Context, record protocol.UsageRecord, gasPriceMultiplier float64) (string, error) {
	tokenCount := new(big.Int).SetUint64(uint64(record.TokenCount))
	data, err := s.abi.Pack("recordUsage", common.HexToAddress(record.ClientAddress), record.Model, tokenCount)
	if err != nil {
		return "", fmt.Errorf("settlement: pack recordUsage call: %w", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.id.Address)
	if err != nil {
		return "", fmt.Errorf("settlement: fetch nonce: %w", err)
	}

	suggested, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("settlement: suggest gas price: %w", err)
	}
	gasPrice := applyGasMultiplier(suggested, gasPriceMultiplier)

	contract := s.contract
	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.id.Address,
		To:       &contract,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("settlement: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := s.id.SignTx(tx, s.chainID)
	if err != nil {
		return "", fmt.Errorf("settlement: sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("settlement: send transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// WaitForReceipt implements AccountingSink, polling until the transaction
// is mined, timeout elapses, or ctx is cancelled.
func (s *EthSink) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) error {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(deadline, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("settlement: transaction %s reverted", txHash)
			}
			return nil
		}

		select {
		case <-deadline.Done():
			return fmt.Errorf("settlement: wait for receipt of %s: %w", txHash, deadline.Err())
		case <-ticker.C:
		}
	}
}

func applyGasMultiplier(price *big.Int, multiplier float64) *big.Int {
	if multiplier <= 0 {
		multiplier = 1
	}
	scaled := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier))
	result, _ := scaled.Int(nil)
	return result
}
