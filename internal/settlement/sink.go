// Package settlement periodically batches completed UsageRecords off an
// executor's usage queue and submits them on-chain via recordUsage calls.
package settlement

import (
	"context"
	"time"

	"github.com/lloom-network/lloom/internal/protocol"
)

// AccountingSink submits one UsageRecord at a time as an on-chain
// recordUsage transaction. Settlement owns the batching, gas-safety
// chunking, and requeue-on-failure policy around it; the sink is only
// responsible for one record's transaction lifecycle.
type AccountingSink interface {
	// RecordUsage sends a recordUsage transaction for record with
	// gasPriceMultiplier applied to the network's suggested gas price, and
	// returns the transaction hash.
	RecordUsage(ctx context.Context, record protocol.UsageRecord, gasPriceMultiplier float64) (txHash string, err error)
	// WaitForReceipt blocks until the transaction is mined or timeout
	// elapses, whichever comes first.
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) error
}
