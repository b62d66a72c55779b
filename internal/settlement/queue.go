package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/protocol"
)

// DefaultChunkSize caps how many recordUsage transactions Settler sends per
// gas-safety chunk within a drained batch.
const DefaultChunkSize = 10

// DefaultReceiptTimeout bounds how long Settler waits for a submitted
// transaction's receipt before giving up non-fatally and moving on.
const DefaultReceiptTimeout = 60 * time.Second

// UsageSource is the drain side of an executor's usage queue. Settlement
// depends on this narrow interface rather than *executor.UsageQueue
// directly, the same collaborator-interface split the rest of this stack
// uses to avoid an import cycle.
type UsageSource interface {
	Drain(max int) []protocol.UsageRecord
	Requeue(records []protocol.UsageRecord)
	Len() int
}

// SettlerConfig tunes Settler's batch size, gas-safety chunk size, gas
// price multiplier, and receipt-wait timeout. Zero values fall back to
// this package's defaults.
type SettlerConfig struct {
	MaxBatchSize       int
	ChunkSize          int
	GasPriceMultiplier float64
	ReceiptTimeout     time.Duration
}

// Settler periodically drains a UsageSource in MaxBatchSize-sized pulls,
// sub-chunks each pull to ChunkSize records for gas safety, and submits one
// recordUsage transaction per record within a chunk. When a send itself
// fails, the failing record and the rest of its chunk are requeued;
// a receipt-wait timeout is logged and otherwise ignored, since the
// transaction has already been broadcast.
type Settler struct {
	source UsageSource
	sink   AccountingSink
	cfg    SettlerConfig
}

// NewSettler creates a Settler, applying package defaults to any zero
// fields in cfg.
func NewSettler(source UsageSource, sink AccountingSink, cfg SettlerConfig) *Settler {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = protocol.MaxBatchSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.GasPriceMultiplier <= 0 {
		cfg.GasPriceMultiplier = 1
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	return &Settler{source: source, sink: sink, cfg: cfg}
}

// Run flushes batches on interval until ctx is cancelled, flushing once
// immediately and once more best-effort on shutdown so nothing queued is
// silently dropped.
func (s *Settler) Run(ctx context.Context, interval time.Duration) {
	s.flushAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flushAll(context.Background())
			return
		case <-ticker.C:
			s.flushAll(ctx)
		}
	}
}

// flushAll drains and submits every queued record, MaxBatchSize records at
// a pull, until the source is empty.
func (s *Settler) flushAll(ctx context.Context) {
	for s.source.Len() > 0 {
		batch := s.source.Drain(s.cfg.MaxBatchSize)
		if len(batch) == 0 {
			return
		}
		s.flushBatch(ctx, batch)
	}
}

func (s *Settler) flushBatch(ctx context.Context, batch []protocol.UsageRecord) {
	for start := 0; start < len(batch); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(batch) {
			end = len(batch)
		}
		s.submitChunk(ctx, batch[start:end])
	}
}

// submitChunk submits each record in chunk as its own recordUsage
// transaction. If sending a record fails outright, that record and every
// record after it in the chunk are requeued and the chunk is abandoned; a
// receipt-wait timeout is only logged, since the transaction is already on
// the network and resubmitting it would double-charge the client.
func (s *Settler) submitChunk(ctx context.Context, chunk []protocol.UsageRecord) {
	for i, record := range chunk {
		txHash, err := s.sink.RecordUsage(ctx, record, s.cfg.GasPriceMultiplier)
		if err != nil {
			log.Error().Err(err).Str("client", record.ClientAddress).Msg("settlement: record usage transaction failed, requeuing chunk remainder")
			s.source.Requeue(chunk[i:])
			return
		}

		if err := s.sink.WaitForReceipt(ctx, txHash, s.cfg.ReceiptTimeout); err != nil {
			log.Warn().Err(err).Str("tx", txHash).Msg("settlement: receipt wait timed out, not requeuing")
			continue
		}

		log.Info().Str("tx", txHash).Str("client", record.ClientAddress).Str("model", record.Model).Msg("settlement: usage recorded")
	}
}
