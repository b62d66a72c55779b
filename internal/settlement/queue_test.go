package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lloom-network/lloom/internal/protocol"
)

// memSource is a minimal in-test UsageSource, independent of the executor
// package's UsageQueue, to keep this package's tests free of a dependency
// cycle risk.
type memSource struct {
	mu      sync.Mutex
	records []protocol.UsageRecord
}

func (s *memSource) push(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.records = append(s.records, protocol.UsageRecord{ClientAddress: "0xabc", TokenCount: 1})
	}
}

func (s *memSource) Drain(max int) []protocol.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max >= len(s.records) {
		out := s.records
		s.records = nil
		return out
	}
	out := make([]protocol.UsageRecord, max)
	copy(out, s.records[:max])
	s.records = s.records[max:]
	return out
}

func (s *memSource) Requeue(records []protocol.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(records, s.records...)
}

func (s *memSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// mockSink records one call per RecordUsage invocation and can be told to
// fail the send for a given number of upcoming records.
type mockSink struct {
	mu          sync.Mutex
	recorded    []protocol.UsageRecord
	failNext    int
	receiptErr  error
	nextTxIndex int
}

func (m *mockSink) RecordUsage(_ context.Context, record protocol.UsageRecord, _ float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return "", errors.New("sink unavailable")
	}
	m.recorded = append(m.recorded, record)
	m.nextTxIndex++
	return fmt.Sprintf("0xtx%d", m.nextTxIndex), nil
}

func (m *mockSink) WaitForReceipt(_ context.Context, _ string, _ time.Duration) error {
	return m.receiptErr
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recorded)
}

func TestFlushAll_SubmitsEveryQueuedRecord(t *testing.T) {
	src := &memSource{}
	src.push(protocol.MaxBatchSize + 10)
	sink := &mockSink{}
	s := NewSettler(src, sink, SettlerConfig{})

	s.flushAll(context.Background())

	if src.Len() != 0 {
		t.Fatalf("source len = %d, want 0", src.Len())
	}
	if sink.count() != protocol.MaxBatchSize+10 {
		t.Fatalf("recorded = %d, want %d", sink.count(), protocol.MaxBatchSize+10)
	}
}

func TestFlushBatch_ChunksToConfiguredSize(t *testing.T) {
	src := &memSource{}
	sink := &mockSink{}
	s := NewSettler(src, sink, SettlerConfig{ChunkSize: 3})

	batch := make([]protocol.UsageRecord, 7)
	s.flushBatch(context.Background(), batch)

	if sink.count() != 7 {
		t.Fatalf("recorded = %d, want 7", sink.count())
	}
}

func TestSubmitChunk_RequeuesRemainderOnSendFailure(t *testing.T) {
	src := &memSource{}
	sink := &mockSink{failNext: 1}
	s := NewSettler(src, sink, SettlerConfig{})

	chunk := make([]protocol.UsageRecord, 3)
	chunk[1].ClientAddress = "0xabc" // force the failure to land on index 0 via failNext

	s.submitChunk(context.Background(), chunk)

	if sink.count() != 0 {
		t.Fatalf("recorded = %d, want 0 (first send failed)", sink.count())
	}
	if src.Len() != 3 {
		t.Fatalf("source len = %d, want 3 requeued", src.Len())
	}
}

func TestSubmitChunk_ReceiptTimeoutIsNotRequeued(t *testing.T) {
	src := &memSource{}
	sink := &mockSink{receiptErr: errors.New("context deadline exceeded")}
	s := NewSettler(src, sink, SettlerConfig{})

	chunk := make([]protocol.UsageRecord, 2)
	s.submitChunk(context.Background(), chunk)

	if sink.count() != 2 {
		t.Fatalf("recorded = %d, want 2 (both sends succeeded despite receipt timeout)", sink.count())
	}
	if src.Len() != 0 {
		t.Fatalf("source len = %d, want 0 (receipt timeout must not requeue)", src.Len())
	}
}

func TestFlushAll_EmptySourceNoOp(t *testing.T) {
	src := &memSource{}
	sink := &mockSink{}
	s := NewSettler(src, sink, SettlerConfig{})

	s.flushAll(context.Background())

	if sink.count() != 0 {
		t.Fatalf("expected no records submitted, got %d", sink.count())
	}
}
