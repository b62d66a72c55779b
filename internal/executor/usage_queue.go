package executor

import (
	"sync"

	"github.com/lloom-network/lloom/internal/protocol"
)

// UsageQueue is a thread-safe, unbounded buffer of completed UsageRecords
// awaiting settlement. The pipeline only ever appends; internal/settlement
// owns draining and batching, the same ingest/flush split the teacher uses
// between its WebSocket ingest goroutine and its buffered Redis flush.
type UsageQueue struct {
	mu      sync.Mutex
	records []protocol.UsageRecord
}

// NewUsageQueue creates an empty UsageQueue.
func NewUsageQueue() *UsageQueue {
	return &UsageQueue{}
}

// Enqueue appends one completed UsageRecord.
func (q *UsageQueue) Enqueue(r protocol.UsageRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, r)
}

// Drain removes and returns up to max records (0 means unlimited), FIFO.
func (q *UsageQueue) Drain(max int) []protocol.UsageRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || max >= len(q.records) {
		out := q.records
		q.records = nil
		return out
	}
	out := make([]protocol.UsageRecord, max)
	copy(out, q.records[:max])
	q.records = q.records[max:]
	return out
}

// Requeue puts records back at the front of the queue, for a settlement
// batch that failed to submit.
func (q *UsageQueue) Requeue(records []protocol.UsageRecord) {
	if len(records) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(records, q.records...)
}

// Len reports the number of records currently buffered.
func (q *UsageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
