// Package validator implements the validator-side executor registry:
// ingesting signed model announcements, tracking connection/staleness
// state per executor, and answering typed model/executor queries.
package validator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// Sentinel errors returned by the registry's ingest and query paths.
var (
	ErrCapacityExceeded  = errors.New("validator: registry capacity exceeded")
	ErrTooManyModels     = errors.New("validator: executor exceeds max models per executor")
	ErrUnknownExecutor   = errors.New("validator: no record for this executor")
	ErrStaleAnnouncement = errors.New("validator: announcement nonce is not newer than the last seen one")
)

// ConnectionState tracks how fresh an executor's announcements are. It is
// update-recency-driven, not transport-connection-driven — announcements
// arrive over gossipsub, which has no persistent "connection" concept the
// way a reqresp stream does (see DESIGN.md's open-question decision #3).
type ConnectionState uint8

const (
	StateUnknown ConnectionState = iota
	StateConnected
	StateDisconnected
	StateStale
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ExecutorStats accumulates per-executor counters the registry maintains
// purely for observability (surfaced via the control plane).
type ExecutorStats struct {
	AnnouncementsReceived uint64
	QueriesServed         uint64
}

// ExecutorRecord is the validator-private view of one known executor.
type ExecutorRecord struct {
	NodeID              string
	EVMAddress          string
	Models              map[string]protocol.ModelDescriptor
	State               ConnectionState
	LastSeen            time.Time
	LastAnnouncementAt  time.Time
	LastAnnouncementNonce uint64
	Stats               ExecutorStats
}

// SweepConfig tunes the registry's periodic staleness sweep — the exact
// shape of circuit_breaker.CircuitBreakerConfig, repointed at announcement
// freshness instead of market-data freshness.
type SweepConfig struct {
	// StaleAfter is how long since the last announcement before a record
	// moves from Connected to Stale.
	StaleAfter time.Duration
	// DisconnectAfter is how long since the last announcement before the
	// sweep deletes the record from the registry.
	DisconnectAfter time.Duration
	// SweepInterval is how often the sweep runs.
	SweepInterval time.Duration
}

// DefaultSweepConfig returns production-tuned defaults: a 90s stale_timeout
// and a 300s removal_timeout.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		StaleAfter:      90 * time.Second,
		DisconnectAfter: 300 * time.Second,
		SweepInterval:   30 * time.Second,
	}
}

// Registry holds all known ExecutorRecords and applies the ingest/query/
// sweep rules from the executor pipeline's counterpart component.
type Registry struct {
	cfg     SweepConfig
	nowFunc func() time.Time // injectable clock for testing

	mu        sync.RWMutex
	executors map[string]*ExecutorRecord // keyed by NodeID
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg SweepConfig) *Registry {
	return &Registry{
		cfg:       cfg,
		nowFunc:   time.Now,
		executors: make(map[string]*ExecutorRecord),
	}
}

// HandleAnnouncement applies the Initial/Update/Heartbeat/Removal ingest
// contract to a verified SignedModelAnnouncement. The caller is
// responsible for signature/timestamp verification before calling this —
// see internal/signing.Verify.
func (r *Registry) HandleAnnouncement(msg protocol.SignedMessage[protocol.ModelAnnouncement]) error {
	a := msg.Payload
	now := r.nowFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, known := r.executors[a.NodeID]

	switch a.Kind {
	case protocol.AnnouncementRemoval:
		delete(r.executors, a.NodeID)
		return nil

	case protocol.AnnouncementInitial:
		if len(a.Models) > protocol.MaxModelsPerExecutor {
			return ErrTooManyModels
		}
		if !known && len(r.executors) >= protocol.MaxExecutors {
			return ErrCapacityExceeded
		}
		rec := &ExecutorRecord{
			NodeID:     a.NodeID,
			EVMAddress: a.ExecutorAddress,
			Models:     modelsByID(a.Models),
			State:      StateConnected,
		}
		r.executors[a.NodeID] = rec
		existing = rec

	case protocol.AnnouncementUpdate, protocol.AnnouncementHeartbeat:
		if !known {
			// Accept announcements from never-connected executors — see
			// DESIGN.md's open-question decision #3 — by synthesizing a
			// record as if this were an Initial.
			if len(r.executors) >= protocol.MaxExecutors {
				return ErrCapacityExceeded
			}
			existing = &ExecutorRecord{NodeID: a.NodeID, EVMAddress: a.ExecutorAddress, Models: make(map[string]protocol.ModelDescriptor)}
			r.executors[a.NodeID] = existing
		}
		if a.Kind == protocol.AnnouncementUpdate {
			if len(a.Models) > protocol.MaxModelsPerExecutor {
				return ErrTooManyModels
			}
			existing.Models = modelsByID(a.Models)
		}
		existing.State = StateConnected

	default:
		return fmt.Errorf("validator: unknown announcement kind %q", a.Kind)
	}

	existing.LastSeen = now
	existing.LastAnnouncementAt = now
	existing.LastAnnouncementNonce = a.Nonce
	existing.Stats.AnnouncementsReceived++

	return nil
}

func modelsByID(models []protocol.ModelDescriptor) map[string]protocol.ModelDescriptor {
	out := make(map[string]protocol.ModelDescriptor, len(models))
	for _, m := range models {
		out[m.ModelID] = m
	}
	return out
}

// Sweep advances connection state based on announcement recency. It is
// called on SweepInterval by the caller's scheduled-task loop.
func (r *Registry) Sweep() {
	now := r.nowFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	for nodeID, rec := range r.executors {
		age := now.Sub(rec.LastAnnouncementAt)
		switch {
		case age >= r.cfg.DisconnectAfter:
			delete(r.executors, nodeID)
		case age >= r.cfg.StaleAfter:
			rec.State = StateStale
		default:
			rec.State = StateConnected
		}
	}
}

// Get returns a copy of the record for nodeID, if known.
func (r *Registry) Get(nodeID string) (ExecutorRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.executors[nodeID]
	if !ok {
		return ExecutorRecord{}, false
	}
	return *rec, true
}

// Len returns the number of tracked executors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// VerifyAndIngest is a convenience wrapper that verifies msg before
// handing it to HandleAnnouncement, using policy for the timestamp check.
func (r *Registry) VerifyAndIngest(msg protocol.SignedMessage[protocol.ModelAnnouncement], policy signing.VerificationConfig) error {
	if err := signing.Verify(msg, policy, r.nowFunc()); err != nil {
		return fmt.Errorf("validator: reject announcement: %w", err)
	}
	return r.HandleAnnouncement(msg)
}
