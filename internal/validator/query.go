package validator

import (
	"fmt"
	"sort"

	"github.com/lloom-network/lloom/internal/protocol"
)

// HandleQuery answers a verified ModelQuery per its Kind, applying the
// defaults and hard cap the network specifies: offset 0 / limit 100 by
// default, never more than MaxQueryLimit results.
func (r *Registry) HandleQuery(q protocol.ModelQuery, now uint64) (protocol.ModelQueryResponse, error) {
	limit := protocol.DefaultQueryLimit
	if q.Limit != nil {
		limit = int(*q.Limit)
	}
	if limit > protocol.MaxQueryLimit {
		limit = protocol.MaxQueryLimit
	}
	offset := 0
	if q.Offset != nil {
		offset = int(*q.Offset)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch q.Kind {
	case protocol.QueryListAll:
		models := r.allModelsLocked(q.Filters)
		sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
		return protocol.ModelQueryResponse{
			QueryID:   q.QueryID,
			Models:    paginateModels(models, offset, limit),
			Timestamp: now,
		}, nil

	case protocol.QueryFindModel:
		if q.ModelID == nil {
			return protocol.ModelQueryResponse{}, fmt.Errorf("validator: findModel query missing modelId")
		}
		entry, found := r.findModelEntryLocked(*q.ModelID)
		if !found {
			return protocol.ModelQueryResponse{QueryID: q.QueryID, Timestamp: now}, nil
		}
		return protocol.ModelQueryResponse{
			QueryID:   q.QueryID,
			Entries:   []protocol.ModelEntry{entry},
			Timestamp: now,
		}, nil

	case protocol.QueryFindExecutor:
		if q.NodeID == nil {
			return protocol.ModelQueryResponse{}, fmt.Errorf("validator: findExecutor query missing nodeId")
		}
		rec, ok := r.executors[*q.NodeID]
		if !ok {
			return protocol.ModelQueryResponse{QueryID: q.QueryID, Timestamp: now}, nil
		}
		return protocol.ModelQueryResponse{
			QueryID:   q.QueryID,
			Executors: []protocol.ExecutorSummary{summaryOf(rec)},
			Timestamp: now,
		}, nil

	case protocol.QueryListByBackend:
		if q.Filters == nil || q.Filters.BackendFamily == nil {
			return protocol.ModelQueryResponse{}, fmt.Errorf("validator: listByBackend query missing backendFamily filter")
		}
		models := r.allModelsLocked(q.Filters)
		sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
		return protocol.ModelQueryResponse{
			QueryID:   q.QueryID,
			Models:    paginateModels(models, offset, limit),
			Timestamp: now,
		}, nil

	default:
		return protocol.ModelQueryResponse{}, fmt.Errorf("validator: unknown query kind %q", q.Kind)
	}
}

// ListExecutors returns a summary of every tracked executor, for the
// control plane's ListExecutors operation.
func (r *Registry) ListExecutors() []protocol.ExecutorSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ExecutorSummary, 0, len(r.executors))
	for _, nodeID := range r.sortedExecutorIDsLocked() {
		out = append(out, summaryOf(r.executors[nodeID]))
	}
	return out
}

func summaryOf(rec *ExecutorRecord) protocol.ExecutorSummary {
	models := make([]protocol.ModelDescriptor, 0, len(rec.Models))
	for _, m := range rec.Models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
	return protocol.ExecutorSummary{
		NodeID:          rec.NodeID,
		ExecutorAddress: rec.EVMAddress,
		Models:          models,
		ConnectionState: rec.State.String(),
		LastSeen:        uint64(rec.LastSeen.Unix()),
	}
}

// findModelEntryLocked builds the ModelEntry for modelID: its descriptor
// (taken from the first executor offering it in node-id order, since
// descriptors for the same model id agree on capability metadata) plus every executor
// currently offering it. Assumes the caller holds r.mu.
func (r *Registry) findModelEntryLocked(modelID string) (protocol.ModelEntry, bool) {
	var entry protocol.ModelEntry
	found := false
	for _, nodeID := range r.sortedExecutorIDsLocked() {
		rec := r.executors[nodeID]
		m, ok := rec.Models[modelID]
		if !ok {
			continue
		}
		if !found {
			entry.Descriptor = m
			found = true
		}
		entry.Executors = append(entry.Executors, protocol.ExecutorAddress{
			NodeID:          rec.NodeID,
			ExecutorAddress: rec.EVMAddress,
		})
	}
	return entry, found
}

func (r *Registry) allModelsLocked(filters *protocol.QueryFilters) []protocol.ModelDescriptor {
	var out []protocol.ModelDescriptor
	for _, nodeID := range r.sortedExecutorIDsLocked() {
		rec := r.executors[nodeID]
		for _, m := range rec.Models {
			if matchesFilters(m, filters) {
				out = append(out, m)
			}
		}
	}
	return out
}

func matchesFilters(m protocol.ModelDescriptor, f *protocol.QueryFilters) bool {
	if f == nil {
		return true
	}
	if f.BackendFamily != nil && m.BackendFamily != *f.BackendFamily {
		return false
	}
	if f.MinContext != nil && m.MaxContext < *f.MinContext {
		return false
	}
	if f.AvailableOnly && !m.Available {
		return false
	}
	if len(f.RequiredFeatures) > 0 {
		have := make(map[string]bool, len(m.Features))
		for _, feat := range m.Features {
			have[feat] = true
		}
		for _, want := range f.RequiredFeatures {
			if !have[want] {
				return false
			}
		}
	}
	if f.MinSuccessRate != nil {
		if m.Performance == nil || m.Performance.SuccessRate == nil || *m.Performance.SuccessRate < *f.MinSuccessRate {
			return false
		}
	}
	return true
}

func paginateModels(models []protocol.ModelDescriptor, offset, limit int) []protocol.ModelDescriptor {
	if offset >= len(models) {
		return nil
	}
	end := offset + limit
	if end > len(models) {
		end = len(models)
	}
	return models[offset:end]
}

// sortedExecutorIDsLocked returns every executor node id in sorted order.
// It takes no lock and assumes the caller already holds r.mu (read or
// write).
func (r *Registry) sortedExecutorIDsLocked() []string {
	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
