package validator

import (
	"context"
	"time"

	"github.com/lloom-network/lloom/internal/control"
	"github.com/lloom-network/lloom/internal/protocol"
)

// ControlHandler implements control.Service for the Validator role:
// GetStatus, ListExecutors, and ListModels are supported; the
// executor-only methods fall back to control.UnimplementedService.
type ControlHandler struct {
	control.UnimplementedService

	registry  *Registry
	nodeID    string
	address   string
	startedAt time.Time
	peerCount func() uint32
}

// NewControlHandler creates a ControlHandler backed by registry.
// peerCount may be nil, in which case GetStatus reports zero.
func NewControlHandler(registry *Registry, nodeID, address string, peerCount func() uint32) *ControlHandler {
	return &ControlHandler{
		registry:  registry,
		nodeID:    nodeID,
		address:   address,
		startedAt: time.Now(),
		peerCount: peerCount,
	}
}

func (h *ControlHandler) GetStatus(context.Context, *control.GetStatusRequest) (*control.GetStatusResponse, error) {
	var peers uint32
	if h.peerCount != nil {
		peers = h.peerCount()
	}
	return &control.GetStatusResponse{
		NodeID:     h.nodeID,
		Address:    h.address,
		Role:       "validator",
		UptimeSecs: uint64(time.Since(h.startedAt).Seconds()),
		PeerCount:  peers,
	}, nil
}

func (h *ControlHandler) ListExecutors(context.Context, *control.ListExecutorsRequest) (*control.ListExecutorsResponse, error) {
	return &control.ListExecutorsResponse{Executors: h.registry.ListExecutors()}, nil
}

func (h *ControlHandler) ListModels(_ context.Context, req *control.ListModelsRequest) (*control.ListModelsResponse, error) {
	var filters *protocol.QueryFilters
	if req.BackendFamily != nil {
		filters = &protocol.QueryFilters{BackendFamily: req.BackendFamily}
	}
	resp, err := h.registry.HandleQuery(protocol.ModelQuery{
		QueryID: "control-list-models",
		Kind:    protocol.QueryListAll,
	}, uint64(time.Now().Unix()))
	if err != nil {
		return nil, err
	}
	if filters == nil {
		return &control.ListModelsResponse{Models: resp.Models}, nil
	}
	var filtered []protocol.ModelDescriptor
	for _, m := range resp.Models {
		if m.BackendFamily == *filters.BackendFamily {
			filtered = append(filtered, m)
		}
	}
	return &control.ListModelsResponse{Models: filtered}, nil
}
