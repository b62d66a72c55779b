package executor

import (
	"context"
	"time"

	"github.com/lloom-network/lloom/internal/control"
	"github.com/lloom-network/lloom/internal/protocol"
)

// ControlHandler implements control.Service for the Executor role:
// GetStatus, GetUsageQueueDepth, and ForceAnnounce are supported; the
// validator-only methods fall back to control.UnimplementedService.
type ControlHandler struct {
	control.UnimplementedService

	nodeID    string
	address   string
	startedAt time.Time
	peerCount func() uint32
	queue     *UsageQueue
	announcer *Announcer
}

// NewControlHandler creates a ControlHandler for an executor node.
func NewControlHandler(nodeID, address string, peerCount func() uint32, queue *UsageQueue, announcer *Announcer) *ControlHandler {
	return &ControlHandler{
		nodeID:    nodeID,
		address:   address,
		startedAt: time.Now(),
		peerCount: peerCount,
		queue:     queue,
		announcer: announcer,
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
		Role:       "executor",
		UptimeSecs: uint64(time.Since(h.startedAt).Seconds()),
		PeerCount:  peers,
	}, nil
}

func (h *ControlHandler) GetUsageQueueDepth(context.Context, *control.GetUsageQueueDepthRequest) (*control.GetUsageQueueDepthResponse, error) {
	return &control.GetUsageQueueDepthResponse{Depth: uint32(h.queue.Len())}, nil
}

func (h *ControlHandler) ForceAnnounce(ctx context.Context, _ *control.ForceAnnounceRequest) (*control.ForceAnnounceResponse, error) {
	if err := h.announcer.Announce(ctx, protocol.AnnouncementUpdate); err != nil {
		return &control.ForceAnnounceResponse{Published: false, Error: err.Error()}, nil
	}
	return &control.ForceAnnounceResponse{Published: true}, nil
}
