package control

import "github.com/lloom-network/lloom/internal/protocol"

// GetStatusRequest takes no parameters; every role answers it.
type GetStatusRequest struct{}

// GetStatusResponse reports the identity and health of the running node.
type GetStatusResponse struct {
	NodeID     string `cbor:"nodeId"`
	Address    string `cbor:"address"`
	Role       string `cbor:"role"`
	UptimeSecs uint64 `cbor:"uptimeSecs"`
	PeerCount  uint32 `cbor:"peerCount"`
}

// ListExecutorsRequest takes no parameters; validator-only.
type ListExecutorsRequest struct{}

// ListExecutorsResponse reports the validator's current executor registry.
type ListExecutorsResponse struct {
	Executors []protocol.ExecutorSummary `cbor:"executors"`
}

// ListModelsRequest optionally filters by backend family; validator-only.
type ListModelsRequest struct {
	BackendFamily *string `cbor:"backendFamily,omitempty"`
}

// ListModelsResponse reports every model currently known to the validator.
type ListModelsResponse struct {
	Models []protocol.ModelDescriptor `cbor:"models"`
}

// GetUsageQueueDepthRequest takes no parameters; executor-only.
type GetUsageQueueDepthRequest struct{}

// GetUsageQueueDepthResponse reports how many UsageRecords are buffered
// awaiting settlement.
type GetUsageQueueDepthResponse struct {
	Depth uint32 `cbor:"depth"`
}

// ForceAnnounceRequest asks the executor to re-publish its ModelAnnouncement
// now, as an Update; executor-only. The executor publishes no periodic
// heartbeat, so after the startup Initial this is the only re-announcement.
type ForceAnnounceRequest struct{}

// ForceAnnounceResponse confirms the announcement was published.
type ForceAnnounceResponse struct {
	Published bool   `cbor:"published"`
	Error     string `cbor:"error,omitempty"`
}
