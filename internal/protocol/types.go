// Package protocol defines the message types exchanged between clients,
// executors, and validators on the network.
package protocol

import "fmt"

// LlmRequest is sent from a Client to an Executor to request inference.
type LlmRequest struct {
	Model            string  `json:"model" cbor:"model"`
	Prompt           string  `json:"prompt" cbor:"prompt"`
	SystemPrompt     *string `json:"systemPrompt,omitempty" cbor:"systemPrompt,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty" cbor:"temperature,omitempty"`
	MaxTokens        *uint32 `json:"maxTokens,omitempty" cbor:"maxTokens,omitempty"`
	ExecutorAddress  string  `json:"executorAddress" cbor:"executorAddress"`
	InboundPrice     string  `json:"inboundPrice" cbor:"inboundPrice"`   // wei per input token, UINT256 decimal string
	OutboundPrice    string  `json:"outboundPrice" cbor:"outboundPrice"` // wei per output token, UINT256 decimal string
	Nonce            uint64  `json:"nonce" cbor:"nonce"`
	Deadline         uint64  `json:"deadline" cbor:"deadline"` // unix seconds
}

// LlmResponse is sent from an Executor back to a Client.
type LlmResponse struct {
	Content        string  `json:"content" cbor:"content"`
	InboundTokens  uint64  `json:"inboundTokens" cbor:"inboundTokens"`
	OutboundTokens uint64  `json:"outboundTokens" cbor:"outboundTokens"`
	TotalCost      string  `json:"totalCost" cbor:"totalCost"` // wei, UINT256 decimal string
	ModelUsed      string  `json:"modelUsed" cbor:"modelUsed"`
	Error          *string `json:"error,omitempty" cbor:"error,omitempty"`
}

// UsageRecord tracks a unit of completed work by an Executor, pending
// batch settlement.
type UsageRecord struct {
	ClientAddress string `json:"clientAddress" cbor:"clientAddress"`
	Model         string `json:"model" cbor:"model"`
	TokenCount    uint32 `json:"tokenCount" cbor:"tokenCount"`
	Timestamp     uint64 `json:"timestamp" cbor:"timestamp"`
}

// PerformanceMetrics are optional, self-reported model performance figures.
type PerformanceMetrics struct {
	AvgLatencyMs     *uint32  `json:"avgLatencyMs,omitempty" cbor:"avgLatencyMs,omitempty"`
	TokensPerSecond  *float32 `json:"tokensPerSecond,omitempty" cbor:"tokensPerSecond,omitempty"`
	SuccessRate      *float32 `json:"successRate,omitempty" cbor:"successRate,omitempty"`
}

// ModelPricing is the optional pricing attached to a ModelDescriptor.
type ModelPricing struct {
	InputPrice  string  `json:"inputPrice" cbor:"inputPrice"`   // wei per input token
	OutputPrice string  `json:"outputPrice" cbor:"outputPrice"` // wei per output token
	MinimumFee  *string `json:"minimumFee,omitempty" cbor:"minimumFee,omitempty"`
}

// ModelDescriptor describes one model an Executor can serve.
type ModelDescriptor struct {
	ModelID        string             `json:"modelId" cbor:"modelId"`
	BackendFamily  string             `json:"backendFamily" cbor:"backendFamily"`
	MaxContext     uint32             `json:"maxContext" cbor:"maxContext"`
	Features       []string           `json:"features,omitempty" cbor:"features,omitempty"`
	Architecture   *string            `json:"architecture,omitempty" cbor:"architecture,omitempty"`
	ParamSize      *string            `json:"paramSize,omitempty" cbor:"paramSize,omitempty"`
	Performance    *PerformanceMetrics `json:"performance,omitempty" cbor:"performance,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	Available      bool               `json:"available" cbor:"available"`
	Pricing        *ModelPricing      `json:"pricing,omitempty" cbor:"pricing,omitempty"`
}

// AnnouncementKind distinguishes the lifecycle event carried by a
// ModelAnnouncement.
type AnnouncementKind string

const (
	AnnouncementInitial   AnnouncementKind = "initial"
	AnnouncementUpdate    AnnouncementKind = "update"
	AnnouncementHeartbeat AnnouncementKind = "heartbeat"
	AnnouncementRemoval   AnnouncementKind = "removal"
)

// ModelAnnouncement is published by an Executor to advertise the models it
// serves. Always delivered inside a SignedEnvelope.
type ModelAnnouncement struct {
	NodeID          string            `json:"nodeId" cbor:"nodeId"`
	ExecutorAddress string            `json:"executorAddress" cbor:"executorAddress"`
	Models          []ModelDescriptor `json:"models" cbor:"models"`
	Kind            AnnouncementKind  `json:"kind" cbor:"kind"`
	Timestamp       uint64            `json:"timestamp" cbor:"timestamp"`
	Nonce           uint64            `json:"nonce" cbor:"nonce"`
	ProtocolVersion uint32            `json:"protocolVersion" cbor:"protocolVersion"`
}

// QueryKind distinguishes the shape of a ModelQuery.
type QueryKind string

const (
	QueryListAll       QueryKind = "listAll"
	QueryFindModel     QueryKind = "findModel"
	QueryFindExecutor  QueryKind = "findExecutor"
	QueryListByBackend QueryKind = "listByBackend"
)

// QueryFilters narrows a ListAll/ListByBackend query.
type QueryFilters struct {
	BackendFamily    *string  `json:"backendFamily,omitempty" cbor:"backendFamily,omitempty"`
	MinContext       *uint32  `json:"minContext,omitempty" cbor:"minContext,omitempty"`
	RequiredFeatures []string `json:"requiredFeatures,omitempty" cbor:"requiredFeatures,omitempty"`
	MaxPrice         *string  `json:"maxPrice,omitempty" cbor:"maxPrice,omitempty"`
	AvailableOnly    bool     `json:"availableOnly,omitempty" cbor:"availableOnly,omitempty"`
	MinSuccessRate   *float32 `json:"minSuccessRate,omitempty" cbor:"minSuccessRate,omitempty"`
}

// ModelQuery asks a Validator for information about known models/executors.
type ModelQuery struct {
	QueryID   string        `json:"queryId" cbor:"queryId"`
	Kind      QueryKind     `json:"kind" cbor:"kind"`
	ModelID   *string       `json:"modelId,omitempty" cbor:"modelId,omitempty"`
	NodeID    *string       `json:"nodeId,omitempty" cbor:"nodeId,omitempty"`
	Filters   *QueryFilters `json:"filters,omitempty" cbor:"filters,omitempty"`
	Limit     *uint32       `json:"limit,omitempty" cbor:"limit,omitempty"`
	Offset    *uint32       `json:"offset,omitempty" cbor:"offset,omitempty"`
	Timestamp uint64        `json:"timestamp" cbor:"timestamp"`
}

// ModelEntry is a FindModel query result: one model descriptor plus the
// executors currently offering it, each identified by node id and EVM
// address so a client can connect directly.
type ModelEntry struct {
	Descriptor ModelDescriptor   `json:"descriptor" cbor:"descriptor"`
	Executors  []ExecutorAddress `json:"executors" cbor:"executors"`
}

// ExecutorAddress identifies one executor offering a model, without the
// full ExecutorSummary's model list.
type ExecutorAddress struct {
	NodeID          string `json:"nodeId" cbor:"nodeId"`
	ExecutorAddress string `json:"executorAddress" cbor:"executorAddress"`
}

// ExecutorSummary is a query-result-facing view of a registry entry.
type ExecutorSummary struct {
	NodeID          string            `json:"nodeId" cbor:"nodeId"`
	ExecutorAddress string            `json:"executorAddress" cbor:"executorAddress"`
	Models          []ModelDescriptor `json:"models" cbor:"models"`
	ConnectionState string            `json:"connectionState" cbor:"connectionState"`
	LastSeen        uint64            `json:"lastSeen" cbor:"lastSeen"`
}

// ModelQueryResponse answers a ModelQuery. At most one of the result
// fields is populated (none when nothing matched), matching the
// originating query's Kind: Models for
// ListAll/ListByBackend, Entries for FindModel, Executors for FindExecutor.
type ModelQueryResponse struct {
	QueryID   string            `json:"queryId" cbor:"queryId"`
	Models    []ModelDescriptor `json:"models,omitempty" cbor:"models,omitempty"`
	Entries   []ModelEntry      `json:"entries,omitempty" cbor:"entries,omitempty"`
	Executors []ExecutorSummary `json:"executors,omitempty" cbor:"executors,omitempty"`
	Timestamp uint64            `json:"timestamp" cbor:"timestamp"`
}

// ModelUpdate carries an incremental change to an Executor's model set,
// distinct from a full ModelAnnouncement re-publish.
type ModelUpdate struct {
	NodeID          string            `json:"nodeId" cbor:"nodeId"`
	ExecutorAddress string            `json:"executorAddress" cbor:"executorAddress"`
	Added           []ModelDescriptor `json:"added,omitempty" cbor:"added,omitempty"`
	Removed         []string          `json:"removed,omitempty" cbor:"removed,omitempty"`
	Timestamp       uint64            `json:"timestamp" cbor:"timestamp"`
	Nonce           uint64            `json:"nonce" cbor:"nonce"`
}

// AcknowledgmentResponse is returned for announcements and updates.
type AcknowledgmentResponse struct {
	InReplyToNonce uint64  `json:"inReplyToNonce" cbor:"inReplyToNonce"`
	Accepted       bool    `json:"accepted" cbor:"accepted"`
	Reason         *string `json:"reason,omitempty" cbor:"reason,omitempty"`
	Timestamp      uint64  `json:"timestamp" cbor:"timestamp"`
}

// ServiceRole identifies a role advertised via DHT provider records.
type ServiceRole uint8

const (
	RoleExecutor ServiceRole = iota
	RoleValidator
)

func (r ServiceRole) String() string {
	switch r {
	case RoleExecutor:
		return "executor"
	case RoleValidator:
		return "validator"
	default:
		return "unknown"
	}
}

// KadKey returns the Kademlia discovery key namespaced the way the wider
// network expects: "lloom/<role>".
func (r ServiceRole) KadKey() []byte {
	return []byte(fmt.Sprintf("lloom/%s", r.String()))
}
