package protocol

import "time"

// Protocol-level constants, pinned to match the original reference
// implementation so nodes speaking either codebase agree on timing.
const (
	// LLMProtocolID is the libp2p stream protocol ID for LlmRequest/LlmResponse
	// and the model-announcement/query request-response exchanges.
	LLMProtocolID = "/lloom/llm/1.0.0"

	// DefaultRequestTimeout bounds how long a Client waits for an Executor's
	// response on the request/response stream.
	DefaultRequestTimeout = 300 * time.Second

	// MaxMessageAge is the replay-protection window used for protocol
	// messages (ModelQuery, LlmRequest/LlmResponse verification, nonce
	// cache TTL) via signing.ReplayWindow.
	MaxMessageAge = 300 * time.Second

	// DefaultStrictMaxAge is signing.StrictVerification's default max
	// message age.
	DefaultStrictMaxAge = time.Hour

	// ClockSkewAllowance bounds how far into the future a signed
	// message's timestamp may be before verification rejects it as
	// ErrMessageInFuture, for every timestamp-checking verification
	// policy.
	ClockSkewAllowance = 5 * time.Minute

	// MaxBatchSize caps how many UsageRecords a single settlement
	// submission carries.
	MaxBatchSize = 100

	// BatchSubmissionInterval is how often the settlement queue is drained.
	BatchSubmissionInterval = 300 * time.Second

	// MaxModelsPerExecutor bounds a single ExecutorRecord's model map.
	MaxModelsPerExecutor = 256

	// MaxExecutors bounds the validator registry's total size.
	MaxExecutors = 10000

	// DefaultQueryLimit and MaxQueryLimit bound ModelQuery pagination.
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Gossip topic names. Nodes join topics under these bare names; no
// namespace prefix is applied.
const (
	TopicAnnouncements         = "announcements"
	TopicExecutorAnnouncements = "executor-announcements" // legacy plaintext EXECUTOR_AVAILABLE:<NodeId>
	TopicModelAnnouncements    = "model-announcements"
	TopicExecutorUpdates       = "executor-updates"
	TopicModelQueries          = "model-queries"
)

// LegacyExecutorAvailablePrefix is the prefix of the plaintext legacy
// gossip hint carried on TopicExecutorAnnouncements. No node in this
// module joins that topic or parses the hint.
const LegacyExecutorAvailablePrefix = "EXECUTOR_AVAILABLE:"
