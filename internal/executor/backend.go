package executor

import "context"

// InferenceProvider is the out-of-scope LLM backend collaborator this
// pipeline dispatches to. Concrete implementations speak whatever HTTP
// dialect a given backend uses (OpenAI-compatible, Ollama, etc.) — that
// wire format is explicitly out of scope for this module.
type InferenceProvider interface {
	// Generate runs one completion and reports token usage split by
	// input/output, the way the pipeline's metering step requires.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// ModelLister is an optional capability a backend can implement to support
// dynamic model discovery (see discovery.go).
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// GenerateRequest is the backend-facing view of an LlmRequest.
type GenerateRequest struct {
	Model        string
	Prompt       string
	SystemPrompt *string
	Temperature  *float32
	MaxTokens    *uint32
}

// GenerateResult is the backend-facing view of a completion outcome.
type GenerateResult struct {
	Content        string
	InboundTokens  uint64
	OutboundTokens uint64
	ModelUsed      string
}
