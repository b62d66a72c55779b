package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIBackend is an InferenceProvider/ModelLister speaking the
// OpenAI-compatible chat-completions dialect, the same plain net/http
// style the teacher's REST calls use rather than pulling in a client
// library for a handful of JSON requests.
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIBackend creates a backend pointed at baseURL (e.g.
// "http://localhost:11434/v1" for an Ollama OpenAI-compatible endpoint).
// apiKey may be empty for backends that don't require one.
func NewOpenAIBackend(baseURL, apiKey string) *OpenAIBackend {
	return &OpenAIBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *uint32       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements InferenceProvider.
func (b *OpenAIBackend) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != nil {
		messages = append(messages, chatMessage{Role: "system", Content: *req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("executor: marshal chat completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("executor: build chat completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("executor: chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GenerateResult{}, fmt.Errorf("executor: backend returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return GenerateResult{}, fmt.Errorf("executor: decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("executor: backend returned no choices")
	}

	return GenerateResult{
		Content:        parsed.Choices[0].Message.Content,
		InboundTokens:  parsed.Usage.PromptTokens,
		OutboundTokens: parsed.Usage.CompletionTokens,
		ModelUsed:      parsed.Model,
	}, nil
}

type listModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels implements ModelLister.
func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("executor: build list models request: %w", err)
	}
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executor: list models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("executor: backend returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("executor: decode list models response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
