// Package clientnode implements the Client role: discover a validator,
// query it for a model/executor, and send a signed inference request
// directly to the chosen executor over the request/response protocol.
package clientnode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/network"
	"github.com/lloom-network/lloom/internal/noncecache"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// ErrExecutorRejected is wrapped around the executor-reported reason when a
// SignedLlmResponse carries a non-nil Error — see Pipeline.HandleSigned on
// the executor side for the possible reasons (signature invalid, model not
// supported, backend error).
var ErrExecutorRejected = errors.New("clientnode: executor rejected request")

// Client issues inference requests on behalf of one identity.
type Client struct {
	id      *identity.Identity
	host    *network.Host
	policy  signing.VerificationConfig
	nonces  noncecache.Store
	nowFunc func() time.Time

	nonce uint64
}

// Config bundles Client dependencies.
type Config struct {
	Identity       *identity.Identity
	Host           *network.Host
	VerifyPolicy   signing.VerificationConfig
	ReplayProtect  noncecache.Store // optional; stored on the Client, but no Client method consults it
}

// New creates a Client.
func New(cfg Config) *Client {
	return &Client{
		id:      cfg.Identity,
		host:    cfg.Host,
		policy:  cfg.VerifyPolicy,
		nonces:  cfg.ReplayProtect,
		nowFunc: time.Now,
	}
}

// DiscoverValidators finds up to limit validator peers via the DHT.
func (c *Client) DiscoverValidators(ctx context.Context, limit int) ([]peer.AddrInfo, error) {
	return c.host.FindProviders(ctx, protocol.RoleValidator, limit)
}

// QueryModels sends a ModelQuery to validator and returns its response,
// verified against the validator's signature.
func (c *Client) QueryModels(ctx context.Context, validator peer.AddrInfo, query protocol.ModelQuery) (protocol.ModelQueryResponse, error) {
	if err := c.host.Connect(ctx, validator); err != nil {
		return protocol.ModelQueryResponse{}, fmt.Errorf("clientnode: connect to validator %s: %w", validator.ID, err)
	}

	query.Timestamp = uint64(c.nowFunc().Unix())
	c.nonce++
	signedQuery, err := signing.Sign(c.id, query, &c.nonce, c.nowFunc())
	if err != nil {
		return protocol.ModelQueryResponse{}, fmt.Errorf("clientnode: sign query: %w", err)
	}

	resp, err := c.host.SendRequest(ctx, validator.ID, protocol.NewModelQueryMessage(signedQuery))
	if err != nil {
		return protocol.ModelQueryResponse{}, fmt.Errorf("clientnode: send query: %w", err)
	}
	if resp.Kind != protocol.KindModelQueryResponse || resp.ModelQueryResponse == nil {
		return protocol.ModelQueryResponse{}, fmt.Errorf("clientnode: unexpected response kind %q to ModelQuery", resp.Kind)
	}

	if err := signing.Verify(*resp.ModelQueryResponse, c.policy, c.nowFunc()); err != nil {
		return protocol.ModelQueryResponse{}, fmt.Errorf("clientnode: verify query response: %w", err)
	}

	return resp.ModelQueryResponse.Payload, nil
}

// FindModel asks validator which executors currently serve modelID,
// returning the ModelEntry (descriptor plus serving executors) if any
// executor advertises it.
func (c *Client) FindModel(ctx context.Context, validator peer.AddrInfo, modelID string) (protocol.ModelEntry, bool, error) {
	resp, err := c.QueryModels(ctx, validator, protocol.ModelQuery{
		QueryID: "find-" + modelID,
		Kind:    protocol.QueryFindModel,
		ModelID: &modelID,
	})
	if err != nil {
		return protocol.ModelEntry{}, false, err
	}
	if len(resp.Entries) == 0 {
		return protocol.ModelEntry{}, false, nil
	}
	return resp.Entries[0], true, nil
}

// InferenceOptions carries the optional knobs on an LlmRequest.
type InferenceOptions struct {
	SystemPrompt *string
	Temperature  *float32
	MaxTokens    *uint32
	Deadline     time.Duration
}

// RequestInference builds, signs, and sends an LlmRequest to the peer
// executorNode, offering inboundPrice/outboundPrice (wei per token, decimal
// strings) for the given model. executorAddr is the executor's EVM address:
// the request is addressed to it and the response must be signed by it. It
// returns the verified LlmResponse payload.
func (c *Client) RequestInference(
	ctx context.Context,
	executorNode peer.AddrInfo,
	executorAddr string,
	model, prompt string,
	inboundPrice, outboundPrice string,
	opts InferenceOptions,
) (protocol.LlmResponse, error) {
	if err := c.host.Connect(ctx, executorNode); err != nil {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: connect to executor %s: %w", executorNode.ID, err)
	}

	now := c.nowFunc()
	deadline := uint64(0)
	if opts.Deadline > 0 {
		deadline = uint64(now.Add(opts.Deadline).Unix())
	}

	c.nonce++
	req := protocol.LlmRequest{
		Model:           model,
		Prompt:          prompt,
		SystemPrompt:    opts.SystemPrompt,
		Temperature:     opts.Temperature,
		MaxTokens:       opts.MaxTokens,
		ExecutorAddress: executorAddr,
		InboundPrice:    inboundPrice,
		OutboundPrice:   outboundPrice,
		Nonce:           c.nonce,
		Deadline:        deadline,
	}

	signedReq, err := signing.Sign(c.id, req, &c.nonce, now)
	if err != nil {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: sign request: %w", err)
	}

	resp, err := c.host.SendRequest(ctx, executorNode.ID, protocol.NewSignedLlmRequestMessage(signedReq))
	if err != nil {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: send request: %w", err)
	}
	if resp.Kind != protocol.KindSignedLlmResponse || resp.SignedLlmResponse == nil {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: unexpected response kind %q to LlmRequest", resp.Kind)
	}

	signedResp := *resp.SignedLlmResponse
	if err := signing.Verify(signedResp, c.policy, c.nowFunc()); err != nil {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: verify response: %w", err)
	}
	if signedResp.Signer != executorAddr {
		return protocol.LlmResponse{}, fmt.Errorf("clientnode: response signed by %s, expected executor %s", signedResp.Signer, executorAddr)
	}
	if signedResp.Payload.Error != nil {
		return protocol.LlmResponse{}, fmt.Errorf("%w: %s", ErrExecutorRejected, *signedResp.Payload.Error)
	}

	return signedResp.Payload, nil
}
