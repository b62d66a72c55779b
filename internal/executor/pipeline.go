// Package executor implements the Executor's request pipeline: verify the
// inbound signed request, dispatch to a backend, meter token usage into a
// cost, sign the response, and enqueue a UsageRecord for settlement.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/noncecache"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// Sentinel errors for the verify stage, fail-fast like every other
// validator in this stack: the first failing check wins.
var (
	ErrWrongExecutor  = errors.New("executor: request addressed to a different executor")
	ErrRequestExpired = errors.New("executor: request deadline has passed")
	ErrModelNotServed = errors.New("executor: model is not configured on this executor")
	ErrBadPrice       = errors.New("executor: inbound/outbound price is not a valid non-negative integer")
	ErrClientBusy     = errors.New("executor: client already has a request in flight")
)

// sessionKey isolates per-client pipeline state the same way the
// teacher's TunnelManager isolates per-user WebSocket sessions — here
// the isolated resource is "at most one in-flight request per client",
// not a socket.
type sessionKey string

// Pipeline wires together verification, dispatch, metering, signing, and
// usage-queue enqueue for one Executor identity.
type Pipeline struct {
	id           *identity.Identity
	backend      InferenceProvider
	models       map[string]bool
	verifyPolicy signing.VerificationConfig
	nonces       noncecache.Store
	usageQueue   *UsageQueue

	mu       sync.Mutex
	inFlight map[sessionKey]bool

	nowFunc func() time.Time
}

// Config bundles the Pipeline's dependencies.
type Config struct {
	Identity     *identity.Identity
	Backend      InferenceProvider
	ServedModels []string
	VerifyPolicy signing.VerificationConfig
	Nonces       noncecache.Store
	UsageQueue   *UsageQueue
}

// New creates a Pipeline ready to handle requests.
func New(cfg Config) *Pipeline {
	models := make(map[string]bool, len(cfg.ServedModels))
	for _, m := range cfg.ServedModels {
		models[m] = true
	}
	return &Pipeline{
		id:           cfg.Identity,
		backend:      cfg.Backend,
		models:       models,
		verifyPolicy: cfg.VerifyPolicy,
		nonces:       cfg.Nonces,
		usageQueue:   cfg.UsageQueue,
		inFlight:     make(map[sessionKey]bool),
		nowFunc:      time.Now,
	}
}

// ErrorKind names the categories of rejection. HandleSigned does not
// attach these values to a response: its LlmResponse.Error is a free-text
// reason, prefixed "signature invalid: ", "unsupported model: " or
// "backend error: " for those three categories.
type ErrorKind string

const (
	KindSignatureInvalid ErrorKind = "SignatureInvalid"
	KindUnsupportedModel ErrorKind = "UnsupportedModel"
	KindBackendError     ErrorKind = "BackendError"
)

// HandleSigned runs the full verify → dispatch → meter → sign → enqueue
// pipeline on a SignedLlmRequest. On success it returns a SignedLlmResponse
// and has appended exactly one UsageRecord to the usage queue. On any
// pipeline failure it still returns a valid SignedLlmResponse — signed by
// this executor's own identity, with Payload.Error set to a human-readable
// reason — so the caller always has a signed response to relay; the
// returned error is non-nil only when even that error response couldn't be
// signed, which the caller should treat as fatal for this request.
func (p *Pipeline) HandleSigned(ctx context.Context, signed protocol.SignedMessage[protocol.LlmRequest]) (protocol.SignedMessage[protocol.LlmResponse], error) {
	now := p.nowFunc()

	if err := signing.Verify(signed, p.verifyPolicy, now); err != nil {
		return p.errorResponse(now, fmt.Sprintf("signature invalid: %v", err))
	}

	if signed.Nonce != nil && p.nonces != nil {
		seen, err := p.nonces.SeenAndRecord(ctx, signed.Signer, *signed.Nonce)
		if err != nil {
			return p.errorResponse(now, fmt.Sprintf("replay check: %v", err))
		}
		if seen {
			return p.errorResponse(now, "signature invalid: "+signing.ErrReplayed.Error())
		}
	}

	req := signed.Payload
	if err := p.validate(req, now); err != nil {
		reason := err.Error()
		if errors.Is(err, ErrModelNotServed) {
			reason = "unsupported model: " + reason
		}
		return p.errorResponse(now, reason)
	}

	key := sessionKey(signed.Signer)
	if !p.acquireSession(key) {
		return p.errorResponse(now, ErrClientBusy.Error())
	}
	defer p.releaseSession(key)

	result, err := p.backend.Generate(ctx, GenerateRequest{
		Model:        req.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		return p.errorResponse(now, fmt.Sprintf("backend error: %v", err))
	}

	totalCost, err := meterCost(result.InboundTokens, result.OutboundTokens, req.InboundPrice, req.OutboundPrice)
	if err != nil {
		return p.errorResponse(now, fmt.Sprintf("backend error: meter cost: %v", err))
	}

	resp := protocol.LlmResponse{
		Content:        result.Content,
		InboundTokens:  result.InboundTokens,
		OutboundTokens: result.OutboundTokens,
		TotalCost:      totalCost.String(),
		ModelUsed:      result.ModelUsed,
	}
	if resp.ModelUsed == "" {
		resp.ModelUsed = req.Model
	}

	signedResp, err := signing.Sign(p.id, resp, nil, now)
	if err != nil {
		return protocol.SignedMessage[protocol.LlmResponse]{}, fmt.Errorf("executor: sign response: %w", err)
	}

	clientAddr, err := signing.RecoverSigner(signed)
	if err != nil {
		// Verify already succeeded, so this can only fail if Signer itself
		// doesn't parse as an address; fall back to the claimed signer.
		log.Warn().Err(err).Msg("executor: recover signer for usage record fell back to claimed signer")
	}
	clientAddrStr := signed.Signer
	if err == nil {
		clientAddrStr = clientAddr.Hex()
	}

	p.usageQueue.Enqueue(protocol.UsageRecord{
		ClientAddress: clientAddrStr,
		Model:         req.Model,
		TokenCount:    uint32(result.InboundTokens + result.OutboundTokens),
		Timestamp:     uint64(now.Unix()),
	})

	return signedResp, nil
}

// errorResponse builds and signs an LlmResponse carrying reason in Error,
// so pipeline failures are always relayed as a signed response rather than
// a bare transport-level error.
func (p *Pipeline) errorResponse(now time.Time, reason string) (protocol.SignedMessage[protocol.LlmResponse], error) {
	signedResp, err := signing.Sign(p.id, protocol.LlmResponse{Error: &reason}, nil, now)
	if err != nil {
		return protocol.SignedMessage[protocol.LlmResponse]{}, fmt.Errorf("executor: sign error response: %w", err)
	}
	return signedResp, nil
}

func (p *Pipeline) validate(req protocol.LlmRequest, now time.Time) error {
	myAddr := p.id.Address.Hex()
	if !equalFoldAddress(req.ExecutorAddress, myAddr) {
		return ErrWrongExecutor
	}
	if req.Deadline != 0 && now.Unix() > int64(req.Deadline) {
		return ErrRequestExpired
	}
	if len(p.models) > 0 && !p.models[req.Model] {
		return ErrModelNotServed
	}
	if _, ok := new(big.Int).SetString(req.InboundPrice, 10); !ok {
		return ErrBadPrice
	}
	if _, ok := new(big.Int).SetString(req.OutboundPrice, 10); !ok {
		return ErrBadPrice
	}
	return nil
}

func equalFoldAddress(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (p *Pipeline) acquireSession(key sessionKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[key] {
		return false
	}
	p.inFlight[key] = true
	return true
}

func (p *Pipeline) releaseSession(key sessionKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
}

// meterCost computes totalCost = inboundTokens*inboundPrice +
// outboundTokens*outboundPrice using 256-bit unsigned arithmetic, never
// floats, matching the network's UINT256-wei pricing convention.
func meterCost(inboundTokens, outboundTokens uint64, inboundPrice, outboundPrice string) (*uint256.Int, error) {
	inPrice, err := parseUint256(inboundPrice)
	if err != nil {
		return nil, fmt.Errorf("inbound price: %w", err)
	}
	outPrice, err := parseUint256(outboundPrice)
	if err != nil {
		return nil, fmt.Errorf("outbound price: %w", err)
	}

	inCost := new(uint256.Int).Mul(uint256.NewInt(inboundTokens), inPrice)
	outCost := new(uint256.Int).Mul(uint256.NewInt(outboundTokens), outPrice)
	return new(uint256.Int).Add(inCost, outCost), nil
}

func parseUint256(s string) (*uint256.Int, error) {
	v, overflow := uint256.FromDecimal(s)
	if overflow {
		return nil, fmt.Errorf("value overflows uint256: %s", s)
	}
	return v, nil
}
