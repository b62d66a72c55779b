package executor

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/protocol"
)

// Dispatcher adapts a Pipeline to the network-facing RequestHandler shape,
// the executor-side counterpart to internal/validator.Dispatcher.
type Dispatcher struct {
	pipeline *Pipeline
}

// NewDispatcher creates a Dispatcher over pipeline.
func NewDispatcher(pipeline *Pipeline) *Dispatcher {
	return &Dispatcher{pipeline: pipeline}
}

// Handle answers a RequestMessage, matching internal/network.RequestHandler.
// Only KindSignedLlmRequest is supported; anything else isn't an inference
// request at all and is rejected with an unsigned acknowledgment. Every
// failure the pipeline itself can attribute to the request (signature,
// model support, backend) comes back as a signed LlmResponse with Error
// set, never as an acknowledgment — see Pipeline.HandleSigned.
func (d *Dispatcher) Handle(ctx context.Context, _ peer.ID, req protocol.RequestMessage) protocol.ResponseMessage {
	if req.Kind != protocol.KindSignedLlmRequest || req.SignedLlmRequest == nil {
		return ackError("executor only serves signed inference requests")
	}

	resp, err := d.pipeline.HandleSigned(ctx, *req.SignedLlmRequest)
	if err != nil {
		log.Error().Err(err).Msg("executor: could not sign error response")
		return ackError(err.Error())
	}
	if resp.Payload.Error != nil {
		log.Warn().Str("reason", *resp.Payload.Error).Msg("executor: request pipeline rejected request")
	}
	return protocol.NewSignedLlmResponseMessage(resp)
}

func ackError(reason string) protocol.ResponseMessage {
	r := reason
	return protocol.NewAcknowledgmentResponseMessage(protocol.SignedMessage[protocol.AcknowledgmentResponse]{
		Payload: protocol.AcknowledgmentResponse{Accepted: false, Reason: &r},
	})
}
