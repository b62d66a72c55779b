package network

import (
	"context"
	"fmt"

	p2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog/log"

	lproto "github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/wire"
)

// RequestHandler answers an inbound RequestMessage with a ResponseMessage.
// Executors and validators register one of these via ServeRequests.
type RequestHandler func(ctx context.Context, from peer.ID, req lproto.RequestMessage) lproto.ResponseMessage

// ServeRequests registers handler on protocol.LLMProtocolID. Each inbound
// stream is read as exactly one CBOR-framed RequestMessage and answered
// with exactly one CBOR-framed ResponseMessage, then the stream is closed
// — this is a request/response protocol, not a long-lived session.
func (h *Host) ServeRequests(handler RequestHandler) {
	h.SetStreamHandler(protocol.ID(lproto.LLMProtocolID), func(s p2pnetwork.Stream) {
		defer s.Close()

		req, err := wire.ReadRequest(s)
		if err != nil {
			log.Warn().Err(err).Str("peer", s.Conn().RemotePeer().String()).Msg("network: failed to read request frame")
			s.Reset()
			return
		}

		ctx := context.Background()
		resp := handler(ctx, s.Conn().RemotePeer(), req)

		if err := wire.WriteResponse(s, resp); err != nil {
			log.Warn().Err(err).Str("peer", s.Conn().RemotePeer().String()).Msg("network: failed to write response frame")
			s.Reset()
		}
	})
}

// SendRequest opens a stream to p, writes req, reads back exactly one
// ResponseMessage, and closes the stream.
func (h *Host) SendRequest(ctx context.Context, p peer.ID, req lproto.RequestMessage) (lproto.ResponseMessage, error) {
	s, err := h.NewStream(ctx, p, protocol.ID(lproto.LLMProtocolID))
	if err != nil {
		return lproto.ResponseMessage{}, fmt.Errorf("network: open stream to %s: %w", p, err)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	if err := wire.WriteRequest(s, req); err != nil {
		s.Reset()
		return lproto.ResponseMessage{}, fmt.Errorf("network: write request: %w", err)
	}

	resp, err := wire.ReadResponse(s)
	if err != nil {
		s.Reset()
		return lproto.ResponseMessage{}, fmt.Errorf("network: read response: %w", err)
	}
	return resp, nil
}
