package validator

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// Dispatcher answers inbound RequestMessages over the reqresp protocol on
// behalf of one validator identity, the network-facing counterpart to
// Registry's in-process ingest/query methods.
type Dispatcher struct {
	id       *identity.Identity
	registry *Registry
	policy   signing.VerificationConfig
	nonce    uint64
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(id *identity.Identity, registry *Registry, policy signing.VerificationConfig) *Dispatcher {
	return &Dispatcher{id: id, registry: registry, policy: policy}
}

// Handle answers a RequestMessage, matching internal/network.RequestHandler.
func (d *Dispatcher) Handle(_ peer.ID, req protocol.RequestMessage) protocol.ResponseMessage {
	now := time.Now()

	switch req.Kind {
	case protocol.KindModelQuery:
		if req.ModelQuery == nil {
			return ackError("missing modelQuery payload")
		}
		if err := signing.Verify(*req.ModelQuery, d.policy, now); err != nil {
			log.Warn().Err(err).Msg("validator: rejected unverifiable query")
			return ackError("signature verification failed")
		}
		resp, err := d.registry.HandleQuery(req.ModelQuery.Payload, uint64(now.Unix()))
		if err != nil {
			log.Warn().Err(err).Msg("validator: query handling failed")
			return ackError(err.Error())
		}
		signed, err := d.sign(resp)
		if err != nil {
			log.Error().Err(err).Msg("validator: sign query response")
			return ackError("internal signing error")
		}
		return protocol.NewModelQueryResponseMessage(signed)

	case protocol.KindModelAnnouncement:
		if req.ModelAnnouncement == nil {
			return ackError("missing modelAnnouncement payload")
		}
		err := d.registry.VerifyAndIngest(*req.ModelAnnouncement, d.policy)
		return d.acknowledge(req.ModelAnnouncement.Payload.Nonce, err)

	case protocol.KindModelUpdate:
		if req.ModelUpdate == nil {
			return ackError("missing modelUpdate payload")
		}
		err := d.applyUpdate(*req.ModelUpdate, now)
		return d.acknowledge(req.ModelUpdate.Payload.Nonce, err)

	default:
		return ackError("unsupported request kind for validator")
	}
}

func (d *Dispatcher) applyUpdate(msg protocol.SignedMessage[protocol.ModelUpdate], now time.Time) error {
	if err := signing.Verify(msg, d.policy, now); err != nil {
		return err
	}
	u := msg.Payload
	announcement := protocol.SignedMessage[protocol.ModelAnnouncement]{
		Payload: protocol.ModelAnnouncement{
			NodeID:          u.NodeID,
			ExecutorAddress: u.ExecutorAddress,
			Models:          u.Added,
			Kind:            protocol.AnnouncementUpdate,
			Timestamp:       u.Timestamp,
			Nonce:           u.Nonce,
			ProtocolVersion: 1,
		},
		Signer:    msg.Signer,
		Signature: msg.Signature,
		Timestamp: msg.Timestamp,
		Nonce:     msg.Nonce,
	}
	// ModelUpdate's Added/Removed are diff-shaped while HandleAnnouncement
	// expects a full replace; merge against the existing record first.
	if existing, ok := d.registry.Get(u.NodeID); ok {
		merged := make(map[string]protocol.ModelDescriptor, len(existing.Models))
		for id, m := range existing.Models {
			merged[id] = m
		}
		for _, id := range u.Removed {
			delete(merged, id)
		}
		for _, m := range u.Added {
			merged[id2(m)] = m
		}
		models := make([]protocol.ModelDescriptor, 0, len(merged))
		for _, m := range merged {
			models = append(models, m)
		}
		announcement.Payload.Models = models
	}
	return d.registry.HandleAnnouncement(announcement)
}

func id2(m protocol.ModelDescriptor) string { return m.ModelID }

func (d *Dispatcher) sign(resp protocol.ModelQueryResponse) (protocol.SignedMessage[protocol.ModelQueryResponse], error) {
	d.nonce++
	return signing.Sign(d.id, resp, &d.nonce, time.Now())
}

func (d *Dispatcher) acknowledge(inReplyTo uint64, err error) protocol.ResponseMessage {
	ack := protocol.AcknowledgmentResponse{
		InReplyToNonce: inReplyTo,
		Accepted:       err == nil,
		Timestamp:      uint64(time.Now().Unix()),
	}
	if err != nil {
		reason := err.Error()
		ack.Reason = &reason
	}
	d.nonce++
	signed, signErr := signing.Sign(d.id, ack, &d.nonce, time.Now())
	if signErr != nil {
		log.Error().Err(signErr).Msg("validator: sign acknowledgment")
		return ackError("internal signing error")
	}
	return protocol.NewAcknowledgmentResponseMessage(signed)
}

// ackError builds an unsigned rejection acknowledgment for malformed
// requests — there is no payload worth a validator signature here, the
// caller already knows the request it sent was invalid.
func ackError(reason string) protocol.ResponseMessage {
	r := reason
	return protocol.NewAcknowledgmentResponseMessage(protocol.SignedMessage[protocol.AcknowledgmentResponse]{
		Payload: protocol.AcknowledgmentResponse{Accepted: false, Reason: &r, Timestamp: uint64(time.Now().Unix())},
	})
}
