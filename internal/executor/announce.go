package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// AnnouncePublishFunc sends a signed ModelAnnouncement out to the network,
// typically a gossipsub Topic.Publish wired to the announcements topic.
type AnnouncePublishFunc func(ctx context.Context, announcement protocol.SignedMessage[protocol.ModelAnnouncement]) error

// Announcer builds and publishes this executor's ModelAnnouncement, at
// startup (Initial) and on demand (ForceAnnounce via the control plane).
type Announcer struct {
	id      *identity.Identity
	models  []protocol.ModelDescriptor
	publish AnnouncePublishFunc
	nowFunc func() time.Time
	nonce   atomic.Uint64
}

// NewAnnouncer creates an Announcer for the given model set.
func NewAnnouncer(id *identity.Identity, models []protocol.ModelDescriptor, publish AnnouncePublishFunc) *Announcer {
	return &Announcer{id: id, models: models, publish: publish, nowFunc: time.Now}
}

// Announce signs and publishes a ModelAnnouncement of the given kind.
func (a *Announcer) Announce(ctx context.Context, kind protocol.AnnouncementKind) error {
	nonce := a.nonce.Add(1)
	now := a.nowFunc()

	msg := protocol.ModelAnnouncement{
		NodeID:          a.id.NodeID.String(),
		ExecutorAddress: a.id.Address.Hex(),
		Models:          a.models,
		Kind:            kind,
		Timestamp:       uint64(now.Unix()),
		Nonce:           nonce,
		ProtocolVersion: 1,
	}

	signed, err := signing.Sign(a.id, msg, &nonce, now)
	if err != nil {
		return fmt.Errorf("executor: sign announcement: %w", err)
	}
	if err := a.publish(ctx, signed); err != nil {
		return fmt.Errorf("executor: publish announcement: %w", err)
	}
	return nil
}
