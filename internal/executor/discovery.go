package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
)

// PublishFunc sends a signed ModelUpdate out to the network — typically
// internal/network's gossipsub Topic.Publish wired to the models topic.
type PublishFunc func(ctx context.Context, update protocol.SignedMessage[protocol.ModelUpdate]) error

// Discovery polls a backend's ModelLister on an interval, diffs the result
// against the last known set, and publishes an incremental ModelUpdate
// whenever models are added or removed. Nothing is published when nothing
// changed — an idle backend produces no network traffic.
type Discovery struct {
	id      *identity.Identity
	lister  ModelLister
	publish PublishFunc
	nowFunc func() time.Time

	mu      sync.Mutex
	known   map[string]bool
	nonce   uint64
}

// NewDiscovery creates a Discovery for one executor identity and backend.
func NewDiscovery(id *identity.Identity, lister ModelLister, publish PublishFunc) *Discovery {
	return &Discovery{
		id:      id,
		lister:  lister,
		publish: publish,
		nowFunc: time.Now,
		known:   make(map[string]bool),
	}
}

// Run polls at the given interval until ctx is cancelled, publishing a
// ModelUpdate for every poll that finds a change. It polls once
// immediately before entering the ticker loop.
func (d *Discovery) Run(ctx context.Context, interval time.Duration) {
	d.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Discovery) poll(ctx context.Context) {
	models, err := d.lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("executor: model discovery poll failed")
		return
	}

	added, removed := d.diff(models)
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	update := protocol.ModelUpdate{
		NodeID:          d.id.NodeID.String(),
		ExecutorAddress: d.id.Address.Hex(),
		Removed:         removed,
		Timestamp:       uint64(d.nowFunc().Unix()),
	}
	for _, m := range added {
		update.Added = append(update.Added, protocol.ModelDescriptor{ModelID: m, Available: true})
	}

	d.mu.Lock()
	d.nonce++
	nonce := d.nonce
	d.mu.Unlock()
	update.Nonce = nonce

	signed, err := signing.Sign(d.id, update, &nonce, d.nowFunc())
	if err != nil {
		log.Error().Err(err).Msg("executor: sign model update")
		return
	}

	if err := d.publish(ctx, signed); err != nil {
		log.Error().Err(err).Msg("executor: publish model update")
		return
	}

	log.Info().Strs("added", added).Strs("removed", removed).Msg("executor: published model update")
}

// diff updates d.known in place and returns the sorted added/removed model
// IDs relative to the previous call.
func (d *Discovery) diff(models []string) (added, removed []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := make(map[string]bool, len(models))
	for _, m := range models {
		current[m] = true
		if !d.known[m] {
			added = append(added, m)
		}
	}
	for m := range d.known {
		if !current[m] {
			removed = append(removed, m)
		}
	}
	d.known = current

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
