package network

import (
	"context"
	"math"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"
)

// BackoffConfig controls bootstrap-peer dial retry timing. The shape
// (initial/max/factor, exponential growth capped at max) mirrors the
// reconnect backoff used for dialing every other external collaborator in
// this stack.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoffConfig returns sane defaults for dialing bootstrap peers
// over the public internet.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2.0,
	}
}

// Bootstrap dials every configured bootstrap peer, retrying each with
// exponential backoff until it connects or ctx is cancelled, then kicks
// off the DHT's own periodic refresh. It returns once at least one
// bootstrap peer has connected, or ctx is cancelled with none connected.
func (h *Host) Bootstrap(ctx context.Context, cfg BackoffConfig) error {
	if len(h.cfg.BootstrapPeers) == 0 {
		log.Warn().Msg("network: no bootstrap peers configured, relying on DHT-only discovery")
		return h.dht.Bootstrap(ctx)
	}

	connected := make(chan struct{}, len(h.cfg.BootstrapPeers))
	for _, p := range h.cfg.BootstrapPeers {
		go h.dialWithBackoff(ctx, p, cfg, connected)
	}

	select {
	case <-connected:
	case <-ctx.Done():
		return ctx.Err()
	}

	return h.dht.Bootstrap(ctx)
}

func (h *Host) dialWithBackoff(ctx context.Context, p peer.AddrInfo, cfg BackoffConfig, connected chan<- struct{}) {
	delay := cfg.Initial
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := h.Connect(dialCtx, p)
		cancel()

		if err == nil {
			log.Info().Str("peer", p.ID.String()).Int("attempt", attempt).Msg("network: connected to bootstrap peer")
			select {
			case connected <- struct{}{}:
			default:
			}
			return
		}

		log.Warn().Err(err).Str("peer", p.ID.String()).Int("attempt", attempt).
			Dur("retry_in", delay).Msg("network: bootstrap dial failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		attempt++
		delay = time.Duration(math.Min(float64(cfg.Max), float64(delay)*cfg.Factor))
	}
}
