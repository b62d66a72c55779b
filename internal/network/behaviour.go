// Package network assembles the composite libp2p host used by every node
// role: a Kademlia DHT for discovery, gossipsub for broadcast announcements,
// and a CBOR-framed request/response stream protocol for direct
// client-executor-validator exchanges.
package network

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/identity"
	lproto "github.com/lloom-network/lloom/internal/protocol"
)

// Config controls how the host binds and discovers peers.
type Config struct {
	ListenAddrs    []string
	BootstrapPeers []peer.AddrInfo
	ServerMode     bool // validators run in DHT server mode; clients/executors may stay as clients
}

// Host wraps a libp2p host together with its Kademlia DHT and gossipsub
// router, and the CBOR request/response handler registered on
// protocol.LLMProtocolID.
type Host struct {
	host    host.Host
	dht     *dht.IpfsDHT
	pubsub  *pubsub.PubSub
	cfg     Config
	stopped chan struct{}
}

// New builds and starts a composite Host bound to id's derived libp2p
// keypair. The returned Host is not yet connected to any bootstrap peer —
// call Bootstrap to do that with backoff.
func New(ctx context.Context, id *identity.Identity, priv libp2pcrypto.PrivKey, cfg Config) (*Host, error) {
	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("network: create libp2p host: %w", err)
	}

	dhtMode := dht.ModeClient
	if cfg.ServerMode {
		dhtMode = dht.ModeServer
	}
	kad, err := dht.New(ctx, h, dht.Mode(dhtMode))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("network: create kademlia dht: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("network: create gossipsub: %w", err)
	}

	return &Host{
		host:    h,
		dht:     kad,
		pubsub:  ps,
		cfg:     cfg,
		stopped: make(chan struct{}),
	}, nil
}

// ID returns the underlying libp2p peer id.
func (h *Host) ID() peer.ID { return h.host.ID() }

// Libp2pHost exposes the raw host for callers that need to register stream
// handlers directly (see internal/network/reqresp.go).
func (h *Host) Libp2pHost() host.Host { return h.host }

// DHT exposes the Kademlia DHT for Provide/FindProviders calls.
func (h *Host) DHT() *dht.IpfsDHT { return h.dht }

// PubSub exposes the gossipsub router for topic join/publish/subscribe.
func (h *Host) PubSub() *pubsub.PubSub { return h.pubsub }

// Close tears down the gossipsub router, DHT, and underlying host.
func (h *Host) Close() error {
	close(h.stopped)
	if err := h.dht.Close(); err != nil {
		log.Warn().Err(err).Msg("network: error closing dht")
	}
	return h.host.Close()
}

// roleCID derives the content id used as the DHT discovery key for a
// ServiceRole, matching the original implementation's "lloom/<role>"
// Kademlia key namespacing (protocol.ServiceRole.KadKey).
func roleCID(role lproto.ServiceRole) (cid.Cid, error) {
	hash, err := mh.Sum(role.KadKey(), mh.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("network: hash role key: %w", err)
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}

// Provide announces this node as a provider of role on the DHT. Executors
// call this with RoleExecutor at startup; validators with RoleValidator.
func (h *Host) Provide(ctx context.Context, role lproto.ServiceRole) error {
	c, err := roleCID(role)
	if err != nil {
		return err
	}
	if err := h.dht.Provide(ctx, c, true); err != nil {
		return fmt.Errorf("network: provide %s: %w", role, err)
	}
	return nil
}

// FindProviders looks up peers advertising role on the DHT, returning up
// to limit results.
func (h *Host) FindProviders(ctx context.Context, role lproto.ServiceRole, limit int) ([]peer.AddrInfo, error) {
	c, err := roleCID(role)
	if err != nil {
		return nil, err
	}
	findCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var out []peer.AddrInfo
	for info := range h.dht.FindProvidersAsync(findCtx, c, limit) {
		out = append(out, info)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Connect dials a peer directly, used both for bootstrap and for opening a
// reqresp stream to a peer discovered only by ID via the DHT.
func (h *Host) Connect(ctx context.Context, info peer.AddrInfo) error {
	return h.host.Connect(ctx, info)
}

// SetStreamHandler registers a handler for the given protocol ID on the
// underlying host — used by internal/network/reqresp.go.
func (h *Host) SetStreamHandler(pid protocol.ID, handler network.StreamHandler) {
	h.host.SetStreamHandler(pid, handler)
}

// NewStream opens a new stream to p speaking pid.
func (h *Host) NewStream(ctx context.Context, p peer.ID, pid protocol.ID) (network.Stream, error) {
	return h.host.NewStream(ctx, p, pid)
}

// ParseMultiaddrs is a small helper for turning config strings into
// peer.AddrInfo bootstrap entries.
func ParseMultiaddrs(addrs []string) ([]peer.AddrInfo, error) {
	var infos []peer.AddrInfo
	for _, a := range addrs {
		maddr, err := ma.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("network: parse multiaddr %q: %w", a, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return nil, fmt.Errorf("network: extract peer info from %q: %w", a, err)
		}
		infos = append(infos, *info)
	}
	return infos, nil
}
