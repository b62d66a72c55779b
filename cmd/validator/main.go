package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloom-network/lloom/internal/config"
	"github.com/lloom-network/lloom/internal/control"
	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/network"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/signing"
	"github.com/lloom-network/lloom/internal/validator"
	"github.com/lloom-network/lloom/internal/wire"
)

var configPath string

func main() {
	defer memguard.Purge()

	root := &cobra.Command{
		Use:   "validator",
		Short: "Run a network validator node",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars always apply)")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("validator: fatal error")
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	id, err := identity.Load(ctx, cfg.Identity.PrivateKeyHex, cfg.Identity.PrivateKeyKMS, cfg.Identity.AWSRegion, "")
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info().Str("identity", id.String()).Msg("validator: starting")

	priv, err := id.Libp2pPrivKey()
	if err != nil {
		return fmt.Errorf("derive libp2p key: %w", err)
	}

	bootstrap, err := network.ParseMultiaddrs(cfg.Network.BootstrapPeers)
	if err != nil {
		return fmt.Errorf("parse bootstrap peers: %w", err)
	}

	host, err := network.New(ctx, id, priv, network.Config{
		ListenAddrs:    cfg.Network.ListenAddrs,
		BootstrapPeers: bootstrap,
		ServerMode:     true,
	})
	if err != nil {
		return fmt.Errorf("create network host: %w", err)
	}
	defer host.Close()

	go host.Bootstrap(ctx, network.DefaultBackoffConfig())

	if err := host.Provide(ctx, protocol.RoleValidator); err != nil {
		log.Warn().Err(err).Msg("validator: failed to advertise on dht")
	}

	sweepCfg := validator.SweepConfig{
		StaleAfter:      cfg.Validator.StaleAfter,
		DisconnectAfter: cfg.Validator.DisconnectAfter,
		SweepInterval:   cfg.Validator.SweepInterval,
	}
	registry := validator.NewRegistry(sweepCfg)

	announcements, err := host.Join(protocol.TopicAnnouncements)
	if err != nil {
		return fmt.Errorf("join announcements topic: %w", err)
	}
	go announcements.Run(ctx)
	go consumeAnnouncements(ctx, registry, announcements.Subscribe())

	dispatcher := validator.NewDispatcher(id, registry, signing.ReplayWindow(protocol.MaxMessageAge))
	host.ServeRequests(func(_ context.Context, from peer.ID, req protocol.RequestMessage) protocol.ResponseMessage {
		return dispatcher.Handle(from, req)
	})

	go runSweepLoop(ctx, registry, sweepCfg.SweepInterval)

	controlHandler := validator.NewControlHandler(registry, id.NodeID.String(), id.Address.Hex(), nil)
	controlSrv, err := control.NewServer(cfg.Control.SocketPath, controlHandler)
	if err != nil {
		return fmt.Errorf("create control server: %w", err)
	}
	go func() {
		if err := controlSrv.Serve(); err != nil {
			log.Error().Err(err).Msg("validator: control server stopped")
		}
	}()
	defer controlSrv.GracefulStop()

	log.Info().Msg("validator: ready")
	<-ctx.Done()
	log.Info().Msg("validator: shutting down")
	return nil
}

func runSweepLoop(ctx context.Context, registry *validator.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Sweep()
		}
	}
}

func consumeAnnouncements(ctx context.Context, registry *validator.Registry, ch <-chan []byte) {
	policy := signing.ReplayWindow(protocol.MaxMessageAge)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var msg protocol.SignedMessage[protocol.ModelAnnouncement]
			if err := wire.DecodeGossip(data, &msg); err != nil {
				log.Warn().Err(err).Msg("validator: malformed announcement gossip message")
				continue
			}
			if err := registry.VerifyAndIngest(msg, policy); err != nil {
				log.Warn().Err(err).Str("nodeId", msg.Payload.NodeID).Msg("validator: rejected announcement")
			}
		}
	}
}
