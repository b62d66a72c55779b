package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloom-network/lloom/internal/config"
	"github.com/lloom-network/lloom/internal/control"
	"github.com/lloom-network/lloom/internal/executor"
	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/network"
	"github.com/lloom-network/lloom/internal/noncecache"
	"github.com/lloom-network/lloom/internal/protocol"
	"github.com/lloom-network/lloom/internal/settlement"
	"github.com/lloom-network/lloom/internal/signing"
	"github.com/lloom-network/lloom/internal/wire"
)

var configPath string

func main() {
	defer memguard.Purge()

	root := &cobra.Command{
		Use:   "executor",
		Short: "Run a network executor node",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars always apply)")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("executor: fatal error")
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
	log.Info().Str("identity", id.String()).Msg("executor: starting")

	backend := executor.NewOpenAIBackend(cfg.Executor.BackendURL, "")

	healthyModels, results, err := executor.RunHealthChecks(ctx, backend, cfg.Executor.ServedModels, cfg.Executor.HealthCheckTimeout)
	if err != nil {
		return fmt.Errorf("startup health checks: %w", err)
	}
	for _, r := range results {
		log.Info().Str("model", r.Model).Bool("ok", r.OK).Msg("executor: startup health check")
	}

	var nonces noncecache.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		nonces = noncecache.NewRedisStore(rdb, "executor:nonce:", protocol.MaxMessageAge)
	} else {
		nonces = noncecache.NewLRU(100_000)
	}

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
		ServerMode:     cfg.Network.ServerMode,
	})
	if err != nil {
		return fmt.Errorf("create network host: %w", err)
	}
	defer host.Close()

	go host.Bootstrap(ctx, network.DefaultBackoffConfig())

	if err := host.Provide(ctx, protocol.RoleExecutor); err != nil {
		log.Warn().Err(err).Msg("executor: failed to advertise on dht")
	}

	usageQueue := executor.NewUsageQueue()

	pipeline := executor.New(executor.Config{
		Identity:     id,
		Backend:      backend,
		ServedModels: healthyModels,
		VerifyPolicy: signing.ReplayWindow(protocol.MaxMessageAge),
		Nonces:       nonces,
		UsageQueue:   usageQueue,
	})

	dispatcher := executor.NewDispatcher(pipeline)
	host.ServeRequests(func(ctx context.Context, from peer.ID, req protocol.RequestMessage) protocol.ResponseMessage {
		return dispatcher.Handle(ctx, from, req)
	})

	announcements, err := host.Join(protocol.TopicAnnouncements)
	if err != nil {
		return fmt.Errorf("join announcements topic: %w", err)
	}
	go announcements.Run(ctx)

	descriptors := make([]protocol.ModelDescriptor, 0, len(healthyModels))
	for _, m := range healthyModels {
		descriptors = append(descriptors, protocol.ModelDescriptor{ModelID: m, Available: true})
	}

	announcer := executor.NewAnnouncer(id, descriptors, func(ctx context.Context, msg protocol.SignedMessage[protocol.ModelAnnouncement]) error {
		data, err := wire.EncodeGossip(msg)
		if err != nil {
			return err
		}
		return announcements.Publish(ctx, data)
	})
	if err := announcer.Announce(ctx, protocol.AnnouncementInitial); err != nil {
		log.Warn().Err(err).Msg("executor: initial announcement failed")
	}

	updates, err := host.Join(protocol.TopicModelAnnouncements)
	if err != nil {
		return fmt.Errorf("join model-announcements topic: %w", err)
	}
	go updates.Run(ctx)

	discovery := executor.NewDiscovery(id, backend, func(ctx context.Context, update protocol.SignedMessage[protocol.ModelUpdate]) error {
		data, err := wire.EncodeGossip(update)
		if err != nil {
			return err
		}
		return updates.Publish(ctx, data)
	})
	go discovery.Run(ctx, cfg.Executor.DiscoveryInterval)

	sink, err := settlement.NewEthSink(ctx, cfg.Blockchain.RPCURL, cfg.Blockchain.ContractAddress, id)
	if err != nil {
		return fmt.Errorf("create settlement sink: %w", err)
	}
	settler := settlement.NewSettler(usageQueue, sink, settlement.SettlerConfig{
		MaxBatchSize:       cfg.Blockchain.MaxBatchSize,
		ChunkSize:          cfg.Blockchain.ChunkSize,
		GasPriceMultiplier: cfg.Blockchain.GasPriceMultiplier,
	})
	go settler.Run(ctx, cfg.Executor.SettlementInterval)

	controlHandler := executor.NewControlHandler(id.NodeID.String(), id.Address.Hex(), nil, usageQueue, announcer)
	controlSrv, err := control.NewServer(cfg.Control.SocketPath, controlHandler)
	if err != nil {
		return fmt.Errorf("create control server: %w", err)
	}
	go func() {
		if err := controlSrv.Serve(); err != nil {
			log.Error().Err(err).Msg("executor: control server stopped")
		}
	}()
	defer controlSrv.GracefulStop()

	log.Info().Strs("models", healthyModels).Msg("executor: ready")
	<-ctx.Done()
	log.Info().Msg("executor: shutting down")
	return nil
}
