package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloom-network/lloom/internal/clientnode"
	"github.com/lloom-network/lloom/internal/config"
	"github.com/lloom-network/lloom/internal/identity"
	"github.com/lloom-network/lloom/internal/network"
	"github.com/lloom-network/lloom/internal/signing"
)

var configPath string

func main() {
	defer memguard.Purge()

	root := &cobra.Command{
		Use:   "client",
		Short: "Query the network for models and request inference",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars always apply)")
	root.AddCommand(listModelsCmd(), inferCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("client: fatal error")
		os.Exit(1)
	}
}

func bootstrapClient(ctx context.Context) (*clientnode.Client, *network.Host, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	id, err := identity.Load(ctx, cfg.Identity.PrivateKeyHex, cfg.Identity.PrivateKeyKMS, cfg.Identity.AWSRegion, "")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load identity: %w", err)
	}

	priv, err := id.Libp2pPrivKey()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive libp2p key: %w", err)
	}

	bootstrap, err := network.ParseMultiaddrs(cfg.Network.BootstrapPeers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse bootstrap peers: %w", err)
	}

	host, err := network.New(ctx, id, priv, network.Config{
		ListenAddrs:    cfg.Network.ListenAddrs,
		BootstrapPeers: bootstrap,
		ServerMode:     false,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create network host: %w", err)
	}

	if err := host.Bootstrap(ctx, network.DefaultBackoffConfig()); err != nil {
		log.Warn().Err(err).Msg("client: bootstrap incomplete")
	}

	client := clientnode.New(clientnode.Config{
		Identity:     id,
		Host:         host,
		VerifyPolicy: signing.ReplayWindow(protocol.MaxMessageAge),
	})

	return client, host, cfg, nil
}

func listModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models advertised by discoverable validators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, host, cfg, err := bootstrapClient(ctx)
			if err != nil {
				return err
			}
			defer host.Close()

			models, err := client.DiscoverModels(ctx, cfg.Client.MaxValidatorsToQuery)
			if err != nil {
				return fmt.Errorf("discover models: %w", err)
			}

			for _, m := range models {
				fmt.Printf("%-40s backend=%-12s context=%-8d seenFrom=%d\n", m.ModelID, m.BackendFamily, m.MaxContext, m.SeenFromValidators)
			}
			return nil
		},
	}
}

func inferCmd() *cobra.Command {
	var (
		model           string
		prompt          string
		executorNodeID  string
		executorAddress string
		inboundPrice    string
		outboundPrice   string
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Send a signed inference request directly to an executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, host, cfg, err := bootstrapClient(ctx)
			if err != nil {
				return err
			}
			defer host.Close()

			pid, err := peer.Decode(executorNodeID)
			if err != nil {
				return fmt.Errorf("decode executor node id: %w", err)
			}

			resp, err := client.RequestInference(
				ctx,
				peer.AddrInfo{ID: pid},
				executorAddress,
				model,
				prompt,
				inboundPrice,
				outboundPrice,
				clientnode.InferenceOptions{Deadline: cfg.Client.RequestTimeout},
			)
			if err != nil {
				return fmt.Errorf("request inference: %w", err)
			}

			fmt.Println(resp.Content)
			fmt.Fprintf(os.Stderr, "tokens in=%d out=%d cost=%s\n", resp.InboundTokens, resp.OutboundTokens, resp.TotalCost)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model id to request")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().StringVar(&executorNodeID, "executor-node", "", "executor's libp2p peer id")
	cmd.Flags().StringVar(&executorAddress, "executor-address", "", "executor's EVM address")
	cmd.Flags().StringVar(&inboundPrice, "inbound-price", "0", "price per inbound token, wei as decimal string")
	cmd.Flags().StringVar(&outboundPrice, "outbound-price", "0", "price per outbound token, wei as decimal string")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("prompt")
	_ = cmd.MarkFlagRequired("executor-node")
	_ = cmd.MarkFlagRequired("executor-address")

	return cmd
}
