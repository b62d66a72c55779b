// Package config loads node configuration from environment variables
// (prefixed LLOOM_) and an optional config file, the same viper-based
// layering the rest of this stack's ambient tooling uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IdentityConfig controls how a node derives its secp256k1/libp2p/EVM
// identity.
type IdentityConfig struct {
	PrivateKeyHex string `mapstructure:"private_key_hex"`
	PrivateKeyKMS string `mapstructure:"private_key_kms_key_id"` // if set, the raw key is unwrapped via KMS instead of read from PrivateKeyHex
	AWSRegion     string `mapstructure:"aws_region"`
}

// NetworkConfig controls the shared libp2p host every role runs.
type NetworkConfig struct {
	ListenAddrs    []string `mapstructure:"listen_addrs"`
	BootstrapPeers []string `mapstructure:"bootstrap_peers"`
	ServerMode     bool     `mapstructure:"server_mode"`
}

// ControlConfig controls the admin/control-plane gRPC service.
type ControlConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// RedisConfig controls the optional Redis-backed nonce replay store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ValidatorConfig holds settings specific to the Validator role.
type ValidatorConfig struct {
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	DisconnectAfter time.Duration `mapstructure:"disconnect_after"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// ExecutorConfig holds settings specific to the Executor role.
type ExecutorConfig struct {
	ServedModels       []string      `mapstructure:"served_models"`
	BackendURL         string        `mapstructure:"backend_url"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
	DiscoveryInterval  time.Duration `mapstructure:"discovery_interval"`
	SettlementInterval time.Duration `mapstructure:"settlement_interval"`
}

// BlockchainConfig controls the on-chain settlement sink the Executor
// submits recordUsage transactions through.
type BlockchainConfig struct {
	RPCURL             string  `mapstructure:"rpc_url"`
	ContractAddress    string  `mapstructure:"contract_address"`
	GasPriceMultiplier float64 `mapstructure:"gas_price_multiplier"`
	MaxBatchSize       int     `mapstructure:"max_batch_size"`
	ChunkSize          int     `mapstructure:"chunk_size"`
}

// ClientConfig holds settings specific to the Client role.
type ClientConfig struct {
	MaxValidatorsToQuery int           `mapstructure:"max_validators_to_query"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
}

// Config holds every role's configuration; a given binary only reads the
// sub-struct for the role it runs.
type Config struct {
	Env       string `mapstructure:"env"`
	Identity  IdentityConfig
	Network   NetworkConfig
	Control   ControlConfig
	Redis     RedisConfig
	Validator  ValidatorConfig
	Executor   ExecutorConfig
	Blockchain BlockchainConfig
	Client     ClientConfig
}

// Load reads configuration from environment variables prefixed LLOOM_ and
// an optional config file at configPath (ignored if empty or missing).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file %s: %w", configPath, err)
			}
		}
	}

	setDefaults(v)

	cfg := &Config{
		Env: v.GetString("env"),
		Identity: IdentityConfig{
			PrivateKeyHex: v.GetString("identity.private_key_hex"),
			PrivateKeyKMS: v.GetString("identity.private_key_kms_key_id"),
			AWSRegion:     v.GetString("identity.aws_region"),
		},
		Network: NetworkConfig{
			ListenAddrs:    v.GetStringSlice("network.listen_addrs"),
			BootstrapPeers: v.GetStringSlice("network.bootstrap_peers"),
			ServerMode:     v.GetBool("network.server_mode"),
		},
		Control: ControlConfig{
			SocketPath: v.GetString("control.socket_path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Validator: ValidatorConfig{
			StaleAfter:      v.GetDuration("validator.stale_after"),
			DisconnectAfter: v.GetDuration("validator.disconnect_after"),
			SweepInterval:   v.GetDuration("validator.sweep_interval"),
		},
		Executor: ExecutorConfig{
			ServedModels:       v.GetStringSlice("executor.served_models"),
			BackendURL:         v.GetString("executor.backend_url"),
			HealthCheckTimeout: v.GetDuration("executor.health_check_timeout"),
			DiscoveryInterval:  v.GetDuration("executor.discovery_interval"),
			SettlementInterval: v.GetDuration("executor.settlement_interval"),
		},
		Blockchain: BlockchainConfig{
			RPCURL:             v.GetString("blockchain.rpc_url"),
			ContractAddress:    v.GetString("blockchain.contract_address"),
			GasPriceMultiplier: v.GetFloat64("blockchain.gas_price_multiplier"),
			MaxBatchSize:       v.GetInt("blockchain.max_batch_size"),
			ChunkSize:          v.GetInt("blockchain.chunk_size"),
		},
		Client: ClientConfig{
			MaxValidatorsToQuery: v.GetInt("client.max_validators_to_query"),
			RequestTimeout:       v.GetDuration("client.request_timeout"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("identity.aws_region", "us-east-1")

	v.SetDefault("network.listen_addrs", []string{"/ip4/0.0.0.0/tcp/0"})
	v.SetDefault("network.server_mode", false)

	v.SetDefault("control.socket_path", "/var/run/lloom/control.sock")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("validator.stale_after", 90*time.Second)
	v.SetDefault("validator.disconnect_after", 300*time.Second)
	v.SetDefault("validator.sweep_interval", 30*time.Second)

	v.SetDefault("executor.health_check_timeout", 10*time.Second)
	v.SetDefault("executor.discovery_interval", time.Minute)
	v.SetDefault("executor.settlement_interval", 300*time.Second)

	v.SetDefault("blockchain.gas_price_multiplier", 1.0)
	v.SetDefault("blockchain.max_batch_size", 100)
	v.SetDefault("blockchain.chunk_size", 10)

	v.SetDefault("client.max_validators_to_query", 5)
	v.SetDefault("client.request_timeout", 5*time.Minute)
}
