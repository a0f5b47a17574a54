// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is swapd's on-disk configuration, loaded from a YAML file and then
// overlaid with any SWAPD_-prefixed environment variables — the file holds
// the node's topology and tunables, env vars hold the handful of operators
// never want to leave sitting in a file on disk (gRPC macaroon paths, the
// intermediary's signing key).
type Config struct {
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"`
	DataDir     string `yaml:"data_dir" envconfig:"DATA_DIR"`
	RPCAddress  string `yaml:"rpc_address" envconfig:"RPC_ADDRESS"`

	SolanaRPCEndpoint string `yaml:"solana_rpc_endpoint" envconfig:"SOLANA_RPC_ENDPOINT"`
	SolanaWSEndpoint  string `yaml:"solana_ws_endpoint" envconfig:"SOLANA_WS_ENDPOINT"`
	EscrowProgramID   string `yaml:"escrow_program_id" envconfig:"ESCROW_PROGRAM_ID"`
	FeeRate           string `yaml:"fee_rate" envconfig:"FEE_RATE"`
	SignerKeyFile     string `yaml:"signer_key_file" envconfig:"SIGNER_KEY_FILE"`

	BitcoinRPCHost     string `yaml:"bitcoin_rpc_host" envconfig:"BITCOIN_RPC_HOST"`
	BitcoinRPCUser     string `yaml:"bitcoin_rpc_user" envconfig:"BITCOIN_RPC_USER"`
	BitcoinRPCPass     string `yaml:"bitcoin_rpc_pass" envconfig:"BITCOIN_RPC_PASS"`
	BitcoinDepositXpub string `yaml:"bitcoin_deposit_xpub" envconfig:"BITCOIN_DEPOSIT_XPUB"`

	LndHost         string `yaml:"lnd_host" envconfig:"LND_HOST"`
	LndTLSCertFile  string `yaml:"lnd_tls_cert_file" envconfig:"LND_TLS_CERT_FILE"`
	LndMacaroonFile string `yaml:"lnd_macaroon_file" envconfig:"LND_MACAROON_FILE"`

	Directions []DirectionConfig `yaml:"directions"`
}

// DirectionConfig is one entry of the node's per-direction, per-token offer
// book (spec.md §4.H's per-direction tunables, repeated per chain/token
// pair the node is willing to quote).
type DirectionConfig struct {
	Direction     string `yaml:"direction"`
	ChainID       uint64 `yaml:"chain_id"`
	Token         string `yaml:"token"`
	TokenDecimals uint8  `yaml:"token_decimals"`
	MinAmount     string `yaml:"min_amount"`
	MaxAmount     string `yaml:"max_amount"`
	FeeFraction   string `yaml:"fee_fraction"`
	CLTVDelta     uint32 `yaml:"cltv_delta,omitempty"`
}

const configFileName = "config.yaml"

// defaultConfig returns the config a fresh data directory is seeded with.
func defaultConfig(dataDir string) *Config {
	return &Config{
		Environment:       "development",
		DataDir:           dataDir,
		RPCAddress:        "127.0.0.1:5000",
		SolanaRPCEndpoint: "http://127.0.0.1:8899",
		SolanaWSEndpoint:  "ws://127.0.0.1:8900",
		FeeRate:           "1000",
		BitcoinRPCHost:    "127.0.0.1:18443",
		LndHost:           "127.0.0.1:10009",
	}
}

// loadConfig reads <dataDir>/config.yaml, creating it with defaults if
// absent, then overlays SWAPD_-prefixed environment variables.
func loadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, configFileName)

	cfg := defaultConfig(dataDir)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := saveConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("swapd: failed to write default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("swapd: failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("swapd: failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process("swapd", cfg); err != nil {
		return nil, fmt.Errorf("swapd: failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
