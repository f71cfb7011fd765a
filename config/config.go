package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"evm-swap/pkg/token"
)

// TokenEntry is one token list row from the config file.
type TokenEntry struct {
	Symbol        string `mapstructure:"symbol"`
	Address       string `mapstructure:"address"`
	Decimals      uint8  `mapstructure:"decimals"`
	Native        bool   `mapstructure:"native"`
	WrappedNative bool   `mapstructure:"wrapped_native"`
}

// Config holds the application configuration
type Config struct {
	RPCURL        string
	ChainID       int64
	RouterAddr    string
	FactoryAddr   string
	PrivateKey    string
	SlippageBps   uint32
	CallTimeout   int
	DebounceMs    int
	SimulationURL string
	HistoryFile   string
	Tokens        []TokenEntry
	// Prices is an optional symbol -> unit USD price map backing the
	// estimate shown when no on-chain route exists.
	Prices map[string]float64
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".evm-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Ethereum mainnet, Uniswap V2 by default.
	viper.SetDefault("chain_id", 1)
	viper.SetDefault("router_address", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	viper.SetDefault("factory_address", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	viper.SetDefault("slippage_bps", 50)
	viper.SetDefault("call_timeout_sec", 10)
	viper.SetDefault("debounce_ms", 500)

	viper.SetEnvPrefix("EVM_SWAP")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	// Create config struct
	cfg := &Config{
		RPCURL:        viper.GetString("rpc_url"),
		ChainID:       viper.GetInt64("chain_id"),
		RouterAddr:    viper.GetString("router_address"),
		FactoryAddr:   viper.GetString("factory_address"),
		PrivateKey:    viper.GetString("private_key"),
		SlippageBps:   viper.GetUint32("slippage_bps"),
		CallTimeout:   viper.GetInt("call_timeout_sec"),
		DebounceMs:    viper.GetInt("debounce_ms"),
		SimulationURL: viper.GetString("simulation_url"),
		HistoryFile:   viper.GetString("history_file"),
	}

	// The token list and price map come from the config file only.
	if err := viper.UnmarshalKey("tokens", &cfg.Tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token list: %w", err)
	}
	if err := viper.UnmarshalKey("prices", &cfg.Prices); err != nil {
		return nil, fmt.Errorf("failed to parse price map: %w", err)
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL not found. Set EVM_SWAP_RPC_URL or add rpc_url to a .evm-swap.yaml config file")
	}
	if !common.IsHexAddress(cfg.RouterAddr) {
		return nil, fmt.Errorf("invalid router address: %s", cfg.RouterAddr)
	}
	if !common.IsHexAddress(cfg.FactoryAddr) {
		return nil, fmt.Errorf("invalid factory address: %s", cfg.FactoryAddr)
	}

	if len(cfg.Tokens) == 0 {
		cfg.Tokens = defaultTokens()
	}

	globalConfig = cfg
	return cfg, nil
}

// defaultTokens is the built-in Ethereum mainnet token list, used when the
// config file supplies none.
func defaultTokens() []TokenEntry {
	return []TokenEntry{
		{Symbol: "ETH", Address: "0x0000000000000000000000000000000000000000", Decimals: 18, Native: true},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, WrappedNative: true},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{Symbol: "UNI", Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Decimals: 18},
	}
}

// Registry builds the token registry from the configured token list.
func (c *Config) Registry() (*token.Registry, error) {
	tokens := make([]token.Token, 0, len(c.Tokens))
	for _, e := range c.Tokens {
		if !e.Native && !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("invalid address for token %s: %s", e.Symbol, e.Address)
		}
		tokens = append(tokens, token.Token{
			Symbol:        e.Symbol,
			Address:       common.HexToAddress(e.Address),
			Decimals:      e.Decimals,
			Native:        e.Native,
			WrappedNative: e.WrappedNative,
		})
	}
	return token.NewRegistry(tokens)
}

// Router returns the router contract address.
func (c *Config) Router() common.Address { return common.HexToAddress(c.RouterAddr) }

// Factory returns the factory contract address.
func (c *Config) Factory() common.Address { return common.HexToAddress(c.FactoryAddr) }

// Timeout returns the per-call RPC timeout.
func (c *Config) Timeout() time.Duration { return time.Duration(c.CallTimeout) * time.Second }

// Debounce returns the quote recomputation debounce window.
func (c *Config) Debounce() time.Duration { return time.Duration(c.DebounceMs) * time.Millisecond }

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
