package x402

import (
	"fmt"
	"strings"
)

// Network name constants
const (
	// Mainnets
	NetworkBase     = "base"
	NetworkArbitrum = "arbitrum"
	NetworkOptimism = "optimism"
	NetworkPolygon  = "polygon"
	NetworkEthereum = "ethereum"

	// Testnets
	NetworkBaseSepolia = "base-sepolia"
)

// DefaultNetwork is the fallback destination chain when a requirement names an
// unknown network. It is the merchant settlement chain for this facilitator.
const DefaultNetwork = NetworkBase

// NativeTokenAddress is the conventional placeholder for a chain's native token
// in quote and asset fields.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// ChainConfig holds the static configuration for a supported chain.
type ChainConfig struct {
	// Network is the canonical network name (e.g., "base").
	Network string

	// ChainID is the EIP-155 chain id.
	ChainID int64

	// RPCURL is the default JSON-RPC endpoint.
	RPCURL string

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// WrappedNativeAddress is the canonical wrapped-native token (WETH/WMATIC).
	WrappedNativeAddress string

	// USDCName is the EIP-712 domain parameter "name" for USDC on this chain.
	USDCName string

	// USDCVersion is the EIP-712 domain parameter "version" for USDC on this chain.
	USDCVersion string
}

// Predefined chain configurations - Mainnets
var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		Network:              NetworkBase,
		ChainID:              8453,
		RPCURL:               "https://mainnet.base.org",
		USDCAddress:          "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		WrappedNativeAddress: "0x4200000000000000000000000000000000000006",
		USDCName:             "USD Coin",
		USDCVersion:          "2",
	}

	// ArbitrumMainnet is the configuration for Arbitrum One.
	ArbitrumMainnet = ChainConfig{
		Network:              NetworkArbitrum,
		ChainID:              42161,
		RPCURL:               "https://arb1.arbitrum.io/rpc",
		USDCAddress:          "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		WrappedNativeAddress: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		USDCName:             "USD Coin",
		USDCVersion:          "2",
	}

	// OptimismMainnet is the configuration for OP Mainnet.
	OptimismMainnet = ChainConfig{
		Network:              NetworkOptimism,
		ChainID:              10,
		RPCURL:               "https://mainnet.optimism.io",
		USDCAddress:          "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		WrappedNativeAddress: "0x4200000000000000000000000000000000000006",
		USDCName:             "USD Coin",
		USDCVersion:          "2",
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		Network:              NetworkPolygon,
		ChainID:              137,
		RPCURL:               "https://polygon-rpc.com",
		USDCAddress:          "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		WrappedNativeAddress: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
		USDCName:             "USD Coin",
		USDCVersion:          "2",
	}

	// EthereumMainnet is the configuration for Ethereum mainnet.
	EthereumMainnet = ChainConfig{
		Network:              NetworkEthereum,
		ChainID:              1,
		RPCURL:               "https://cloudflare-eth.com",
		USDCAddress:          "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		WrappedNativeAddress: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		USDCName:             "USD Coin",
		USDCVersion:          "2",
	}
)

// Predefined chain configurations - Testnets
var (
	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		Network:              NetworkBaseSepolia,
		ChainID:              84532,
		RPCURL:               "https://sepolia.base.org",
		USDCAddress:          "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		WrappedNativeAddress: "0x4200000000000000000000000000000000000006",
		USDCName:             "USDC",
		USDCVersion:          "2",
	}
)

// chainConfigByNetwork maps network names to chain configurations.
var chainConfigByNetwork = map[string]ChainConfig{
	NetworkBase:        BaseMainnet,
	NetworkArbitrum:    ArbitrumMainnet,
	NetworkOptimism:    OptimismMainnet,
	NetworkPolygon:     PolygonMainnet,
	NetworkEthereum:    EthereumMainnet,
	NetworkBaseSepolia: BaseSepolia,
}

// chainConfigByID maps EIP-155 chain ids to chain configurations.
var chainConfigByID = map[int64]ChainConfig{}

func init() {
	for _, config := range chainConfigByNetwork {
		chainConfigByID[config.ChainID] = config
	}
}

// GetChainConfig returns the chain configuration for a network name.
// Returns an error if the network is not recognized.
func GetChainConfig(network string) (ChainConfig, error) {
	config, ok := chainConfigByNetwork[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// ChainConfigOrDefault returns the chain configuration for a network name,
// falling back to DefaultNetwork when the name is unknown.
func ChainConfigOrDefault(network string) ChainConfig {
	if config, ok := chainConfigByNetwork[network]; ok {
		return config
	}
	return chainConfigByNetwork[DefaultNetwork]
}

// GetChainConfigByID returns the chain configuration for an EIP-155 chain id.
// Returns an error if the chain id is not recognized.
func GetChainConfigByID(chainID int64) (ChainConfig, error) {
	config, ok := chainConfigByID[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: chain id %d", ErrInvalidNetwork, chainID)
	}
	return config, nil
}

// GetChainID returns the EIP-155 chain id for a network name.
func GetChainID(network string) (int64, error) {
	config, err := GetChainConfig(network)
	if err != nil {
		return 0, err
	}
	return config.ChainID, nil
}

// NetworkForChainID returns the canonical network name for an EIP-155 chain id.
func NetworkForChainID(chainID int64) (string, error) {
	config, err := GetChainConfigByID(chainID)
	if err != nil {
		return "", err
	}
	return config.Network, nil
}

// SupportedNetworks returns the names of all registered networks.
func SupportedNetworks() []string {
	networks := make([]string, 0, len(chainConfigByNetwork))
	for network := range chainConfigByNetwork {
		networks = append(networks, network)
	}
	return networks
}

// IsNativeToken reports whether an asset address denotes the chain-native token.
func IsNativeToken(asset string) bool {
	return strings.EqualFold(asset, NativeTokenAddress)
}

// NewUSDCTokenConfig creates a TokenConfig for USDC on the given chain.
// This is a convenience helper; for other tokens, construct TokenConfig directly.
func NewUSDCTokenConfig(chain ChainConfig) TokenConfig {
	return TokenConfig{
		Address:  chain.USDCAddress,
		Symbol:   "USDC",
		Decimals: 6,
		Name:     chain.USDCName,
	}
}
