// Command facilitatord runs an x402 payment facilitator: an HTTP
// service that verifies signed payments and settles them, bridging
// funds across chains when the payer and merchant live on different
// networks.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/bridge"
	"github.com/divi2806/x402-cross-bridge-sdk/evm"
	"github.com/divi2806/x402-cross-bridge-sdk/facilitator"
	x402http "github.com/divi2806/x402-cross-bridge-sdk/http"
	"github.com/divi2806/x402-cross-bridge-sdk/ledger"
)

func main() {
	fs := flag.NewFlagSet("facilitatord", flag.ExitOnError)
	port := fs.String("port", envOrDefault("PORT", "8080"), "Server port")
	networks := fs.String("networks", envOrDefault("NETWORKS", "base"), "Comma-separated networks to operate on (e.g., base,arbitrum)")
	bridgeURL := fs.String("bridge-url", envOrDefault("BRIDGE_URL", ""), "Bridge aggregator base URL (default: Relay public API)")
	ledgerContract := fs.String("ledger-contract", envOrDefault("LEDGER_CONTRACT", ""), "Settlement ledger contract address (idempotency disabled when empty)")
	ledgerNetwork := fs.String("ledger-network", envOrDefault("LEDGER_NETWORK", ""), "Network the ledger contract is deployed on (default: first network)")
	verbose := fs.Bool("verbose", false, "Enable debug logging")

	_ = fs.Parse(os.Args[1:])

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	privateKey := os.Getenv("FACILITATOR_PRIVATE_KEY")
	if privateKey == "" {
		fmt.Fprintln(os.Stderr, "Error: FACILITATOR_PRIVATE_KEY is required")
		os.Exit(1)
	}

	wallets := make(map[string]facilitator.WalletAPI)
	evmWallets := make(map[string]*evm.Wallet)
	for _, network := range strings.Split(*networks, ",") {
		network = strings.TrimSpace(network)
		if network == "" {
			continue
		}
		wallet, err := connectWallet(network, privateKey, logger)
		if err != nil {
			logger.Error("failed to connect wallet", "network", network, "error", err)
			os.Exit(1)
		}
		wallets[network] = wallet
		evmWallets[network] = wallet
		logger.Info("wallet connected", "network", network, "address", wallet.Address().Hex())
	}
	if len(wallets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one network is required")
		os.Exit(1)
	}

	cfg := facilitator.Config{
		Wallets: wallets,
		Bridge: &bridge.Client{
			BaseURL: *bridgeURL,
			Logger:  logger,
		},
		Logger: logger,
	}

	if *ledgerContract != "" {
		network := *ledgerNetwork
		if network == "" {
			network = strings.TrimSpace(strings.Split(*networks, ",")[0])
		}
		wallet, ok := evmWallets[network]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: ledger network %q is not among the operated networks\n", network)
			os.Exit(1)
		}
		if !common.IsHexAddress(*ledgerContract) {
			fmt.Fprintf(os.Stderr, "Error: invalid ledger contract address %q\n", *ledgerContract)
			os.Exit(1)
		}
		cfg.Ledger = ledger.NewClient(wallet, common.HexToAddress(*ledgerContract), logger)
		logger.Info("settlement ledger enabled", "network", network, "contract", *ledgerContract)
	} else {
		logger.Warn("no settlement ledger configured; settle idempotency is per-process only")
	}

	service, err := facilitator.New(cfg)
	if err != nil {
		logger.Error("failed to build facilitator", "error", err)
		os.Exit(1)
	}

	server := x402http.NewServer(service, logger)
	if err := server.Run(":" + *port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// connectWallet dials the network's JSON-RPC endpoint and wraps the
// operator key in a sending wallet. RPC_URL_<NETWORK> overrides the
// chain's default endpoint.
func connectWallet(network, privateKey string, logger *slog.Logger) (*evm.Wallet, error) {
	chain, err := x402.GetChainConfig(network)
	if err != nil {
		return nil, err
	}

	rpcURL := os.Getenv("RPC_URL_" + strings.ToUpper(network))
	if rpcURL == "" {
		rpcURL = chain.RPCURL
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}

	return evm.NewWallet(privateKey, chain.ChainID, client, logger)
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
