// Package facilitator implements the payment verification and settlement
// engine behind the /verify and /settle endpoints. It validates signed
// payment payloads, collects funds, routes them through the bridge when
// the customer pays on a different chain, and records outcomes in the
// settlement registry.
package facilitator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/bridge"
	"github.com/divi2806/x402-cross-bridge-sdk/internal/eip712"
)

// VerifyRequest is the request body for the /verify endpoint.
type VerifyRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the request body for the /settle endpoint.
type SettleRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// Interface is the facilitator API surface. Both the local engine and
// the HTTP client implement it, so resource servers can verify and
// settle against either without code changes.
type Interface interface {
	// Verify checks a payment payload against requirements without
	// moving funds. Invalid payments are reported in the response, not
	// as Go errors; errors are reserved for infrastructure failures.
	Verify(ctx context.Context, req *VerifyRequest) (*x402.VerifyResponse, error)

	// Settle executes the payment: collects funds from the payer,
	// bridges them when needed, and delivers to the merchant.
	Settle(ctx context.Context, req *SettleRequest) (*x402.SettleResponse, error)

	// Supported lists the payment kinds this facilitator accepts.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)
}

// BridgeAPI is the aggregator surface settlement depends on.
// *bridge.Client satisfies it.
type BridgeAPI interface {
	GetSwapBridgeQuote(ctx context.Context, req bridge.QuoteRequest) (*bridge.Quote, error)
	PollUntilTerminal(ctx context.Context, key string, cfg x402.PollConfig) (bridge.Status, error)
}

// LedgerAPI is the settlement registry surface. *ledger.Client satisfies it.
// The registry keys a (token, minAmount, payee) record by payment id and
// enforces token identity on settle, so both writes carry the asset.
type LedgerAPI interface {
	IsSettled(ctx context.Context, paymentID common.Hash) (bool, error)
	RegisterRequirement(ctx context.Context, paymentID common.Hash, token common.Address, minAmount *big.Int, payee common.Address) error
	MarkSettled(ctx context.Context, paymentID common.Hash, payer common.Address, amount *big.Int, token common.Address) error
}

// WalletAPI is the on-chain execution surface for a single network.
// *evm.Wallet satisfies it.
type WalletAPI interface {
	Address() common.Address
	TransferWithAuthorization(ctx context.Context, token common.Address, auth eip712.Authorization, signature string) (*types.Receipt, error)
	Permit(ctx context.Context, token common.Address, permit eip712.Permit, signature string) (*types.Receipt, error)
	Transfer(ctx context.Context, token, to common.Address, value *big.Int) (*types.Receipt, error)
	TransferFrom(ctx context.Context, token, from, to common.Address, value *big.Int) (*types.Receipt, error)
	Approve(ctx context.Context, token, spender common.Address, value *big.Int) (*types.Receipt, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	SendQuoteTransaction(ctx context.Context, to string, data string, value string) (*types.Receipt, error)
}
