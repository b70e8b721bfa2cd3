// Package ledger talks to the on-chain settlement registry contract.
// The registry records which payment ids have been settled so repeat
// settle calls short-circuit instead of moving funds twice.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/divi2806/x402-cross-bridge-sdk/evm"
)

const ledgerABIJSON = `[
	{"name":"registerRequirement","type":"function","inputs":[
		{"name":"paymentId","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"minAmount","type":"uint256"},
		{"name":"payee","type":"address"}],"outputs":[]},
	{"name":"settle","type":"function","inputs":[
		{"name":"paymentId","type":"bytes32"},
		{"name":"payer","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"token","type":"address"}],"outputs":[]},
	{"name":"settled","type":"function","stateMutability":"view","inputs":[
		{"name":"paymentId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]}
]`

var ledgerABI abi.ABI

func init() {
	var err error
	ledgerABI, err = abi.JSON(strings.NewReader(ledgerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid registry ABI: %v", err))
	}
}

// Client reads and writes the settlement registry through a wallet.
type Client struct {
	wallet   *evm.Wallet
	contract common.Address
	logger   *slog.Logger
}

// NewClient creates a registry client bound to the given contract.
func NewClient(wallet *evm.Wallet, contract common.Address, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{wallet: wallet, contract: contract, logger: logger}
}

// IsSettled reports whether the given payment id is already recorded as
// settled. Read errors are returned to the caller: settlement must not
// proceed on an unreadable registry.
func (c *Client) IsSettled(ctx context.Context, paymentID common.Hash) (bool, error) {
	data, err := ledgerABI.Pack("settled", [32]byte(paymentID))
	if err != nil {
		return false, fmt.Errorf("failed to pack settled call: %w", err)
	}

	out, err := c.wallet.Call(ctx, c.contract, data)
	if err != nil {
		return false, fmt.Errorf("registry read failed: %w", err)
	}

	results, err := ledgerABI.Unpack("settled", out)
	if err != nil {
		return false, fmt.Errorf("failed to unpack settled result: %w", err)
	}
	return results[0].(bool), nil
}

// RegisterRequirement records the (token, minAmount, payee) requirement
// for a payment id. A revert from an already-registered id is tolerated
// by the caller.
func (c *Client) RegisterRequirement(ctx context.Context, paymentID common.Hash, token common.Address, minAmount *big.Int, payee common.Address) error {
	data, err := ledgerABI.Pack("registerRequirement", [32]byte(paymentID), token, minAmount, payee)
	if err != nil {
		return fmt.Errorf("failed to pack registerRequirement: %w", err)
	}

	if _, err := c.wallet.SendAndWait(ctx, c.contract, nil, data); err != nil {
		return fmt.Errorf("registerRequirement failed: %w", err)
	}

	c.logger.Debug("payment requirement registered",
		"paymentId", paymentID.Hex(),
		"token", token.Hex(),
		"minAmount", minAmount.String(),
		"payee", payee.Hex())
	return nil
}

// MarkSettled records a completed settlement for the given payment id.
// The registry rejects a token that does not match the registered
// requirement.
func (c *Client) MarkSettled(ctx context.Context, paymentID common.Hash, payer common.Address, amount *big.Int, token common.Address) error {
	data, err := ledgerABI.Pack("settle", [32]byte(paymentID), payer, amount, token)
	if err != nil {
		return fmt.Errorf("failed to pack settle: %w", err)
	}

	if _, err := c.wallet.SendAndWait(ctx, c.contract, nil, data); err != nil {
		return fmt.Errorf("settle failed: %w", err)
	}

	c.logger.Info("payment marked settled",
		"paymentId", paymentID.Hex(),
		"payer", payer.Hex(),
		"amount", amount.String(),
		"token", token.Hex())
	return nil
}
