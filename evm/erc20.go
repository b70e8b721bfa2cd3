package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/internal/eip712"
)

// erc20ABIJSON covers the ERC-20 surface settlement uses: gasless
// collection (EIP-3009 and EIP-2612), custodial transfer and approvals.
const erc20ABIJSON = `[
	{"name":"transferWithAuthorization","type":"function","inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"validAfter","type":"uint256"},
		{"name":"validBefore","type":"uint256"},
		{"name":"nonce","type":"bytes32"},
		{"name":"v","type":"uint8"},
		{"name":"r","type":"bytes32"},
		{"name":"s","type":"bytes32"}],"outputs":[]},
	{"name":"permit","type":"function","inputs":[
		{"name":"owner","type":"address"},
		{"name":"spender","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"deadline","type":"uint256"},
		{"name":"v","type":"uint8"},
		{"name":"r","type":"bytes32"},
		{"name":"s","type":"bytes32"}],"outputs":[]},
	{"name":"transfer","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","inputs":[
		{"name":"spender","type":"address"},
		{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"},
		{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var erc20ABI abi.ABI

// MaxUint256 is the unlimited-approval sentinel value.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("evm: invalid erc20 ABI: %v", err))
	}
}

// SplitSignature splits a 65-byte signature into its v, r, s components,
// normalizing v to the 27/28 convention contracts expect.
func SplitSignature(signature string) (v uint8, r, s [32]byte, err error) {
	sig, decodeErr := eip712.DecodeSignature(signature)
	if decodeErr != nil {
		err = decodeErr
		return
	}

	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return
}

// TransferWithAuthorization executes an EIP-3009 gasless transfer on the
// given token, moving funds from the payer using their signature.
func (w *Wallet) TransferWithAuthorization(ctx context.Context, token common.Address, auth eip712.Authorization, signature string) (*types.Receipt, error) {
	v, r, s, err := SplitSignature(signature)
	if err != nil {
		return nil, err
	}

	data, err := erc20ABI.Pack("transferWithAuthorization",
		auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transferWithAuthorization: %w", err)
	}

	return w.SendAndWait(ctx, token, nil, data)
}

// Permit executes an EIP-2612 permit on the given token, granting the
// spender an allowance using the owner's signature.
func (w *Wallet) Permit(ctx context.Context, token common.Address, permit eip712.Permit, signature string) (*types.Receipt, error) {
	v, r, s, err := SplitSignature(signature)
	if err != nil {
		return nil, err
	}

	data, err := erc20ABI.Pack("permit",
		permit.Owner, permit.Spender, permit.Value, permit.Deadline, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack permit: %w", err)
	}

	return w.SendAndWait(ctx, token, nil, data)
}

// Transfer sends tokens from the wallet's own balance.
func (w *Wallet) Transfer(ctx context.Context, token, to common.Address, value *big.Int) (*types.Receipt, error) {
	data, err := erc20ABI.Pack("transfer", to, value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return w.SendAndWait(ctx, token, nil, data)
}

// TransferFrom pulls tokens from a holder that has approved the wallet.
func (w *Wallet) TransferFrom(ctx context.Context, token, from, to common.Address, value *big.Int) (*types.Receipt, error) {
	data, err := erc20ABI.Pack("transferFrom", from, to, value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	return w.SendAndWait(ctx, token, nil, data)
}

// Approve grants the spender an allowance on the given token.
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, value *big.Int) (*types.Receipt, error) {
	data, err := erc20ABI.Pack("approve", spender, value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return w.SendAndWait(ctx, token, nil, data)
}

// Allowance reads the current allowance granted by owner to spender.
func (w *Wallet) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}

	out, err := w.Call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}

	results, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack allowance: %w", err)
	}
	return results[0].(*big.Int), nil
}

// SendQuoteTransaction executes a bridge route's origin-chain
// transaction as returned by the quote API.
func (w *Wallet) SendQuoteTransaction(ctx context.Context, to string, data string, value string) (*types.Receipt, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid route target address: %s", to)
	}

	callData, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid route calldata: %w", err)
	}

	txValue := big.NewInt(0)
	if value != "" && value != "0" {
		parsed, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid route value %s", x402.ErrInvalidAmount, value)
		}
		txValue = parsed
	}

	return w.SendAndWait(ctx, common.HexToAddress(to), txValue, callData)
}
