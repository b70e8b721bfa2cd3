// Package x402 implements the x402 HTTP-402 payment protocol for a
// cross-chain facilitator.
//
// A customer pays with whatever they hold — a native-token transfer proof,
// an ERC-2612 permit, or an EIP-3009 transfer authorization — and the
// facilitator collects, swaps/bridges through an external liquidity network,
// and settles so the merchant always receives a stablecoin on a single
// destination chain.
//
// Import path: github.com/divi2806/x402-cross-bridge-sdk
package x402

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Protocol version constant
const X402Version = 1

// SchemeExact is the only payment scheme the facilitator supports.
const SchemeExact = "exact"

// PaymentRequirements defines what the merchant demands for a resource.
// Immutable once issued in a 402 response; regenerated per request.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the destination network name (e.g., "base").
	Network string `json:"network"`

	// MaxAmountRequired is the minimum acceptable amount in atomic units,
	// encoded as a decimal string.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the destination token contract address.
	Asset string `json:"asset"`

	// PayTo is the merchant's recipient address on the destination chain.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// SourceNetwork optionally hints which chain the customer pays from.
	SourceNetwork string `json:"sourceNetwork,omitempty"`

	// SourceAsset optionally hints which token the customer pays with.
	SourceAsset string `json:"sourceAsset,omitempty"`

	// Extra carries EIP-712 domain metadata overrides: "name", "version",
	// "verifyingContract", and the facilitator spender address under
	// "facilitator".
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentMethod identifies which payment variant a payload carries.
// The orchestrator switches exhaustively on this type; adding a fourth
// scheme is a compile-visible change.
type PaymentMethod int

const (
	// MethodUnknown means no variant (or more than one) is populated.
	MethodUnknown PaymentMethod = iota
	// MethodNative is a native-token transfer proven by a transaction hash.
	MethodNative
	// MethodPermit is an ERC-2612 permit signature.
	MethodPermit
	// MethodAuthorization is an EIP-3009 transferWithAuthorization signature.
	MethodAuthorization
)

// String returns the method name used in logs and events.
func (m PaymentMethod) String() string {
	switch m {
	case MethodNative:
		return "native"
	case MethodPermit:
		return "permit"
	case MethodAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// NativePayment proves a native-token payment already sent on a source chain.
type NativePayment struct {
	// From is the payer's address.
	From string `json:"from"`

	// TxHash is the source-chain transaction hash of the payment.
	TxHash string `json:"txHash"`

	// Amount is the paid amount in atomic units (wei).
	Amount string `json:"amount"`

	// ChainID is the source chain id the payment was sent on.
	ChainID int64 `json:"chainId"`

	// RequestID is the bridge provider's request id, when the payment was
	// routed through the bridge. Preferred over TxHash for status polling.
	RequestID string `json:"requestId,omitempty"`
}

// PermitPayload contains ERC-2612 permit parameters.
// All uint256 fields are decimal strings.
type PermitPayload struct {
	// Owner is the token holder granting the approval.
	Owner string `json:"owner"`

	// Spender is the address being approved (the facilitator).
	Spender string `json:"spender"`

	// Value is the approved amount in atomic units.
	Value string `json:"value"`

	// Nonce is the owner's current permit nonce.
	Nonce string `json:"nonce"`

	// Deadline is the unix timestamp the permit expires at.
	Deadline string `json:"deadline"`
}

// AuthorizationPayload contains EIP-3009 transferWithAuthorization parameters.
// All uint256 fields are decimal strings; Nonce is a 32-byte hex string.
type AuthorizationPayload struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// PaymentPayload is what the customer presents. Exactly one of Native,
// Permit, or Authorization is populated; Signature is required for the
// permit and authorization variants and ignored for native.
type PaymentPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the source network the payment originates on.
	Network string `json:"network"`

	// Native is the native-token transfer proof variant.
	Native *NativePayment `json:"native,omitempty"`

	// Permit is the ERC-2612 permit variant.
	Permit *PermitPayload `json:"permit,omitempty"`

	// Authorization is the EIP-3009 authorization variant.
	Authorization *AuthorizationPayload `json:"authorization,omitempty"`

	// Signature is the hex-encoded EIP-712 signature for the permit or
	// authorization variant.
	Signature string `json:"signature,omitempty"`
}

// Method returns which payment variant the payload carries.
// Returns ErrMalformedPayload unless exactly one variant is populated.
func (p *PaymentPayload) Method() (PaymentMethod, error) {
	var (
		method PaymentMethod
		count  int
	)
	if p.Native != nil {
		method = MethodNative
		count++
	}
	if p.Permit != nil {
		method = MethodPermit
		count++
	}
	if p.Authorization != nil {
		method = MethodAuthorization
		count++
	}
	if count != 1 {
		return MethodUnknown, ErrMalformedPayload
	}
	return method, nil
}

// Payer returns the paying address for whichever variant is populated,
// or "" if the payload is malformed.
func (p *PaymentPayload) Payer() string {
	switch {
	case p.Native != nil:
		return p.Native.From
	case p.Permit != nil:
		return p.Permit.Owner
	case p.Authorization != nil:
		return p.Authorization.From
	default:
		return ""
	}
}

// PaymentID derives the deterministic idempotency key for a payment:
// keccak256 over the payment proof, the payer, and the payee. The same
// logical payment always derives the same id regardless of which party
// computes it.
func (p *PaymentPayload) PaymentID(payTo string) (common.Hash, error) {
	method, err := p.Method()
	if err != nil {
		return common.Hash{}, err
	}

	var proof string
	switch method {
	case MethodNative:
		proof = p.Native.TxHash
	case MethodAuthorization:
		proof = p.Authorization.Nonce
	case MethodPermit:
		proof = p.Permit.Owner + ":" + p.Permit.Nonce + ":" + p.Permit.Deadline
	}

	preimage := strings.ToLower(proof + "|" + p.Payer() + "|" + payTo)
	return crypto.Keccak256Hash([]byte(preimage)), nil
}

// PaymentRequired is the 402 response body sent by resource servers.
type PaymentRequired struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirements `json:"accepts"`
}

// VerifyResponse is returned by the facilitator /verify endpoint.
type VerifyResponse struct {
	// IsValid indicates whether the payment is valid.
	IsValid bool `json:"isValid"`

	// InvalidReason explains why the payment is invalid. Preserved verbatim
	// through the HTTP boundary.
	InvalidReason string `json:"invalidReason,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator /settle endpoint.
type SettleResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason explains why settlement failed. Preserved verbatim
	// through the HTTP boundary.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the collection or bridge transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network the payment was settled on.
	Network string `json:"network,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SupportedKind describes a payment type supported by the facilitator.
type SupportedKind struct {
	// X402Version is the protocol version supported.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the network name.
	Network string `json:"network"`

	// Extra contains scheme-specific additional data.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is returned by the facilitator /supported endpoint.
type SupportedResponse struct {
	// Kinds lists the payment types supported by the facilitator.
	Kinds []SupportedKind `json:"kinds"`

	// Signers maps network names to facilitator operating addresses.
	Signers map[string][]string `json:"signers,omitempty"`
}

// TokenConfig defines a token a client-side signer can pay with.
type TokenConfig struct {
	// Address is the token contract address.
	Address string

	// Symbol is the token symbol (e.g., "USDC").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Name is an optional human-readable token name.
	Name string
}

// ParseAtomicAmount parses a decimal-string atomic amount into *big.Int.
// Returns ErrInvalidAmount if the string is empty, malformed, or negative.
func ParseAtomicAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, ErrInvalidAmount
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return value, nil
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 6 decimals becomes 1500000.
// Returns ErrInvalidAmount if the amount is negative or decimals is negative.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	rat.Quo(rat, scale)

	return rat.FloatString(decimals)
}
