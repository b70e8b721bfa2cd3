// Package evm provides a customer-side payment signer for EVM chains.
// It produces EIP-3009 authorization and ERC-2612 permit payloads that
// a facilitator can verify and settle.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/internal/eip712"
)

// DefaultValidityWindow is the authorization lifetime used when a
// requirement does not carry MaxTimeoutSeconds.
const DefaultValidityWindow = 300 * time.Second

// validAfterSkew backdates validAfter to tolerate clock drift between
// the signer and the chain.
const validAfterSkew = 10 * time.Second

// Signer signs x402 payments with a single EVM key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	network string
	chain   x402.ChainConfig

	// UsePermit switches the signer from EIP-3009 authorizations to
	// ERC-2612 permits, for tokens without transferWithAuthorization.
	UsePermit bool

	// PermitNonce returns the owner's current permit nonce. Required
	// when UsePermit is set; permits sign over the on-chain nonce.
	PermitNonce func(owner common.Address) (*big.Int, error)

	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewSigner creates a signer from a hex-encoded private key for the
// given network.
func NewSigner(privateKeyHex, network string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}

	chain, err := x402.GetChainConfig(network)
	if err != nil {
		return nil, err
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		network: network,
		chain:   chain,
	}, nil
}

var _ x402.Signer = (*Signer)(nil)

// Network returns the network this signer pays from.
func (s *Signer) Network() string {
	return s.network
}

// Scheme returns the payment scheme this signer produces.
func (s *Signer) Scheme() string {
	return x402.SchemeExact
}

// Address returns the signer's account address.
func (s *Signer) Address() common.Address {
	return s.address
}

// CanSign reports whether this signer can satisfy the requirement:
// exact scheme, and the signer's network is either the destination or
// the declared source network. When the requirement names no source
// network the facilitator bridges from any chain, so any network works.
func (s *Signer) CanSign(req *x402.PaymentRequirements) bool {
	if req.Scheme != x402.SchemeExact {
		return false
	}
	if strings.EqualFold(req.Network, s.network) {
		return true
	}
	if req.SourceNetwork != "" {
		return strings.EqualFold(req.SourceNetwork, s.network)
	}
	return true
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign produces a signed payment payload for the requirement.
func (s *Signer) Sign(req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	if !s.CanSign(req) {
		return nil, fmt.Errorf("%w: signer on %s cannot satisfy requirement", x402.ErrInvalidNetwork, s.network)
	}

	if s.UsePermit {
		return s.signPermit(req)
	}
	return s.signAuthorization(req)
}

func (s *Signer) signAuthorization(req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	nonce, err := eip712.GenerateNonce()
	if err != nil {
		return nil, err
	}

	now := s.now()
	validAfter := now.Add(-validAfterSkew)
	validBefore := now.Add(s.validityWindow(req))

	// Cross-chain payments must be signed over to the facilitator's
	// collection address; the facilitator rejects anything else before
	// collecting. Same-chain payments go straight to the merchant.
	to := req.PayTo
	if s.crossChain(req) {
		facilitatorAddr := s.facilitatorAddress(req)
		if facilitatorAddr == "" {
			return nil, fmt.Errorf("cross-chain payment requires the facilitator address in requirements extra")
		}
		to = facilitatorAddr
	}

	auth := eip712.Authorization{
		From:        s.address,
		To:          common.HexToAddress(to),
		Value:       mustAmount(req.MaxAmountRequired),
		ValidAfter:  big.NewInt(validAfter.Unix()),
		ValidBefore: big.NewInt(validBefore.Unix()),
		Nonce:       nonce,
	}
	if auth.Value == nil {
		return nil, x402.ErrInvalidAmount
	}

	digest, err := eip712.AuthorizationDigest(s.domain(req), &auth)
	if err != nil {
		return nil, err
	}
	signature, err := eip712.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     s.network,
		Authorization: &x402.AuthorizationPayload{
			From:        s.address.Hex(),
			To:          to,
			Value:       req.MaxAmountRequired,
			ValidAfter:  strconv.FormatInt(validAfter.Unix(), 10),
			ValidBefore: strconv.FormatInt(validBefore.Unix(), 10),
			Nonce:       fmt.Sprintf("0x%x", nonce),
		},
		Signature: signature,
	}, nil
}

func (s *Signer) signPermit(req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	if s.PermitNonce == nil {
		return nil, fmt.Errorf("permit signing requires a PermitNonce source")
	}
	nonce, err := s.PermitNonce(s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permit nonce: %w", err)
	}

	// The facilitator executes the transferFrom pull, so the permit
	// must approve the facilitator, never the merchant.
	spender := s.facilitatorAddress(req)
	if spender == "" {
		return nil, fmt.Errorf("permit signing requires the facilitator address in requirements extra")
	}
	deadline := s.now().Add(s.validityWindow(req))

	permit := eip712.Permit{
		Owner:    s.address,
		Spender:  common.HexToAddress(spender),
		Value:    mustAmount(req.MaxAmountRequired),
		Nonce:    nonce,
		Deadline: big.NewInt(deadline.Unix()),
	}
	if permit.Value == nil {
		return nil, x402.ErrInvalidAmount
	}

	digest, err := eip712.PermitDigest(s.domain(req), &permit)
	if err != nil {
		return nil, err
	}
	signature, err := eip712.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     s.network,
		Permit: &x402.PermitPayload{
			Owner:    s.address.Hex(),
			Spender:  spender,
			Value:    req.MaxAmountRequired,
			Nonce:    nonce.String(),
			Deadline: strconv.FormatInt(deadline.Unix(), 10),
		},
		Signature: signature,
	}, nil
}

// domain builds the EIP-712 domain for the token being spent, mirroring
// what the facilitator verifies against.
func (s *Signer) domain(req *x402.PaymentRequirements) eip712.Domain {
	verifyingContract := req.Asset
	if req.SourceAsset != "" {
		verifyingContract = req.SourceAsset
	}
	name := s.chain.USDCName
	version := s.chain.USDCVersion

	if req.Extra != nil {
		if vc, ok := req.Extra["verifyingContract"].(string); ok && vc != "" {
			verifyingContract = vc
		}
		if n, ok := req.Extra["name"].(string); ok && n != "" {
			name = n
		}
		if v, ok := req.Extra["version"].(string); ok && v != "" {
			version = v
		}
	}

	return eip712.Domain{
		Name:              name,
		Version:           version,
		ChainID:           big.NewInt(s.chain.ChainID),
		VerifyingContract: common.HexToAddress(verifyingContract),
	}
}

func (s *Signer) validityWindow(req *x402.PaymentRequirements) time.Duration {
	if req.MaxTimeoutSeconds > 0 {
		return time.Duration(req.MaxTimeoutSeconds) * time.Second
	}
	return DefaultValidityWindow
}

func (s *Signer) facilitatorAddress(req *x402.PaymentRequirements) string {
	if req.Extra == nil {
		return ""
	}
	addr, _ := req.Extra["facilitator"].(string)
	return addr
}

// crossChain reports whether the payment needs a bridge or swap leg
// after collection, in which case funds must land in facilitator
// custody rather than with the merchant.
func (s *Signer) crossChain(req *x402.PaymentRequirements) bool {
	if !strings.EqualFold(req.Network, s.network) {
		return true
	}
	return req.SourceAsset != "" && !strings.EqualFold(req.SourceAsset, req.Asset)
}

func mustAmount(amount string) *big.Int {
	value, err := x402.ParseAtomicAmount(amount)
	if err != nil {
		return nil
	}
	return value
}
