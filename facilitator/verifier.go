package facilitator

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/internal/eip712"
)

// DeadlineSafetyMargin is the minimum remaining validity a signed
// payment must have. A payment expiring sooner than this cannot be
// executed safely before its deadline passes on chain.
const DeadlineSafetyMargin = 6 * time.Second

// Verifier checks signed payment payloads off chain: deadline window,
// recipient, amount, and EIP-712 signature recovery.
type Verifier struct {
	// FacilitatorAddress is the operating address payments may be
	// signed over to for cross-chain collection.
	FacilitatorAddress common.Address

	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// domainFor builds the EIP-712 domain the payload was signed against.
// The verifying contract is the source token; its name and version come
// from the requirement's extra metadata when present, otherwise from the
// chain's USDC defaults.
func (v *Verifier) domainFor(payload *x402.PaymentPayload, req *x402.PaymentRequirements) (eip712.Domain, error) {
	chainID, err := x402.GetChainID(payload.Network)
	if err != nil {
		return eip712.Domain{}, err
	}

	chain := x402.ChainConfigOrDefault(payload.Network)

	verifyingContract := req.Asset
	if req.SourceAsset != "" {
		verifyingContract = req.SourceAsset
	}
	name := chain.USDCName
	version := chain.USDCVersion

	if req.Extra != nil {
		if vc, ok := req.Extra["verifyingContract"].(string); ok && vc != "" {
			verifyingContract = vc
		}
		if n, ok := req.Extra["name"].(string); ok && n != "" {
			name = n
		}
		if ver, ok := req.Extra["version"].(string); ok && ver != "" {
			version = ver
		}
	}

	return eip712.Domain{
		Name:              name,
		Version:           version,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(verifyingContract),
	}, nil
}

// VerifyAuthorization validates an EIP-3009 authorization payload.
// Checks run cheapest first: time window, recipient, amount, then
// signature recovery.
func (v *Verifier) VerifyAuthorization(payload *x402.PaymentPayload, req *x402.PaymentRequirements) error {
	auth, err := AuthorizationFromPayload(payload.Authorization)
	if err != nil {
		return err
	}

	now := v.now()
	deadline := time.Unix(auth.ValidBefore.Int64(), 0)
	if now.Add(DeadlineSafetyMargin).After(deadline) {
		return x402.ErrExpiredDeadline
	}
	if auth.ValidAfter.Int64() > now.Unix() {
		return fmt.Errorf("%w: authorization not yet valid", x402.ErrExpiredDeadline)
	}

	r, err := railFor(payload, req)
	if err != nil {
		return err
	}
	if !v.recipientAllowed(auth.To, req.PayTo, r.same) {
		return x402.ErrRecipientMismatch
	}

	required, err := x402.ParseAtomicAmount(req.MaxAmountRequired)
	if err != nil {
		return err
	}
	if auth.Value.Cmp(required) < 0 {
		return x402.ErrInsufficientAmount
	}

	domain, err := v.domainFor(payload, req)
	if err != nil {
		return err
	}

	digest, err := eip712.AuthorizationDigest(domain, &auth)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidSignature, err)
	}

	signer, err := eip712.RecoverSigner(digest, payload.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidSignature, err)
	}
	if signer != auth.From {
		return x402.ErrInvalidSignature
	}
	return nil
}

// VerifyPermit validates an ERC-2612 permit payload.
func (v *Verifier) VerifyPermit(payload *x402.PaymentPayload, req *x402.PaymentRequirements) error {
	permit, err := PermitFromPayload(payload.Permit)
	if err != nil {
		return err
	}

	deadline := time.Unix(permit.Deadline.Int64(), 0)
	if v.now().Add(DeadlineSafetyMargin).After(deadline) {
		return x402.ErrExpiredDeadline
	}

	// The facilitator's wallet is what executes the transferFrom pull,
	// so only a permit approving the facilitator is settleable.
	if v.FacilitatorAddress == (common.Address{}) || permit.Spender != v.FacilitatorAddress {
		return x402.ErrRecipientMismatch
	}

	required, err := x402.ParseAtomicAmount(req.MaxAmountRequired)
	if err != nil {
		return err
	}
	if permit.Value.Cmp(required) < 0 {
		return x402.ErrInsufficientAmount
	}

	domain, err := v.domainFor(payload, req)
	if err != nil {
		return err
	}

	digest, err := eip712.PermitDigest(domain, &permit)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidSignature, err)
	}

	signer, err := eip712.RecoverSigner(digest, payload.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidSignature, err)
	}
	if signer != permit.Owner {
		return x402.ErrInvalidSignature
	}
	return nil
}

// recipientAllowed reports whether the signed recipient can be settled.
// The facilitator's collection address always can; the merchant payee
// only on the same rail, where no bridge leg follows collection. A
// cross-chain authorization to the merchant would land tokens on the
// source chain with nothing in custody to bridge.
func (v *Verifier) recipientAllowed(signed common.Address, payTo string, sameRail bool) bool {
	if sameRail && signed == common.HexToAddress(payTo) {
		return true
	}
	return v.FacilitatorAddress != (common.Address{}) && signed == v.FacilitatorAddress
}

// AuthorizationFromPayload converts the wire-form authorization into
// on-chain form, validating every numeric field.
func AuthorizationFromPayload(a *x402.AuthorizationPayload) (eip712.Authorization, error) {
	if a == nil {
		return eip712.Authorization{}, x402.ErrMalformedPayload
	}

	value, err := x402.ParseAtomicAmount(a.Value)
	if err != nil {
		return eip712.Authorization{}, err
	}
	validAfter, err := parseTimestamp(a.ValidAfter)
	if err != nil {
		return eip712.Authorization{}, fmt.Errorf("%w: invalid validAfter", x402.ErrMalformedPayload)
	}
	validBefore, err := parseTimestamp(a.ValidBefore)
	if err != nil {
		return eip712.Authorization{}, fmt.Errorf("%w: invalid validBefore", x402.ErrMalformedPayload)
	}
	nonce, err := parseNonce(a.Nonce)
	if err != nil {
		return eip712.Authorization{}, err
	}

	return eip712.Authorization{
		From:        common.HexToAddress(a.From),
		To:          common.HexToAddress(a.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
	}, nil
}

// PermitFromPayload converts the wire-form permit into on-chain form.
func PermitFromPayload(p *x402.PermitPayload) (eip712.Permit, error) {
	if p == nil {
		return eip712.Permit{}, x402.ErrMalformedPayload
	}

	value, err := x402.ParseAtomicAmount(p.Value)
	if err != nil {
		return eip712.Permit{}, err
	}
	nonce, err := parseTimestamp(p.Nonce)
	if err != nil {
		return eip712.Permit{}, fmt.Errorf("%w: invalid nonce", x402.ErrMalformedPayload)
	}
	deadline, err := parseTimestamp(p.Deadline)
	if err != nil {
		return eip712.Permit{}, fmt.Errorf("%w: invalid deadline", x402.ErrMalformedPayload)
	}

	return eip712.Permit{
		Owner:    common.HexToAddress(p.Owner),
		Spender:  common.HexToAddress(p.Spender),
		Value:    value,
		Nonce:    nonce,
		Deadline: deadline,
	}, nil
}

func parseTimestamp(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid uint256 value: %q", s)
	}
	return value, nil
}

func parseNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != 32 {
		return nonce, fmt.Errorf("%w: invalid authorization nonce", x402.ErrMalformedPayload)
	}
	copy(nonce[:], raw)
	return nonce, nil
}
