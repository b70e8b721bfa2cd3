// Package validation provides validation utilities for x402 payment data.
// It validates addresses, amounts, networks, and payment structures.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// txHashRegex matches transaction hashes (0x followed by 64 hex chars)
	txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// ValidateAmount validates that an amount string is a valid non-negative integer.
// Zero amounts are allowed for free-with-signature authorization flows.
// Returns an error if the amount is empty, malformed, or negative.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	// Parse as big.Int to handle large values
	amt := new(big.Int)
	amt, ok := amt.SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateNetwork validates a network name against the chain registry.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}

	if _, err := x402.GetChainConfig(network); err != nil {
		return err
	}
	return nil
}

// ValidateAddress validates an EVM address, allowing the native-token
// placeholder for asset fields.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateTxHash validates a transaction hash.
func ValidateTxHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	if !txHashRegex.MatchString(hash) {
		return fmt.Errorf("invalid transaction hash format: %s (expected 0x followed by 64 hex characters)", hash)
	}
	return nil
}

// ValidatePaymentRequirements performs comprehensive validation of payment requirements.
// It validates the amount, network, addresses, scheme, and other required fields.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	// Validate amount (allow zero for free-with-signature flows)
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirements: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirements: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirements: asset %w", err)
	}

	// Validate scheme
	switch req.Scheme {
	case x402.SchemeExact:
		// Valid scheme
	case "":
		return fmt.Errorf("invalid requirements: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirements: unsupported scheme %s", req.Scheme)
	}

	// Validate timeout (must be non-negative)
	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirements: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	// Cross-chain hints must be internally consistent
	if req.SourceNetwork != "" {
		if err := ValidateNetwork(req.SourceNetwork); err != nil {
			return fmt.Errorf("invalid requirements: sourceNetwork %w", err)
		}
	}
	if req.SourceAsset != "" {
		if err := ValidateAddress(req.SourceAsset); err != nil {
			return fmt.Errorf("invalid requirements: sourceAsset %w", err)
		}
	}

	// Validate EIP-712 domain overrides when present
	if req.Extra != nil {
		if name, ok := req.Extra["name"].(string); ok && name == "" {
			return fmt.Errorf("invalid requirements: EIP-712 domain name cannot be empty")
		}
		if version, ok := req.Extra["version"].(string); ok && version == "" {
			return fmt.Errorf("invalid requirements: EIP-712 domain version cannot be empty")
		}
	}

	return nil
}

// ValidatePaymentPayload validates a payment payload structure.
// It checks the version, scheme, network, and that exactly one payment
// method is populated with the fields that method requires.
func ValidatePaymentPayload(payload x402.PaymentPayload) error {
	if payload.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d (expected %d)", payload.X402Version, x402.X402Version)
	}

	if payload.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	if payload.Scheme != x402.SchemeExact {
		return fmt.Errorf("unsupported scheme: %s", payload.Scheme)
	}

	if err := ValidateNetwork(payload.Network); err != nil {
		return fmt.Errorf("invalid payload network: %w", err)
	}

	method, err := payload.Method()
	if err != nil {
		return fmt.Errorf("exactly one payment method must be populated: %w", err)
	}

	switch method {
	case x402.MethodNative:
		if err := ValidateAddress(payload.Native.From); err != nil {
			return fmt.Errorf("invalid native payment: from %w", err)
		}
		if err := ValidateTxHash(payload.Native.TxHash); err != nil {
			return fmt.Errorf("invalid native payment: %w", err)
		}
		if err := ValidateAmount(payload.Native.Amount); err != nil {
			return fmt.Errorf("invalid native payment: %w", err)
		}
	case x402.MethodPermit:
		if payload.Signature == "" {
			return x402.ErrMissingSignature
		}
		if err := ValidateAddress(payload.Permit.Owner); err != nil {
			return fmt.Errorf("invalid permit: owner %w", err)
		}
		if err := ValidateAddress(payload.Permit.Spender); err != nil {
			return fmt.Errorf("invalid permit: spender %w", err)
		}
		if err := ValidateAmount(payload.Permit.Value); err != nil {
			return fmt.Errorf("invalid permit: %w", err)
		}
	case x402.MethodAuthorization:
		if payload.Signature == "" {
			return x402.ErrMissingSignature
		}
		if err := ValidateAddress(payload.Authorization.From); err != nil {
			return fmt.Errorf("invalid authorization: from %w", err)
		}
		if err := ValidateAddress(payload.Authorization.To); err != nil {
			return fmt.Errorf("invalid authorization: to %w", err)
		}
		if err := ValidateAmount(payload.Authorization.Value); err != nil {
			return fmt.Errorf("invalid authorization: %w", err)
		}
	}

	return nil
}

// ValidatePaymentRequired validates a complete 402 response structure.
func ValidatePaymentRequired(pr x402.PaymentRequired) error {
	if pr.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d (expected %d)", pr.X402Version, x402.X402Version)
	}

	if len(pr.Accepts) == 0 {
		return fmt.Errorf("invalid payment required: accepts cannot be empty")
	}

	for i, req := range pr.Accepts {
		if err := ValidatePaymentRequirements(req); err != nil {
			return fmt.Errorf("invalid payment required: accepts[%d] %w", i, err)
		}
	}

	return nil
}
