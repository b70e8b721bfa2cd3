package x402

// Signer creates signed payment payloads on the customer side.
// Implementations produce either ERC-2612 permit or EIP-3009 authorization
// payloads for a payment requirement.
type Signer interface {
	// Network returns the network name the signer operates on (e.g., "base").
	Network() string

	// Scheme returns the payment scheme identifier (e.g., "exact").
	Scheme() string

	// CanSign checks if this signer can satisfy the given payment requirements.
	CanSign(requirements *PaymentRequirements) bool

	// Sign creates a signed PaymentPayload for the given requirements.
	Sign(requirements *PaymentRequirements) (*PaymentPayload, error)
}
