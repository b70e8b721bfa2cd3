package x402

import "errors"

// Sentinel errors for payment verification and settlement.
var (
	// ErrMalformedPayload indicates no payment variant (or more than one) is populated.
	ErrMalformedPayload = errors.New("x402: malformed payment payload")

	// ErrMissingSignature indicates a permit or authorization payload without a signature.
	ErrMissingSignature = errors.New("x402: missing signature")

	// ErrExpiredDeadline indicates the authorization or permit expired, or expires
	// too soon to execute safely.
	ErrExpiredDeadline = errors.New("x402: payment authorization expired")

	// ErrRecipientMismatch indicates the signed recipient is neither the merchant
	// nor the facilitator.
	ErrRecipientMismatch = errors.New("x402: recipient mismatch")

	// ErrInsufficientAmount indicates the signed amount is below the required minimum.
	ErrInsufficientAmount = errors.New("x402: insufficient amount")

	// ErrInvalidSignature indicates the recovered signer does not match the payer.
	ErrInvalidSignature = errors.New("x402: invalid signature")

	// ErrInvalidAmount indicates an invalid amount string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidNetwork indicates an unsupported network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrQuoteUnavailable indicates the bridge provider returned no executable quote.
	ErrQuoteUnavailable = errors.New("x402: bridge quote unavailable")

	// ErrBridgeStatusUnknown indicates the poll budget was exhausted while the
	// bridge was still pending. The true outcome is unknown, not negative.
	ErrBridgeStatusUnknown = errors.New("x402: bridge status unknown after poll budget")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrNoValidSigner indicates no configured signer can satisfy any of the
	// server's payment options.
	ErrNoValidSigner = errors.New("x402: no valid signer for payment requirements")

	// ErrInvalidRequirements indicates the server offered no usable payment option.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")
)

// ErrorCode represents settlement error codes for programmatic handling.
// Codes surface verbatim in the errorReason field of settle responses.
type ErrorCode string

const (
	// ErrCodeMalformedPayload indicates a structurally invalid payload.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	// ErrCodeCollectionFailed indicates token collection from the payer reverted.
	ErrCodeCollectionFailed ErrorCode = "COLLECTION_FAILED"

	// ErrCodeQuoteUnavailable indicates no executable bridge quote was returned.
	ErrCodeQuoteUnavailable ErrorCode = "QUOTE_UNAVAILABLE"

	// ErrCodeApprovalFailed indicates the bridge spend approval reverted.
	ErrCodeApprovalFailed ErrorCode = "APPROVAL_FAILED"

	// ErrCodeBridgeSubmissionFailed indicates the bridge transaction could not be sent.
	ErrCodeBridgeSubmissionFailed ErrorCode = "BRIDGE_SUBMISSION_FAILED"

	// ErrCodeBridgeNotCompleted indicates the bridge never reached a completed
	// state after collection. Tokens may be in facilitator custody without
	// delivery to the merchant; requires manual intervention.
	ErrCodeBridgeNotCompleted ErrorCode = "BRIDGE_NOT_COMPLETED"

	// ErrCodeLedgerWriteFailed indicates the settlement registry write reverted.
	ErrCodeLedgerWriteFailed ErrorCode = "LEDGER_WRITE_FAILED"

	// ErrCodeUnsupportedNetwork indicates no wallet is configured for the network.
	ErrCodeUnsupportedNetwork ErrorCode = "UNSUPPORTED_NETWORK"
)

// SettlementError provides structured error information for settle failures.
type SettlementError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SettlementError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *SettlementError) Unwrap() error {
	return e.Err
}

// NewSettlementError creates a new SettlementError with the given code and message.
func NewSettlementError(code ErrorCode, message string, err error) *SettlementError {
	return &SettlementError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *SettlementError) WithDetails(key string, value interface{}) *SettlementError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
