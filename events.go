package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a verify or settle operation started.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates the operation succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates the operation failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event emitted by the
// orchestrator. Every event for the same logical payment carries the same
// PaymentID, so a settlement can be traced end to end.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Operation is "verify" or "settle".
	Operation string

	// PaymentID is the hex-encoded idempotency key, when derivable.
	PaymentID string

	// Method is the payment method ("native", "permit", "authorization").
	Method string

	// Network is the destination network name.
	Network string

	// Scheme is the payment scheme (e.g., "exact").
	Scheme string

	// Amount is the required amount in atomic units.
	Amount string

	// Asset is the destination token address.
	Asset string

	// Recipient is the merchant payee address.
	Recipient string

	// Payer is the address that made the payment.
	Payer string

	// Transaction is the collection or bridge transaction hash (on success).
	Transaction string

	// Error contains failure details (on failure).
	Error error

	// Duration is the time taken for the operation.
	Duration time.Duration
}

// PaymentCallback is a function that handles payment events.
// Callbacks are invoked synchronously during payment processing, so they
// should be fast to avoid blocking the payment flow. For longer operations,
// consider using goroutines within the callback.
type PaymentCallback func(PaymentEvent)
