package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for payment operations.
type TimeoutConfig struct {
	// VerifyTimeout is the maximum time to wait for payment verification.
	VerifyTimeout time.Duration

	// SettleTimeout is the maximum time to wait for payment settlement.
	SettleTimeout time.Duration

	// RequestTimeout is the overall timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults for payment operations.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  90 * time.Second,
	SettleTimeout:  180 * time.Second,
	RequestTimeout: 300 * time.Second,
}

// WithVerifyTimeout returns a new TimeoutConfig with updated verify timeout.
func (tc TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	tc.VerifyTimeout = d
	return tc
}

// WithSettleTimeout returns a new TimeoutConfig with updated settle timeout.
func (tc TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	tc.SettleTimeout = d
	return tc
}

// WithRequestTimeout returns a new TimeoutConfig with updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	if tc.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", tc.VerifyTimeout)
	}
	if tc.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", tc.SettleTimeout)
	}
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	if tc.SettleTimeout < tc.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) should be >= verify timeout (%v)",
			tc.SettleTimeout, tc.VerifyTimeout)
	}
	return nil
}

// PollConfig bounds a bridge status poll by both an interval and a maximum
// attempt count, so every poll terminates.
type PollConfig struct {
	// Interval is the delay between status queries.
	Interval time.Duration

	// MaxAttempts is the total number of status queries before giving up.
	MaxAttempts int
}

// DefaultVerifyPoll is the poll budget for confirming a native payment
// during verify: up to 60 one-second attempts.
var DefaultVerifyPoll = PollConfig{
	Interval:    time.Second,
	MaxAttempts: 60,
}

// DefaultSettlePoll is the poll budget for waiting on a bridge fill
// during settlement.
var DefaultSettlePoll = PollConfig{
	Interval:    2 * time.Second,
	MaxAttempts: 60,
}

// Budget returns the worst-case wall-clock duration of the poll.
func (pc PollConfig) Budget() time.Duration {
	return time.Duration(pc.MaxAttempts) * pc.Interval
}

// Validate ensures poll values are reasonable.
func (pc PollConfig) Validate() error {
	if pc.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", pc.Interval)
	}
	if pc.MaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive, got %d", pc.MaxAttempts)
	}
	return nil
}
