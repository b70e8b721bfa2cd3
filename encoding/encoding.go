// Package encoding provides the wire codecs used by x402 HTTP exchanges:
// base64-encoded JSON for the X-PAYMENT request header and the
// X-PAYMENT-RESPONSE settlement header.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
)

// EncodePaymentHeader encodes a payment payload for the X-PAYMENT header.
func EncodePaymentHeader(payload x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader decodes an X-PAYMENT header value into a payment payload.
// Returns ErrMalformedHeader if the value is not valid base64 JSON.
func DecodePaymentHeader(header string) (x402.PaymentPayload, error) {
	var payload x402.PaymentPayload

	if header == "" {
		return payload, fmt.Errorf("%w: empty header", x402.ErrMalformedHeader)
	}

	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return payload, fmt.Errorf("%w: invalid base64: %v", x402.ErrMalformedHeader, err)
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: invalid JSON: %v", x402.ErrMalformedHeader, err)
	}

	return payload, nil
}

// EncodeSettleResponseHeader encodes a settle response for the
// X-PAYMENT-RESPONSE header returned alongside the protected resource.
func EncodeSettleResponseHeader(resp x402.SettleResponse) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettleResponseHeader decodes an X-PAYMENT-RESPONSE header value.
func DecodeSettleResponseHeader(header string) (x402.SettleResponse, error) {
	var resp x402.SettleResponse

	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return resp, fmt.Errorf("%w: invalid base64: %v", x402.ErrMalformedHeader, err)
	}

	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("%w: invalid JSON: %v", x402.ErrMalformedHeader, err)
	}

	return resp, nil
}

// DecodePaymentRequired decodes a 402 response body into its structured form.
func DecodePaymentRequired(body []byte) (x402.PaymentRequired, error) {
	var pr x402.PaymentRequired
	if err := json.Unmarshal(body, &pr); err != nil {
		return pr, fmt.Errorf("failed to parse payment required response: %w", err)
	}
	return pr, nil
}
