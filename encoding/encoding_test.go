package encoding

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
)

func TestPaymentHeaderRoundTrip(t *testing.T) {
	payload := x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     "base",
		Authorization: &x402.AuthorizationPayload{
			From:        "0x1111111111111111111111111111111111111111",
			To:          "0x2222222222222222222222222222222222222222",
			Value:       "10000",
			ValidAfter:  "0",
			ValidBefore: "9999999999",
			Nonce:       "0x" + strings.Repeat("cd", 32),
		},
		Signature: "0x" + strings.Repeat("ef", 65),
	}

	header, err := EncodePaymentHeader(payload)
	if err != nil {
		t.Fatalf("EncodePaymentHeader() error = %v", err)
	}

	if _, err := base64.StdEncoding.DecodeString(header); err != nil {
		t.Fatalf("header is not valid base64: %v", err)
	}

	decoded, err := DecodePaymentHeader(header)
	if err != nil {
		t.Fatalf("DecodePaymentHeader() error = %v", err)
	}

	if decoded.Network != payload.Network {
		t.Errorf("network = %q, want %q", decoded.Network, payload.Network)
	}
	if decoded.Authorization == nil {
		t.Fatal("authorization lost in round trip")
	}
	if decoded.Authorization.Nonce != payload.Authorization.Nonce {
		t.Errorf("nonce = %q, want %q", decoded.Authorization.Nonce, payload.Authorization.Nonce)
	}
	if decoded.Signature != payload.Signature {
		t.Errorf("signature = %q, want %q", decoded.Signature, payload.Signature)
	}
}

func TestDecodePaymentHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"invalid base64", "not base64!!!"},
		{"valid base64 invalid JSON", base64.StdEncoding.EncodeToString([]byte("not json"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePaymentHeader(tt.header)
			if !errors.Is(err, x402.ErrMalformedHeader) {
				t.Errorf("expected ErrMalformedHeader, got %v", err)
			}
		})
	}
}

func TestSettleResponseHeaderRoundTrip(t *testing.T) {
	resp := x402.SettleResponse{
		Success:     true,
		Transaction: "0x" + strings.Repeat("ab", 32),
		Network:     "base",
		Payer:       "0x1111111111111111111111111111111111111111",
	}

	header, err := EncodeSettleResponseHeader(resp)
	if err != nil {
		t.Fatalf("EncodeSettleResponseHeader() error = %v", err)
	}

	decoded, err := DecodeSettleResponseHeader(header)
	if err != nil {
		t.Fatalf("DecodeSettleResponseHeader() error = %v", err)
	}

	if !decoded.Success {
		t.Error("success flag lost in round trip")
	}
	if decoded.Transaction != resp.Transaction {
		t.Errorf("transaction = %q, want %q", decoded.Transaction, resp.Transaction)
	}
}

func TestDecodePaymentRequired(t *testing.T) {
	body := []byte(`{
		"x402Version": 1,
		"accepts": [{
			"scheme": "exact",
			"network": "base",
			"maxAmountRequired": "10000",
			"asset": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			"payTo": "0x1111111111111111111111111111111111111111",
			"maxTimeoutSeconds": 300
		}],
		"error": "payment required"
	}`)

	pr, err := DecodePaymentRequired(body)
	if err != nil {
		t.Fatalf("DecodePaymentRequired() error = %v", err)
	}

	if len(pr.Accepts) != 1 {
		t.Fatalf("accepts length = %d, want 1", len(pr.Accepts))
	}
	if pr.Accepts[0].MaxAmountRequired != "10000" {
		t.Errorf("maxAmountRequired = %q, want %q", pr.Accepts[0].MaxAmountRequired, "10000")
	}

	if _, err := DecodePaymentRequired([]byte("nope")); err == nil {
		t.Error("expected error for invalid body, got nil")
	}
}
