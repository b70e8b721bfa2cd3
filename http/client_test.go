package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/facilitator"
)

func testVerifyRequest() *facilitator.VerifyRequest {
	return &facilitator.VerifyRequest{
		X402Version: x402.X402Version,
		PaymentPayload: x402.PaymentPayload{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     "base",
			Native: &x402.NativePayment{
				From:    "0x1111111111111111111111111111111111111111",
				TxHash:  "0x" + strings.Repeat("cc", 32),
				Amount:  "10000",
				ChainID: 8453,
			},
		},
		PaymentRequirements: x402.PaymentRequirements{
			Scheme:            x402.SchemeExact,
			Network:           "base",
			MaxAmountRequired: "10000",
			Asset:             x402.BaseMainnet.USDCAddress,
			PayTo:             "0x2222222222222222222222222222222222222222",
		},
	}
}

func testSettleRequest() *facilitator.SettleRequest {
	return (*facilitator.SettleRequest)(testVerifyRequest())
}

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("path = %s, want /verify", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}

		var req facilitator.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.PaymentPayload.Native == nil {
			t.Error("native payment lost in transit")
		}

		json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true, Payer: req.PaymentPayload.Payer()})
	}))
	defer server.Close()

	client := &FacilitatorClient{BaseURL: server.URL, Timeouts: x402.DefaultTimeouts}
	resp, err := client.Verify(context.Background(), testVerifyRequest())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !resp.IsValid {
		t.Error("expected isValid true")
	}
	if resp.Payer != "0x1111111111111111111111111111111111111111" {
		t.Errorf("payer = %q", resp.Payer)
	}
}

func TestClientSettle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(x402.SettleResponse{
				Success:     true,
				Transaction: "0x" + strings.Repeat("ab", 32),
				Network:     "base",
			})
		}))
		defer server.Close()

		client := &FacilitatorClient{BaseURL: server.URL}
		resp, err := client.Settle(context.Background(), testSettleRequest())
		if err != nil {
			t.Fatalf("Settle() error = %v", err)
		}
		if !resp.Success {
			t.Error("expected success")
		}
	})

	t.Run("error response preserves reason", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"errorReason": "LEDGER_WRITE_FAILED: registry reverted"}`)
		}))
		defer server.Close()

		client := &FacilitatorClient{BaseURL: server.URL}
		_, err := client.Settle(context.Background(), testSettleRequest())
		if !errors.Is(err, x402.ErrSettlementFailed) {
			t.Fatalf("expected ErrSettlementFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "LEDGER_WRITE_FAILED") {
			t.Errorf("error %q should preserve the facilitator's reason", err)
		}
	})
}

func TestClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("recorder does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	client := &FacilitatorClient{
		BaseURL:    server.URL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
	resp, err := client.Verify(context.Background(), testVerifyRequest())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !resp.IsValid {
		t.Error("expected isValid true after retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientDoesNotRetryVerificationFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"invalidReason": "x402: invalid signature"}`)
	}))
	defer server.Close()

	client := &FacilitatorClient{
		BaseURL:    server.URL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
	_, err := client.Verify(context.Background(), testVerifyRequest())
	if !errors.Is(err, x402.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (verification failures are not retryable)", got)
	}
}

func TestClientSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supported" {
			t.Errorf("path = %s, want /supported", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(x402.SupportedResponse{
			Kinds: []x402.SupportedKind{{X402Version: 1, Scheme: "exact", Network: "base"}},
			Signers: map[string][]string{
				"base": {"0x3333333333333333333333333333333333333333"},
			},
		})
	}))
	defer server.Close()

	client := &FacilitatorClient{BaseURL: server.URL, Authorization: "Bearer token"}
	resp, err := client.Supported(context.Background())
	if err != nil {
		t.Fatalf("Supported() error = %v", err)
	}
	if len(resp.Kinds) != 1 {
		t.Fatalf("kinds = %d, want 1", len(resp.Kinds))
	}
	if len(resp.Signers["base"]) != 1 {
		t.Errorf("signers = %v", resp.Signers)
	}
}
