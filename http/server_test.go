package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/facilitator"
)

// fakeFacilitator scripts Interface responses for HTTP tests.
type fakeFacilitator struct {
	verifyResp *x402.VerifyResponse
	verifyErr  error
	settleResp *x402.SettleResponse
	settleErr  error

	verifyCalls int
	settleCalls int
}

func (f *fakeFacilitator) Verify(ctx context.Context, req *facilitator.VerifyRequest) (*x402.VerifyResponse, error) {
	f.verifyCalls++
	return f.verifyResp, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, req *facilitator.SettleRequest) (*x402.SettleResponse, error) {
	f.settleCalls++
	return f.settleResp, f.settleErr
}

func (f *fakeFacilitator) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	return &x402.SupportedResponse{
		Kinds: []x402.SupportedKind{{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     "base",
		}},
	}, nil
}

func testVerifyBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(facilitator.VerifyRequest{
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
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestServerVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("valid payment", func(t *testing.T) {
		fake := &fakeFacilitator{
			verifyResp: &x402.VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"},
		}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(testVerifyBody(t)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp x402.VerifyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !resp.IsValid {
			t.Error("expected isValid true")
		}
	})

	t.Run("invalid payment still 200", func(t *testing.T) {
		fake := &fakeFacilitator{
			verifyResp: &x402.VerifyResponse{IsValid: false, InvalidReason: "x402: insufficient amount"},
		}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(testVerifyBody(t)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for invalid payment", w.Code)
		}
		var resp x402.VerifyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.IsValid {
			t.Error("expected isValid false")
		}
		if resp.InvalidReason != "x402: insufficient amount" {
			t.Errorf("invalidReason = %q, want verbatim reason", resp.InvalidReason)
		}
	})

	t.Run("engine error is 500", func(t *testing.T) {
		fake := &fakeFacilitator{verifyErr: errors.New("rpc down")}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(testVerifyBody(t)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		fake := &fakeFacilitator{}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("not json"))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if fake.verifyCalls != 0 {
			t.Errorf("verify calls = %d, want 0", fake.verifyCalls)
		}
	})

	t.Run("wrong version rejected without engine call", func(t *testing.T) {
		fake := &fakeFacilitator{}
		router := NewServer(fake, nil).Router()

		body := bytes.Replace(testVerifyBody(t), []byte(`"x402Version":1`), []byte(`"x402Version":7`), 1)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(body))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp x402.VerifyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.IsValid {
			t.Error("expected isValid false for wrong version")
		}
		if fake.verifyCalls != 0 {
			t.Errorf("verify calls = %d, want 0", fake.verifyCalls)
		}
	})
}

func TestServerSettle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("failed settlement still 200", func(t *testing.T) {
		fake := &fakeFacilitator{
			settleResp: &x402.SettleResponse{
				Success:     false,
				ErrorReason: "COLLECTION_FAILED: execution reverted",
			},
		}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/settle", bytes.NewReader(testVerifyBody(t)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for failed settlement", w.Code)
		}
		var resp x402.SettleResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Success {
			t.Error("expected success false")
		}
		if resp.ErrorReason != "COLLECTION_FAILED: execution reverted" {
			t.Errorf("errorReason = %q, want verbatim reason", resp.ErrorReason)
		}
	})

	t.Run("engine error is 500", func(t *testing.T) {
		fake := &fakeFacilitator{settleErr: errors.New("registry unreachable")}
		router := NewServer(fake, nil).Router()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/settle", bytes.NewReader(testVerifyBody(t)))
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestServerSupportedAndHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewServer(&fakeFacilitator{}, nil).Router()

	t.Run("supported", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/supported", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp x402.SupportedResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(resp.Kinds) != 1 || resp.Kinds[0].Network != "base" {
			t.Errorf("kinds = %+v", resp.Kinds)
		}
	})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}
