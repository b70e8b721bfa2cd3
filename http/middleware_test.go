package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/encoding"
)

func middlewareRequirements() []x402.PaymentRequirements {
	return []x402.PaymentRequirements{{
		Scheme:            x402.SchemeExact,
		Network:           "base",
		MaxAmountRequired: "10000",
		Asset:             x402.BaseMainnet.USDCAddress,
		PayTo:             "0x2222222222222222222222222222222222222222",
		MaxTimeoutSeconds: 300,
	}}
}

func protectedRouter(fake *fakeFacilitator, verifyOnly bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewPaymentMiddleware(MiddlewareConfig{
		Facilitator:         fake,
		PaymentRequirements: middlewareRequirements(),
		VerifyOnly:          verifyOnly,
	}))
	router.GET("/premium", func(c *gin.Context) {
		payment := GetPaymentFromContext(c)
		if payment == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "missing payment context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payer": payment.Payer})
	})
	return router
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	header, err := encoding.EncodePaymentHeader(x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     "base",
		Native: &x402.NativePayment{
			From:    "0x1111111111111111111111111111111111111111",
			TxHash:  "0x" + strings.Repeat("cc", 32),
			Amount:  "10000",
			ChainID: 8453,
		},
	})
	if err != nil {
		t.Fatalf("EncodePaymentHeader() error = %v", err)
	}
	return header
}

func TestMiddlewareNoPayment(t *testing.T) {
	fake := &fakeFacilitator{}
	router := protectedRouter(fake, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}

	pr, err := encoding.DecodePaymentRequired(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if len(pr.Accepts) != 1 {
		t.Errorf("accepts = %d, want 1", len(pr.Accepts))
	}
	if fake.verifyCalls != 0 {
		t.Errorf("verify calls = %d, want 0", fake.verifyCalls)
	}
}

func TestMiddlewarePaidRequest(t *testing.T) {
	fake := &fakeFacilitator{
		verifyResp: &x402.VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"},
		settleResp: &x402.SettleResponse{
			Success:     true,
			Transaction: "0x" + strings.Repeat("ab", 32),
			Network:     "base",
		},
	}
	router := protectedRouter(fake, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if fake.verifyCalls != 1 || fake.settleCalls != 1 {
		t.Errorf("verify/settle calls = %d/%d, want 1/1", fake.verifyCalls, fake.settleCalls)
	}

	responseHeader := w.Header().Get("X-PAYMENT-RESPONSE")
	if responseHeader == "" {
		t.Fatal("missing X-PAYMENT-RESPONSE header")
	}
	settle, err := encoding.DecodeSettleResponseHeader(responseHeader)
	if err != nil {
		t.Fatalf("decode response header: %v", err)
	}
	if !settle.Success {
		t.Error("settlement receipt should be successful")
	}
}

func TestMiddlewareVerifyOnly(t *testing.T) {
	fake := &fakeFacilitator{
		verifyResp: &x402.VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"},
	}
	router := protectedRouter(fake, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if fake.settleCalls != 0 {
		t.Errorf("settle calls = %d, want 0 in verify-only mode", fake.settleCalls)
	}
}

func TestMiddlewareInvalidPayment(t *testing.T) {
	fake := &fakeFacilitator{
		verifyResp: &x402.VerifyResponse{IsValid: false, InvalidReason: "x402: insufficient amount"},
	}
	router := protectedRouter(fake, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	pr, err := encoding.DecodePaymentRequired(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if pr.Error != "x402: insufficient amount" {
		t.Errorf("error = %q, want the verbatim invalid reason", pr.Error)
	}
	if fake.settleCalls != 0 {
		t.Errorf("settle calls = %d, want 0 for invalid payment", fake.settleCalls)
	}
}

func TestMiddlewareFailedSettlement(t *testing.T) {
	fake := &fakeFacilitator{
		verifyResp: &x402.VerifyResponse{IsValid: true},
		settleResp: &x402.SettleResponse{Success: false, ErrorReason: "QUOTE_UNAVAILABLE: no route"},
	}
	router := protectedRouter(fake, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402 when settlement fails", w.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	fake := &fakeFacilitator{}
	router := protectedRouter(fake, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("X-PAYMENT", "not base64!!!")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if fake.verifyCalls != 0 {
		t.Errorf("verify calls = %d, want 0", fake.verifyCalls)
	}
}

func TestMatchRequirement(t *testing.T) {
	requirements := []x402.PaymentRequirements{
		{Scheme: "exact", Network: "base"},
		{Scheme: "exact", Network: "base", SourceNetwork: "arbitrum"},
	}

	t.Run("destination network match", func(t *testing.T) {
		payload := x402.PaymentPayload{Scheme: "exact", Network: "base"}
		req, ok := matchRequirement(payload, requirements)
		if !ok || req.SourceNetwork != "" {
			t.Errorf("matched %+v, ok=%v", req, ok)
		}
	})

	t.Run("source network match", func(t *testing.T) {
		payload := x402.PaymentPayload{Scheme: "exact", Network: "arbitrum"}
		req, ok := matchRequirement(payload, requirements)
		if !ok || req.SourceNetwork != "arbitrum" {
			t.Errorf("matched %+v, ok=%v", req, ok)
		}
	})

	t.Run("cross-chain fallback", func(t *testing.T) {
		payload := x402.PaymentPayload{Scheme: "exact", Network: "polygon"}
		req, ok := matchRequirement(payload, requirements)
		if !ok || req.Network != "base" {
			t.Errorf("matched %+v, ok=%v", req, ok)
		}
	})

	t.Run("scheme mismatch", func(t *testing.T) {
		payload := x402.PaymentPayload{Scheme: "upto", Network: "base"}
		if _, ok := matchRequirement(payload, requirements); ok {
			t.Error("expected no match for unknown scheme")
		}
	})
}
