package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/encoding"
	"github.com/divi2806/x402-cross-bridge-sdk/facilitator"
)

// PaymentContextKey is the gin context key for the verified payment.
const PaymentContextKey = "x402_payment"

// MiddlewareConfig configures payment gating for a resource server.
type MiddlewareConfig struct {
	// Facilitator verifies and settles payments. Use a FacilitatorClient
	// for a remote facilitator or facilitator.Service for a local one.
	Facilitator facilitator.Interface

	// PaymentRequirements lists the payment options the server accepts.
	PaymentRequirements []x402.PaymentRequirements

	// VerifyOnly skips settlement; the resource server settles later.
	VerifyOnly bool

	// Logger receives structured request logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewPaymentMiddleware creates a gin middleware that gates handlers
// behind an x402 payment. Requests without a valid X-PAYMENT header get
// a 402 with requirements; paid requests are verified and settled
// before the protected handler runs, and the settlement receipt is
// attached as the X-PAYMENT-RESPONSE header.
func NewPaymentMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		paymentHeader := c.GetHeader("X-PAYMENT")
		if paymentHeader == "" {
			logger.Info("no payment header provided", "path", c.Request.URL.Path)
			sendPaymentRequired(c, config.PaymentRequirements, "Payment required")
			return
		}

		payload, err := encoding.DecodePaymentHeader(paymentHeader)
		if err != nil {
			logger.Warn("invalid payment header", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Invalid payment header",
			})
			return
		}

		requirement, ok := matchRequirement(payload, config.PaymentRequirements)
		if !ok {
			logger.Warn("no matching requirement",
				"scheme", payload.Scheme, "network", payload.Network)
			sendPaymentRequired(c, config.PaymentRequirements, "No matching payment requirement")
			return
		}

		verifyResp, err := config.Facilitator.Verify(c.Request.Context(), &facilitator.VerifyRequest{
			X402Version:         x402.X402Version,
			PaymentPayload:      payload,
			PaymentRequirements: requirement,
		})
		if err != nil {
			logger.Error("facilitator verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Payment verification failed",
			})
			return
		}
		if !verifyResp.IsValid {
			logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason)
			sendPaymentRequired(c, config.PaymentRequirements, verifyResp.InvalidReason)
			return
		}

		logger.Info("payment verified", "payer", verifyResp.Payer)

		if !config.VerifyOnly {
			settleResp, err := config.Facilitator.Settle(c.Request.Context(), &facilitator.SettleRequest{
				X402Version:         x402.X402Version,
				PaymentPayload:      payload,
				PaymentRequirements: requirement,
			})
			if err != nil {
				logger.Error("settlement failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"x402Version": x402.X402Version,
					"error":       "Payment settlement failed",
				})
				return
			}
			if !settleResp.Success {
				logger.Warn("settlement unsuccessful", "reason", settleResp.ErrorReason)
				sendPaymentRequired(c, config.PaymentRequirements, settleResp.ErrorReason)
				return
			}

			logger.Info("payment settled",
				"transaction", settleResp.Transaction, "payer", settleResp.Payer)

			if header, herr := encoding.EncodeSettleResponseHeader(*settleResp); herr == nil {
				c.Header("X-PAYMENT-RESPONSE", header)
			} else {
				// Settlement succeeded; a missing receipt header is not
				// worth failing the request over.
				logger.Warn("failed to encode payment response header", "error", herr)
			}
		}

		c.Set(PaymentContextKey, verifyResp)
		c.Next()
	}
}

// matchRequirement picks the requirement the payload is paying against:
// same scheme and the payload's network as either the destination or
// the declared source network.
func matchRequirement(payload x402.PaymentPayload, requirements []x402.PaymentRequirements) (x402.PaymentRequirements, bool) {
	for _, req := range requirements {
		if payload.Scheme != req.Scheme {
			continue
		}
		if strings.EqualFold(payload.Network, req.Network) ||
			strings.EqualFold(payload.Network, req.SourceNetwork) {
			return req, true
		}
	}

	// A cross-chain facilitator accepts payment from any supported
	// source chain; fall back to a scheme-only match.
	for _, req := range requirements {
		if payload.Scheme == req.Scheme && req.SourceNetwork == "" {
			return req, true
		}
	}
	return x402.PaymentRequirements{}, false
}

// sendPaymentRequired aborts the request with a 402 and the accepted
// payment options.
func sendPaymentRequired(c *gin.Context, requirements []x402.PaymentRequirements, errMsg string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       errMsg,
		Accepts:     requirements,
	})
}

// GetPaymentFromContext extracts the verified payment from the gin
// context. Returns nil when the request was not payment gated.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
