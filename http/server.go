package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/facilitator"
)

// Server exposes a facilitator engine over HTTP.
type Server struct {
	facilitator facilitator.Interface
	logger      *slog.Logger
}

// NewServer creates an HTTP server for the given facilitator.
func NewServer(f facilitator.Interface, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{facilitator: f, logger: logger}
}

// Router builds the gin engine with the facilitator routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/supported", s.handleSupported)
	router.POST("/verify", s.handleVerify)
	router.POST("/settle", s.handleSettle)

	return router
}

// Run starts the server on the given address and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Info("facilitator listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSupported(c *gin.Context) {
	resp, err := s.facilitator.Supported(c.Request.Context())
	if err != nil {
		s.logger.Error("supported lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleVerify implements POST /verify. Invalid payments come back as a
// 200 with isValid=false; only infrastructure failures produce a 5xx.
func (s *Server) handleVerify(c *gin.Context) {
	var req facilitator.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"x402Version": x402.X402Version,
			"error":       "invalid request body",
		})
		return
	}

	if req.X402Version != x402.X402Version {
		c.JSON(http.StatusOK, x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: x402.ErrUnsupportedVersion.Error(),
		})
		return
	}

	resp, err := s.facilitator.Verify(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("verify failed", "error", err, "payer", req.PaymentPayload.Payer())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleSettle implements POST /settle. Settlement failures come back
// as a 200 with success=false and a structured errorReason; a Go error
// from the engine (for example an unreadable settlement registry) is a
// 5xx because the payment's true state is unknown.
func (s *Server) handleSettle(c *gin.Context) {
	var req facilitator.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"x402Version": x402.X402Version,
			"error":       "invalid request body",
		})
		return
	}

	if req.X402Version != x402.X402Version {
		c.JSON(http.StatusOK, x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ErrUnsupportedVersion.Error(),
		})
		return
	}

	resp, err := s.facilitator.Settle(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, c.Request.Context().Err()) && c.Request.Context().Err() != nil {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
			return
		}
		s.logger.Error("settle failed", "error", err, "payer", req.PaymentPayload.Payer())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
