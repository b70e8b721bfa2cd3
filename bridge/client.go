// Package bridge wraps the cross-chain swap aggregator API used to move
// collected funds between networks. It exposes quote retrieval and a
// tri-state status model for asynchronous bridge execution.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/retry"
)

// DefaultBaseURL is the production aggregator endpoint.
const DefaultBaseURL = "https://api.relay.link"

// DefaultSlippageBps is the slippage tolerance sent with quote requests,
// in basis points.
const DefaultSlippageBps = "50"

// Status is the tri-state outcome of an asynchronous bridge operation.
type Status int

const (
	// StatusPending means the operation is still in flight (or its state
	// could not be determined).
	StatusPending Status = iota
	// StatusCompleted means funds were delivered on the destination chain.
	StatusCompleted
	// StatusFailed means the operation terminally failed or was refunded.
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// QuoteRequest describes a cross-chain swap to be quoted.
type QuoteRequest struct {
	// User is the address that will execute the origin-chain transaction.
	User string
	// Recipient receives the output on the destination chain.
	Recipient string

	OriginChainID       int64
	DestinationChainID  int64
	OriginCurrency      string
	DestinationCurrency string

	// Amount is the exact output amount required on the destination
	// chain, in atomic units.
	Amount string
}

// Quote is an executable swap route returned by the aggregator.
type Quote struct {
	// RequestID keys status lookups for this swap.
	RequestID string
	// To, Data and Value describe the origin-chain transaction that
	// executes the route.
	To      string
	Data    string
	Value   string
	ChainID int64
	// AmountIn is the origin-chain input the route will consume.
	AmountIn string
	// AmountOut is the destination-chain output the route will deliver.
	AmountOut string
}

// Client calls the swap aggregator HTTP API.
type Client struct {
	// BaseURL overrides DefaultBaseURL when set.
	BaseURL string
	// HTTPClient overrides the default HTTP client when set.
	HTTPClient *http.Client
	// Slippage is the slippage tolerance in basis points. Defaults to
	// DefaultSlippageBps.
	Slippage string
	// Logger receives structured request logs. Defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// quoteResponse mirrors the aggregator's quote payload. Only the fields
// the settlement pipeline consumes are decoded.
type quoteResponse struct {
	Steps []struct {
		RequestID string `json:"requestId"`
		Items     []struct {
			Data struct {
				To      string `json:"to"`
				Data    string `json:"data"`
				Value   string `json:"value"`
				ChainID int64  `json:"chainId"`
			} `json:"data"`
		} `json:"items"`
	} `json:"steps"`
	Details struct {
		CurrencyIn struct {
			Amount string `json:"amount"`
		} `json:"currencyIn"`
		CurrencyOut struct {
			Amount string `json:"amount"`
		} `json:"currencyOut"`
	} `json:"details"`
}

// GetSwapBridgeQuote requests an exact-output route for the given swap.
// Returns ErrQuoteUnavailable when no executable route exists.
func (c *Client) GetSwapBridgeQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	body := map[string]interface{}{
		"user":                req.User,
		"recipient":           req.Recipient,
		"originChainId":       req.OriginChainID,
		"destinationChainId":  req.DestinationChainID,
		"originCurrency":      req.OriginCurrency,
		"destinationCurrency": req.DestinationCurrency,
		"amount":              req.Amount,
		"tradeType":           "EXACT_OUTPUT",
		"slippageTolerance":   c.slippage(),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/quote", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", x402.ErrQuoteUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger().Warn("quote request rejected",
			"status", resp.StatusCode,
			"originChainId", req.OriginChainID,
			"destinationChainId", req.DestinationChainID)
		return nil, fmt.Errorf("%w: aggregator returned status %d", x402.ErrQuoteUnavailable, resp.StatusCode)
	}

	var decoded quoteResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed quote response: %v", x402.ErrQuoteUnavailable, err)
	}

	if len(decoded.Steps) == 0 || len(decoded.Steps[0].Items) == 0 {
		return nil, fmt.Errorf("%w: no route available", x402.ErrQuoteUnavailable)
	}

	step := decoded.Steps[0]
	item := step.Items[0]
	if item.Data.To == "" || item.Data.Data == "" {
		return nil, fmt.Errorf("%w: route missing transaction data", x402.ErrQuoteUnavailable)
	}

	quote := &Quote{
		RequestID: step.RequestID,
		To:        item.Data.To,
		Data:      item.Data.Data,
		Value:     item.Data.Value,
		ChainID:   item.Data.ChainID,
		AmountIn:  decoded.Details.CurrencyIn.Amount,
		AmountOut: decoded.Details.CurrencyOut.Amount,
	}

	c.logger().Debug("bridge quote received",
		"requestId", quote.RequestID,
		"amountIn", quote.AmountIn,
		"amountOut", quote.AmountOut,
		"chainId", quote.ChainID)

	return quote, nil
}

func (c *Client) slippage() string {
	if c.Slippage != "" {
		return c.Slippage
	}
	return DefaultSlippageBps
}

// statusResponse mirrors the aggregator's status payload.
type statusResponse struct {
	Status string `json:"status"`
}

// GetStatus looks up the current state of a bridge operation by its
// request key. Lookup errors map to StatusPending rather than failing:
// a transient API outage must never flip an in-flight payment to FAILED.
func (c *Client) GetStatus(ctx context.Context, key string) Status {
	endpoint := fmt.Sprintf("%s/intents/status?requestId=%s", c.baseURL(), url.QueryEscape(key))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusPending
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		c.logger().Warn("bridge status lookup failed", "key", key, "error", err)
		return StatusPending
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger().Warn("bridge status lookup rejected", "key", key, "status", resp.StatusCode)
		return StatusPending
	}

	var decoded statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		c.logger().Warn("bridge status response malformed", "key", key, "error", err)
		return StatusPending
	}

	switch decoded.Status {
	case "success":
		return StatusCompleted
	case "failure", "refund":
		return StatusFailed
	case "waiting", "pending", "submitted", "delayed":
		return StatusPending
	default:
		c.logger().Warn("unrecognized bridge status", "key", key, "status", decoded.Status)
		return StatusPending
	}
}

// PollUntilTerminal polls GetStatus until the operation reaches a
// terminal state or the poll budget runs out. When the budget is
// exhausted it returns the last observed status together with
// ErrBridgeStatusUnknown so callers can surface a retryable outcome.
func (c *Client) PollUntilTerminal(ctx context.Context, key string, cfg x402.PollConfig) (Status, error) {
	if err := cfg.Validate(); err != nil {
		return StatusPending, err
	}

	last := StatusPending
	err := retry.Poll(ctx, cfg.Interval, cfg.MaxAttempts, func(ctx context.Context) (bool, error) {
		last = c.GetStatus(ctx, key)
		return last != StatusPending, nil
	})

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, retry.ErrBudgetExhausted):
		c.logger().Warn("bridge status still pending after poll budget", "key", key, "attempts", cfg.MaxAttempts)
		return last, fmt.Errorf("%w: still pending after %d attempts", x402.ErrBridgeStatusUnknown, cfg.MaxAttempts)
	default:
		return last, err
	}
}
