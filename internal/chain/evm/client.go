// Package evm implements chain.Environment over Ethereum JSON-RPC. It targets
// dev nodes with node-managed accounts (hardhat, anvil) and live networks whose
// node signs for the deployer; it never handles private keys.
package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CodeMethodNotFound is returned by nodes that do not implement a method.
const CodeMethodNotFound = -32601

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	// BreakerFailures trips the circuit after that many consecutive
	// transport failures. Zero uses 3.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client is a JSON-RPC client with rate limiting and a circuit breaker on the
// transport. RPC-level errors do not trip the breaker.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	nextID     atomic.Uint64
}

// NewClient creates a new JSON-RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "evm-rpc",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
	}, nil
}

// Call makes an RPC call. Transport failures, HTTP errors and an open circuit
// are reported as EnvironmentUnavailable; RPC error objects are returned as
// *RPCError for the caller to classify.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, bserr.New(bserr.KindEnvironmentUnavailable, method, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, params)
	})
	if err != nil {
		return nil, bserr.New(bserr.KindEnvironmentUnavailable, method, err)
	}

	rpcResp := out.(*RPCResponse)
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *Client) do(ctx context.Context, method string, params []interface{}) (*RPCResponse, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("node returned HTTP %d", resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &rpcResp, nil
}

// CallResult makes an RPC call and decodes the result into out.
func (c *Client) CallResult(ctx context.Context, method string, params []interface{}, out interface{}) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return bserr.New(bserr.KindEnvironmentUnavailable, method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

// BreakerState exposes the circuit state for status reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
