// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RPCHandler answers one JSON-RPC method. Returning a non-nil *MockRPCError
// produces a JSON-RPC error object.
type RPCHandler func(params []json.RawMessage) (interface{}, *MockRPCError)

// MockRPCError is the error object returned by MockRPCNode handlers.
type MockRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MockRPCNode is an httptest-backed JSON-RPC node with per-method handlers.
type MockRPCNode struct {
	mu       sync.Mutex
	server   *httptest.Server
	handlers map[string]RPCHandler
	calls    map[string]int
	params   map[string][][]json.RawMessage
	down     bool
}

// NewMockRPCNode starts a node. Call Close when done.
func NewMockRPCNode() *MockRPCNode {
	n := &MockRPCNode{
		handlers: make(map[string]RPCHandler),
		calls:    make(map[string]int),
		params:   make(map[string][][]json.RawMessage),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

// URL returns the node endpoint.
func (n *MockRPCNode) URL() string { return n.server.URL }

// Close shuts the node down.
func (n *MockRPCNode) Close() { n.server.Close() }

// Handle registers fn for method.
func (n *MockRPCNode) Handle(method string, fn RPCHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

// HandleResult registers a constant result for method.
func (n *MockRPCNode) HandleResult(method string, result interface{}) {
	n.Handle(method, func([]json.RawMessage) (interface{}, *MockRPCError) { return result, nil })
}

// SetDown makes the node answer every request with HTTP 503.
func (n *MockRPCNode) SetDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

// Calls returns how many times method was requested.
func (n *MockRPCNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Params returns the params of every request for method, in order.
func (n *MockRPCNode) Params(method string) [][]json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]json.RawMessage, len(n.params[method]))
	copy(out, n.params[method])
	return out
}

type mockRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *MockRPCNode) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req mockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	if n.down {
		n.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	n.calls[req.Method]++
	n.params[req.Method] = append(n.params[req.Method], req.Params)
	fn, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = MockRPCError{Code: -32601, Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method)}
	} else if result, rpcErr := fn(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
