package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ProtocolVersion is the MCP protocol revision this server negotiates.
const ProtocolVersion = "2024-11-05"

// EngineState tracks the lifecycle of a protocol engine.
type EngineState int32

const (
	// StateUninitialized is the state of a freshly created engine, before the
	// initialize handshake has been acknowledged.
	StateUninitialized EngineState = iota

	// StateReady accepts any number of request/response exchanges.
	StateReady

	// StateClosed is terminal; every further message fails with a
	// session-closed error.
	StateClosed
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine decodes JSON-RPC envelopes for one session, validates method and
// engine state, dispatches invocations to the tool registry, and encodes
// responses. Exactly one session owns one engine; engines are never shared.
//
// The engine does not serialize overlapping calls on its session: a client
// that pipelines invocations gets concurrent execution, safe per store
// operation but not transactional across calls.
type Engine struct {
	registry   *Registry
	serverInfo ServerInfo

	mu    sync.Mutex
	state EngineState
}

// NewEngine creates an engine in StateUninitialized bound to the given
// registry.
func NewEngine(registry *Registry, info ServerInfo) *Engine {
	return &Engine{
		registry:   registry,
		serverInfo: info,
		state:      StateUninitialized,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Close moves the engine to its terminal state. Safe to call from any state
// and more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	e.state = StateClosed
	e.mu.Unlock()
}

// HandleRequest processes one JSON-RPC 2.0 envelope and returns the encoded
// response. The second return value reports whether the response carries a
// protocol-plane error (malformed envelope, unknown method, or engine-state
// violation); tool-level failures are data-plane results and report false.
func (e *Engine) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, bool) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return errorResponse(nil, ErrCodeParseError, "Parse error", err.Error()), true
	}

	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil), true
	}

	switch req.Method {
	case "initialize":
		return e.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notification; no response body required. Return an empty object.
		return successResponse(req.ID, map[string]interface{}{}), false
	case "tools/list":
		return e.handleToolsList(req)
	case "tools/call":
		return e.handleToolsCall(ctx, req)
	case "ping":
		return successResponse(req.ID, map[string]interface{}{}), false
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method), nil), true
	}
}

// handleInitialize negotiates protocol version and capabilities and moves the
// engine to StateReady.
func (e *Engine) handleInitialize(req JSONRPCRequest) ([]byte, bool) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return errorResponse(req.ID, ErrCodeSessionClosed, "Session closed", nil), true
	}
	e.state = StateReady
	e.mu.Unlock()

	// Client-proposed version and capabilities are advisory; the server
	// answers with the revision it speaks.
	return successResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: e.serverInfo,
	}), false
}

// requireReady checks that the engine is in StateReady and returns the
// protocol error response when it is not.
func (e *Engine) requireReady(id interface{}) ([]byte, bool) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	switch state {
	case StateReady:
		return nil, false
	case StateClosed:
		return errorResponse(id, ErrCodeSessionClosed, "Session closed", nil), true
	default:
		return errorResponse(id, ErrCodeNotInitialized, "Server not initialized", nil), true
	}
}

func (e *Engine) handleToolsList(req JSONRPCRequest) ([]byte, bool) {
	if resp, bad := e.requireReady(req.ID); bad {
		return resp, true
	}
	return successResponse(req.ID, ToolsListResult{Tools: e.registry.List()}), false
}

// handleToolsCall dispatches a tools/call request and wraps the outcome in
// the MCP content envelope. Dispatch and handler failures become IsError
// payloads inside a successful JSON-RPC response.
func (e *Engine) handleToolsCall(ctx context.Context, req JSONRPCRequest) ([]byte, bool) {
	if resp, bad := e.requireReady(req.ID); bad {
		return resp, true
	}

	var p ToolCallParams
	if err := unmarshalParams(req.Params, &p); err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error()), true
	}
	if p.Name == "" {
		return errorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", "tool name is required"), true
	}

	// Re-marshal the arguments object so the handler receives raw JSON it
	// can unmarshal into its own typed args struct.
	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return errorResponse(req.ID, ErrCodeInternalError,
			fmt.Sprintf("failed to marshal arguments: %v", err), nil), true
	}

	result, handlerErr := e.registry.Dispatch(ctx, p.Name, argsJSON)
	if handlerErr != nil {
		return successResponse(req.ID, &ToolCallResult{
			Content: []ToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}), false
	}

	text, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, ErrCodeInternalError,
			fmt.Sprintf("failed to marshal result: %v", err), nil), true
	}

	return successResponse(req.ID, &ToolCallResult{
		Content: []ToolCallContent{{Type: "text", Text: string(text)}},
	}), false
}

// unmarshalParams converts the decoded params value into the destination
// struct by round-tripping through JSON.
func unmarshalParams(params interface{}, dest interface{}) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// successResponse encodes a JSON-RPC success envelope.
func successResponse(id interface{}, result interface{}) []byte {
	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
	if err != nil {
		// Marshal of our own response types should never fail; keep the
		// framing alive if it somehow does.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}

// errorResponse encodes a JSON-RPC error envelope.
func errorResponse(id interface{}, code int, message string, data interface{}) []byte {
	out, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}
