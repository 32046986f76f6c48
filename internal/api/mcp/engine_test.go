package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerInfo() ServerInfo {
	return ServerInfo{Name: "lattice-test", Version: "0.0.1"}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := NewRegistry()
	reg.Register(echoDescriptor("echo"))
	reg.Register(Descriptor{
		Name:        "always_fails",
		Description: "fails on every call",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return nil, errors.New("handler exploded")
		},
	})
	return NewEngine(reg, testServerInfo())
}

// request runs one envelope through the engine and decodes the response.
func request(t *testing.T, e *Engine, body string) (JSONRPCResponse, bool) {
	t.Helper()
	raw, protocolErr := e.HandleRequest(context.Background(), []byte(body))
	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp, protocolErr
}

func initialize(t *testing.T, e *Engine) {
	t.Helper()
	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`)
	require.False(t, protocolErr)
	require.Nil(t, resp.Error)
}

func TestEngineInitializeMovesToReady(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, StateUninitialized, e.State())

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.False(t, protocolErr)
	require.Nil(t, resp.Error)
	assert.Equal(t, StateReady, e.State())

	result, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var init InitializeResult
	require.NoError(t, json.Unmarshal(result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "lattice-test", init.ServerInfo.Name)
	assert.NotNil(t, init.Capabilities.Tools)
}

func TestEngineRejectsRequestsBeforeInitialize(t *testing.T) {
	e := newTestEngine(t)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotInitialized, resp.Error.Code)
}

func TestEngineRejectsRequestsAfterClose(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)
	e.Close()
	assert.Equal(t, StateClosed, e.State())

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSessionClosed, resp.Error.Code)

	// Closed is terminal: initialize cannot revive the engine.
	resp, protocolErr = request(t, e, `{"jsonrpc":"2.0","id":4,"method":"initialize","params":{}}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSessionClosed, resp.Error.Code)
	assert.Equal(t, StateClosed, e.State())
}

func TestEngineParseError(t *testing.T) {
	e := newTestEngine(t)

	resp, protocolErr := request(t, e, `{not json`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestEngineInvalidVersion(t *testing.T) {
	e := newTestEngine(t)

	resp, protocolErr := request(t, e, `{"jsonrpc":"1.0","id":1,"method":"initialize"}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestEngineMethodNotFound(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":5,"method":"no/such/method"}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no/such/method")
}

func TestEngineInitializedNotificationIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":6,"method":"notifications/initialized"}`)
	assert.False(t, protocolErr)
	assert.Nil(t, resp.Error)
	assert.Equal(t, StateReady, e.State())
}

func TestEngineToolsList(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	require.False(t, protocolErr)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var list ToolsListResult
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "echo", list.Tools[0].Name)
	assert.Equal(t, "always_fails", list.Tools[1].Name)
}

// toolCallResult decodes a tools/call response payload.
func toolCallResult(t *testing.T, resp JSONRPCResponse) ToolCallResult {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestEngineToolsCallSuccess(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"echo","arguments":{"k":"v"}}}`)
	require.False(t, protocolErr)
	require.Nil(t, resp.Error)

	result := toolCallResult(t, resp)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Contains(t, result.Content[0].Text, `"k":"v"`)
}

func TestEngineToolsCallHandlerFailureIsDataPlane(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"always_fails","arguments":{}}}`)
	require.False(t, protocolErr, "a handler failure must not be a protocol error")
	require.Nil(t, resp.Error)

	result := toolCallResult(t, resp)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "handler exploded")
}

func TestEngineToolsCallUnknownToolIsDataPlane(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"not_registered","arguments":{}}}`)
	require.False(t, protocolErr)
	require.Nil(t, resp.Error)

	result := toolCallResult(t, resp)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "not_registered")
}

func TestEngineToolsCallMissingName(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"arguments":{}}}`)
	assert.True(t, protocolErr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestEnginePing(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	resp, protocolErr := request(t, e, `{"jsonrpc":"2.0","id":12,"method":"ping"}`)
	assert.False(t, protocolErr)
	assert.Nil(t, resp.Error)
}

func TestEngineConcurrentToolCalls(t *testing.T) {
	e := newTestEngine(t)
	initialize(t, e)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"n":%d}}}`, n, n)
			_, protocolErr := e.HandleRequest(context.Background(), []byte(body))
			assert.False(t, protocolErr)
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
