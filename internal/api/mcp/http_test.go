package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T) (*HTTPTransport, *SessionRegistry) {
	t.Helper()
	sessions := newTestSessionRegistry(0)
	return NewHTTPTransport(sessions), sessions
}

// post sends one JSON-RPC envelope through the transport.
func post(t *testing.T, transport *HTTPTransport, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONRPCResponse {
	t.Helper()
	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPostWithoutSessionHeaderMintsSession(t *testing.T) {
	transport, sessions := newTestTransport(t)

	rec := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	_, ok := sessions.Get(id)
	assert.True(t, ok)
}

func TestPostSequentialCallsMintDistinctSessions(t *testing.T) {
	transport, _ := newTestTransport(t)

	first := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	second := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	idA := first.Header().Get(SessionHeader)
	idB := second.Header().Get(SessionHeader)
	require.NotEmpty(t, idA)
	require.NotEmpty(t, idB)
	assert.NotEqual(t, idA, idB)
}

func TestPostReusingSessionIDResolvesSameEngine(t *testing.T) {
	transport, sessions := newTestTransport(t)

	// First call initializes; reusing the id must land on the same engine,
	// observable because the second call works without re-initializing.
	first := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	id := first.Header().Get(SessionHeader)
	require.NotEmpty(t, id)

	sess, ok := sessions.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateReady, sess.Engine.State())

	second := post(t, transport, id, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, id, second.Header().Get(SessionHeader))
	resp := decodeResponse(t, second)
	assert.Nil(t, resp.Error)
}

func TestPostProtocolErrorYields400(t *testing.T) {
	transport, _ := newTestTransport(t)

	rec := post(t, transport, "", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestPostToolFailureYields200(t *testing.T) {
	transport, _ := newTestTransport(t)

	init := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	id := init.Header().Get(SessionHeader)

	rec := post(t, transport, id, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"no_such_tool","arguments":{}}}`)
	assert.Equal(t, http.StatusOK, rec.Code, "tool-level failure is not a protocol error")

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "no_such_tool")
}

func TestDeleteTerminatesSession(t *testing.T) {
	transport, sessions := newTestTransport(t)

	init := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	id := init.Header().Get(SessionHeader)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, id)
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "terminated")
	_, ok := sessions.Get(id)
	assert.False(t, ok)
}

func TestDeleteUnknownSessionYields404(t *testing.T) {
	transport, _ := newTestTransport(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, "unknown-id")
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteWithoutHeaderYields400(t *testing.T) {
	transport, _ := newTestTransport(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTerminatedSessionIDMintsFreshSessionOnReuse(t *testing.T) {
	transport, _ := newTestTransport(t)

	init := post(t, transport, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	id := init.Header().Get(SessionHeader)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, id)
	transport.ServeHTTP(httptest.NewRecorder(), req)

	// Reusing the torn-down id is treated as unknown: a fresh uninitialized
	// session is minted, so a bare tools/list fails the handshake check.
	rec := post(t, transport, id, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, id, rec.Header().Get(SessionHeader))

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotInitialized, resp.Error.Code)
}

func TestStreamRequiresSessionHeader(t *testing.T) {
	transport, _ := newTestTransport(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamUnknownSessionYields404(t *testing.T) {
	transport, _ := newTestTransport(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(SessionHeader, "unknown-id")
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamDeliversPushedPayloadsAndTearsDownOnDisconnect(t *testing.T) {
	sessions := newTestSessionRegistry(0)
	transport := NewHTTPTransport(sessions)

	srv := httptest.NewServer(transport)
	defer srv.Close()

	sess, _ := sessions.Resolve("")

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sess.ID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lineCh := make(chan []byte, 1)
	go func() {
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			if bytes.HasPrefix(line, []byte("data: ")) {
				lineCh <- line
				return
			}
		}
	}()

	// Keep nudging until the handler's channel is attached and a frame lands.
	var frame []byte
loop:
	for {
		select {
		case frame = <-lineCh:
			break loop
		case <-deadline:
			t.Fatal("no SSE frame received")
		case <-time.After(20 * time.Millisecond):
			sess.Push([]byte(`{"hello":"world"}`))
		}
	}
	assert.Contains(t, string(frame), `"hello":"world"`)

	// Client disconnect must tear the session down.
	cancel()
	require.Eventually(t, func() bool {
		_, ok := sessions.Get(sess.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMethodNotAllowed(t *testing.T) {
	transport, _ := newTestTransport(t)

	req := httptest.NewRequest(http.MethodPut, "/mcp", nil)
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
