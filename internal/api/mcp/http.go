package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// SessionHeader is the HTTP header carrying the session identifier on both
// requests and responses.
const SessionHeader = "Mcp-Session-Id"

// maxRequestBytes bounds a single JSON-RPC envelope (4 MB).
const maxRequestBytes = 4 * 1024 * 1024

// HTTPTransport binds the session registry to the HTTP request/response
// cycle on a single endpoint:
//
//	POST   one JSON-RPC exchange, routed to the session named by the
//	       Mcp-Session-Id header (a new session is minted when the header
//	       is absent or stale, and echoed back in the response header).
//	GET    long-lived server-push channel (Server-Sent Events) bound to an
//	       existing session; disconnection tears the session down.
//	DELETE explicit session teardown.
type HTTPTransport struct {
	sessions *SessionRegistry
}

// NewHTTPTransport creates a transport over the given session registry.
func NewHTTPTransport(sessions *SessionRegistry) *HTTPTransport {
	return &HTTPTransport{sessions: sessions}
}

// ServeHTTP routes by method.
func (t *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	case http.MethodGet:
		t.handleStream(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePost processes one JSON-RPC envelope. Well-formed envelopes always
// yield HTTP 200; tool-level failure travels inside the result payload.
// Only protocol-plane errors (malformed envelope, engine-state violation)
// produce a 4xx status, still with a JSON-RPC error body.
func (t *HTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	sess, created := t.sessions.Resolve(r.Header.Get(SessionHeader))
	if created {
		log.Printf("mcp: session %s created", sess.ID)
	}

	resp, protocolErr := sess.Engine.HandleRequest(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(SessionHeader, sess.ID)
	if protocolErr {
		w.WriteHeader(http.StatusBadRequest)
	}
	_, _ = w.Write(resp)
}

// handleDelete tears down the session named by the session header.
func (t *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+SessionHeader+" header")
		return
	}

	if !t.sessions.Terminate(id) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	log.Printf("mcp: session %s terminated", id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"terminated"}`))
}

// handleStream attaches a Server-Sent Events push channel to an existing
// session. When the client disconnects, the registry is notified so the
// session does not leak.
func (t *HTTPTransport) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+SessionHeader+" header")
		return
	}

	sess, ok := t.sessions.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionHeader, sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	push := sess.AttachPush()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			t.sessions.OnTransportClosed(sess.ID)
			return
		case payload := <-push:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			// SSE comment line keeps intermediaries from timing out the
			// connection.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeJSONError writes a plain JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
