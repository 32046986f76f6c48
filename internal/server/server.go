// Package server provides HTTP server initialization and lifecycle management
// for the lattice dispatcher.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gridloom/lattice/internal/api/mcp"
	"github.com/gridloom/lattice/internal/config"
	"github.com/gridloom/lattice/internal/events"
)

// Start builds the HTTP surface and begins serving. It returns the actual
// listen address, useful when cfg names port 0 in tests. The caller owns the
// events hub; Start exposes it on /events and stops it at shutdown. Shutdown
// is driven by ctx cancellation.
func Start(ctx context.Context, cfg *config.Config, sessions *mcp.SessionRegistry, hub *events.Hub) (string, error) {
	mux := http.NewServeMux()

	transport := mcp.NewHTTPTransport(sessions)
	mux.Handle("/mcp", RequireAuth(transport, cfg))
	mux.Handle("/events", hub)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	rateLimiter := NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)
	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams on GET /mcp stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	log.Printf("lattice: listening on %s", actualAddr)
	return actualAddr, nil
}
