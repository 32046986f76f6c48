// Package platform provides thin adapters to the external platforms lattice
// exposes as tool groups: a deployment platform, a managed-database platform,
// and a source-hosting platform.
//
// Adapters are plain collaborators from the dispatcher's point of view: each
// call takes caller-supplied credentials plus operation parameters and
// returns a decoded payload or the platform's reported error. The dispatcher
// imposes no retry policy; a circuit breaker per platform keeps a failing
// upstream from soaking every request in timeouts.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the platform's circuit breaker is open and
// rejects requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("platform circuit breaker is open")

// APIError carries an upstream platform's reported failure.
type APIError struct {
	Platform string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform, e.Status, e.Message)
}

// Client is a shared HTTP client for one platform, wrapping every call in a
// circuit breaker.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a platform client. After three consecutive failures the
// breaker opens for thirty seconds, then allows probe requests through a
// half-open state.
func NewClient(name, baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 2,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// BaseURL returns the platform API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs one authenticated request against the platform API and decodes
// the JSON response into out (when out is non-nil). The caller-supplied token
// is passed through verbatim as a bearer credential.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, token, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
		}
		return err
	}

	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
	}
	return nil
}

// roundTrip executes the HTTP exchange and maps non-2xx statuses to APIError.
func (c *Client) roundTrip(ctx context.Context, method, path, token string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", c.name, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", c.name, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Platform: c.name,
			Status:   resp.StatusCode,
			Message:  errorMessage(data),
		}
	}
	return data, nil
}

// errorMessage extracts a human-readable message from an upstream error body,
// falling back to the raw body text.
func errorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(data) > 256 {
		data = data[:256]
	}
	return string(data)
}
