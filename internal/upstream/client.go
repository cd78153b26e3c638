// Package upstream relays JSON requests to the Hyle node's HTTP API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	PathRegisterContract = "contract/register"
	PathPostRoot         = "contract/root"

	maxResponseBytes = 5 << 20
)

var (
	// ErrInvalidResponse is returned when the node answered with a body that is not JSON.
	ErrInvalidResponse = errors.New("upstream response is not valid JSON")

	// ErrResponseTooLarge is returned when the node's body exceeds the relay limit.
	ErrResponseTooLarge = fmt.Errorf("upstream response exceeds %d bytes", maxResponseBytes)
)

// UnreachableError reports that the exchange with the node could not complete.
type UnreachableError struct {
	Cause error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("Failed to connect to Hyle server: %v", e.Cause)
}

func (e *UnreachableError) Unwrap() error {
	return e.Cause
}

// Result is a completed exchange. Non-2xx statuses are results, not errors.
type Result struct {
	StatusCode int
	Body       json.RawMessage
}

type Forwarder interface {
	Forward(ctx context.Context, path string, body json.RawMessage) (Result, error)
}

type Option func(*Client)

// WithTimeout bounds each exchange. Zero keeps the http.Client default of no timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("upstream base URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("upstream base URL must be absolute: %q", trimmed)
	}

	c := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Forward POSTs body to <base>/<path> exactly once.
func (c *Client) Forward(ctx context.Context, path string, body json.RawMessage) (Result, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return Result{}, errors.New("upstream path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &UnreachableError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Result{}, &UnreachableError{Cause: fmt.Errorf("read response: %w", err)}
	}
	if len(raw) > maxResponseBytes {
		return Result{}, fmt.Errorf("%w: status %d", ErrResponseTooLarge, resp.StatusCode)
	}
	if !json.Valid(raw) {
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 200))
	}

	return Result{
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(raw),
	}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
