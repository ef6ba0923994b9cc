// Package apiclient is a stateless, typed wrapper around the remote
// marketplace admin API. It performs no retries and no caching.
package apiclient

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
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 64 << 10

// Config carries the opaque connection settings injected at startup.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Observer records the outcome of every remote call.
type Observer interface {
	ObserveUpstream(resource, outcome string, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver installs a call observer, usually the metrics registry.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client issues HTTP requests against the marketplace API.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// NewClient constructs a client. The transport is wrapped with otelhttp so
// outbound calls join the caller's trace.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates as an admin.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OutcomeCancelled is reported to the observer for calls whose context
// was cancelled by the caller.
const OutcomeCancelled = "cancelled"

// request describes a single call.
type request struct {
	resource string
	method   string
	path     string
	query    url.Values
	body     any
}

// do sends req and decodes a 2xx JSON body into out. Every failure is an *Error.
func (c *Client) do(ctx context.Context, req request, out any) error {
	start := time.Now()
	err := c.send(ctx, req, out)
	// A caller that gave up, e.g. a superseded list fetch, is not an upstream failure.
	cancelled := err != nil && errors.Is(ctx.Err(), context.Canceled)
	if c.observer != nil {
		outcome := "ok"
		switch {
		case cancelled:
			outcome = OutcomeCancelled
		case err != nil:
			outcome = string(KindOf(err))
		}
		c.observer.ObserveUpstream(req.resource, outcome, time.Since(start))
	}
	switch {
	case cancelled:
		c.logger.Debug("marketplace api call cancelled",
			slog.String("method", req.method),
			slog.String("path", req.path))
	case err != nil && KindOf(err) != KindValidation:
		c.logger.Warn("marketplace api call failed",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Any("error", err))
	}
	return err
}

func (c *Client) send(ctx context.Context, req request, out any) error {
	if c.baseURL == "" {
		return &Error{Kind: KindNetwork, Message: "api base url not configured"}
	}
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return NewValidationError(fmt.Sprintf("encode request: %v", err), nil)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return networkError(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if req.method != http.MethodGet {
		if key := IdempotencyKeyFromContext(ctx); key != "" {
			httpReq.Header.Set("Idempotency-Key", key)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return networkError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return networkError(err)
		}
		return NewServerError(resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
