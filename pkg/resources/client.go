// Package resources provides the opaque request/response client used by
// autonomous workflow steps to reach backend resources and external APIs.
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeoutSeconds = 30

// Method kinds accepted in step configuration.
const (
	MethodCreate = "create"
	MethodRead   = "read"
	MethodUpdate = "update"
	MethodDelete = "delete"
)

// RetryConfig defines retry behavior for resource calls.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Response is the outcome of one resource call.
type Response struct {
	StatusCode int
	Body       any
}

// Client issues JSON requests against endpoint templates already resolved by
// the caller.
type Client struct {
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		retry:      RetryConfig{Attempts: 1},
		logger:     logger.With("module", "resources"),
	}
}

// WithRetry returns a copy of the client using the given retry policy.
func (c *Client) WithRetry(retry RetryConfig) *Client {
	clone := *c
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	clone.retry = retry

	return &clone
}

// Call performs one resource operation. kind is one of the method kinds
// above; anything else is passed through as an HTTP verb.
func (c *Client) Call(ctx context.Context, kind, endpoint string, payload map[string]any) (*Response, error) {
	method := httpMethod(kind)

	var lastErr error

	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		response, err := c.callOnce(ctx, method, endpoint, payload)
		if err == nil {
			return response, nil
		}

		lastErr = err
		c.logger.WarnContext(ctx, "Resource call failed",
			"method", method, "endpoint", endpoint, "attempt", attempt, "error", err)

		if attempt < c.retry.Attempts && c.retry.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.Delay):
			}
		}
	}

	return nil, fmt.Errorf("resource call %s %s failed after %d attempts: %w",
		method, endpoint, c.retry.Attempts, lastErr)
}

func (c *Client) callOnce(ctx context.Context, method, endpoint string, payload map[string]any) (*Response, error) {
	var body io.Reader

	if payload != nil && method != http.MethodGet {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("resource endpoint returned status %d", resp.StatusCode)
	}

	var decoded any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			decoded = string(raw)
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: decoded}, nil
}

func httpMethod(kind string) string {
	switch strings.ToLower(kind) {
	case MethodCreate:
		return http.MethodPost
	case MethodRead:
		return http.MethodGet
	case MethodUpdate:
		return http.MethodPut
	case MethodDelete:
		return http.MethodDelete
	default:
		return strings.ToUpper(kind)
	}
}
