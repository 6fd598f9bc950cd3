// Package completion wraps the opaque text-completion collaborator and the
// defensive parsing applied to everything it returns.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultTimeoutSeconds = 30
	defaultRetryAttempts  = 2
	retryDelay            = 500 * time.Millisecond
)

// ErrEmptyCompletion is returned when the service answers but produces no
// usable text.
var ErrEmptyCompletion = errors.New("completion: empty response")

// Service is the opaque text-completion contract. Implementations must
// tolerate being asked for free-form text with no schema guarantee.
type Service interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPService calls an OpenAI-style chat completion endpoint.
type HTTPService struct {
	endpoint string
	apiKey   string
	model    string
	attempts int
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPService(endpoint, apiKey, model string, logger *slog.Logger) *HTTPService {
	return &HTTPService{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		attempts: defaultRetryAttempts,
		client:   &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:   logger.With("module", "completion"),
	}
}

func (s *HTTPService) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.attempts; attempt++ {
		text, err := s.completeOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		s.logger.WarnContext(ctx, "Completion attempt failed",
			"attempt", attempt, "error", err)

		if attempt < s.attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", s.attempts, lastErr)
}

func (s *HTTPService) completeOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}

	text := gjson.GetBytes(payload, "choices.0.message.content").String()
	if text == "" {
		return "", ErrEmptyCompletion
	}

	return text, nil
}
