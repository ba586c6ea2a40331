package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/pkg/logger"
)

// HTTPSender talks to the messaging provider's HTTP API with a bounded,
// fixed-interval retry for transient errors.
type HTTPSender struct {
	baseURL       string
	apiKey        string
	client        *http.Client
	retryAttempts int
	retryInterval time.Duration
	logger        *logger.Logger
}

// Config holds provider connection settings.
type Config struct {
	BaseURL       string
	APIKey        string
	RetryAttempts int
	RetryInterval time.Duration
	Timeout       time.Duration
}

// NewHTTPSender creates a provider client.
func NewHTTPSender(cfg Config, log *logger.Logger) *HTTPSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &HTTPSender{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		client:        &http.Client{Timeout: timeout},
		retryAttempts: attempts,
		retryInterval: interval,
		logger:        log,
	}
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// SendText sends a text message and returns the provider message id.
func (s *HTTPSender) SendText(ctx context.Context, tenantID, to, text string, opts SendOptions) (string, error) {
	payload := map[string]any{
		"to":           to,
		"text":         text,
		"link_preview": opts.LinkPreview,
	}
	if opts.QuoteID != "" {
		payload["quoted_id"] = opts.QuoteID
	}
	return s.post(ctx, fmt.Sprintf("/message/send-text/%s", tenantID), payload)
}

// SendMedia sends a media message with an optional caption.
func (s *HTTPSender) SendMedia(ctx context.Context, tenantID, to, mediaURL, caption string) (string, error) {
	payload := map[string]any{
		"to":        to,
		"media_url": mediaURL,
		"caption":   caption,
	}
	return s.post(ctx, fmt.Sprintf("/message/send-media/%s", tenantID), payload)
}

// SetPresence signals a presence state. Presence is best-effort: it uses a
// single attempt and the caller ignores failures.
func (s *HTTPSender) SetPresence(ctx context.Context, tenantID, to string, presence Presence) error {
	payload := map[string]any{
		"to":       to,
		"presence": string(presence),
	}
	_, err := s.doOnce(ctx, fmt.Sprintf("/presence/%s", tenantID), payload)
	return err
}

// post performs a retried provider call: transient failures (network errors,
// 5xx) retry on a fixed interval up to the attempt budget, 4xx fails
// immediately.
func (s *HTTPSender) post(ctx context.Context, path string, payload map[string]any) (string, error) {
	var providerID string

	operation := func() error {
		id, err := s.doOnce(ctx, path, payload)
		if err != nil {
			return err
		}
		providerID = id
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryInterval), uint64(s.retryAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		// Permanent errors come back unwrapped from Retry.
		if errors.Is(err, ErrClientRejected) {
			return "", err
		}
		s.logger.Error("provider send failed after retries",
			zap.String("path", path),
			zap.Int("attempts", s.retryAttempts),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return providerID, nil
}

func (s *HTTPSender) doOnce(ctx context.Context, path string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err // network error, retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out sendResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = json.Unmarshal(data, &out)
		return out.MessageID, nil
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("provider returned %d", resp.StatusCode)
	default:
		return "", backoff.Permanent(fmt.Errorf("%w: status %d", ErrClientRejected, resp.StatusCode))
	}
}

var _ Sender = (*HTTPSender)(nil)
