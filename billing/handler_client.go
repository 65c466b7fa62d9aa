package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
)

const (
	createPreferencePath  = "/api/billing/create-preference"
	defaultHandlerTimeout = 15 * time.Second
	maxResponseBytes      = 1 << 20
)

// RetryPolicy controls how often a checkout call is attempted when the
// transport fails. Errors reported by the handler are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// NoRetry makes exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// HandlerError is a non-200 answer from the checkout handler.
type HandlerError struct {
	StatusCode int
	Message    string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("checkout handler responded %d: %s", e.StatusCode, e.Message)
}

// HandlerClient calls the checkout handler over HTTP.
type HandlerClient struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
	retry   RetryPolicy
	log     *zap.Logger
}

type HandlerClientOption func(*HandlerClient)

func WithHTTPClient(c *http.Client) HandlerClientOption {
	return func(h *HandlerClient) { h.httpc = c }
}

func WithTimeout(d time.Duration) HandlerClientOption {
	return func(h *HandlerClient) { h.timeout = d }
}

func WithRetryPolicy(p RetryPolicy) HandlerClientOption {
	return func(h *HandlerClient) { h.retry = p }
}

func WithClientLogger(l *zap.Logger) HandlerClientOption {
	return func(h *HandlerClient) { h.log = l }
}

func NewHandlerClient(baseURL string, opts ...HandlerClientOption) *HandlerClient {
	h := &HandlerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		timeout: defaultHandlerTimeout,
		retry:   NoRetry(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	// The caller's client is copied so the timeout never leaks into it.
	httpc := *h.httpc
	httpc.Timeout = h.timeout
	h.httpc = &httpc
	if h.retry.MaxAttempts < 1 {
		h.retry.MaxAttempts = 1
	}
	return h
}

// CreatePreference posts the plan to the handler with the caller's bearer token.
func (h *HandlerClient) CreatePreference(ctx context.Context, accessToken string, req models.CheckoutRequest) (*models.CreatePreferenceResponse, error) {
	body, err := json.Marshal(models.CreatePreferenceRequest{PlanType: string(req.PlanType)})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= h.retry.MaxAttempts; attempt++ {
		resp, err := h.do(ctx, accessToken, body)
		if err == nil {
			return resp, nil
		}
		var herr *HandlerError
		if errors.As(err, &herr) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		h.log.Warn("checkout handler call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", h.retry.MaxAttempts),
			zap.Error(err),
		)
		if attempt < h.retry.MaxAttempts && h.retry.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.retry.Backoff):
			}
		}
	}
	return nil, lastErr
}

func (h *HandlerClient) do(ctx context.Context, accessToken string, body []byte) (*models.CreatePreferenceResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+createPreferencePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := h.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &HandlerError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out models.CreatePreferenceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &HandlerError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return &out, nil
}
