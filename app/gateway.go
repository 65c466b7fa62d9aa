package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"

	"github.com/google/uuid"
)

const (
	preferencesPath  = "/checkout/preferences"
	maxGatewayBody   = int64(1 << 20)
	maxErrorBodySize = 512
)

// GatewayClient creates checkout preferences at the payment gateway.
type GatewayClient interface {
	CreatePreference(ctx context.Context, req *models.PreferenceRequest) (*models.Preference, error)
}

// MercadoPagoClient talks to the Mercado Pago preferences API.
type MercadoPagoClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewMercadoPagoClient returns ErrConfiguration when accessToken is empty.
func NewMercadoPagoClient(baseURL, accessToken string, timeout time.Duration) (*MercadoPagoClient, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrConfiguration
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MercadoPagoClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// CreatePreference makes exactly one POST; failures are never retried here.
func (m *MercadoPagoClient) CreatePreference(ctx context.Context, pref *models.PreferenceRequest) (*models.Preference, error) {
	body, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("encode preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+preferencesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), maxErrorBodySize)}
	}

	var out models.Preference
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode preference: %w", err)}
	}
	if out.ID == "" || out.InitPoint == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "response missing id or init_point"}
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
