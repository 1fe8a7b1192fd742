package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPLedger talks to the usage service that owns customer allowances.
type HTTPLedger struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Attempts   int // read attempts; increases are never retried
}

type usageResponse struct {
	AccountRef          string `json:"account_ref"`
	LifetimeGenerations int64  `json:"lifetime_generations"`
}

func NewHTTPLedger(baseURL, token string, client *http.Client) *HTTPLedger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLedger{BaseURL: baseURL, Token: token, HTTPClient: client, Attempts: 3}
}

func (l *HTTPLedger) endpoint(ref string, suffix string) (string, error) {
	u, err := url.Parse(l.BaseURL)
	if err != nil {
		return "", fmt.Errorf("ledger: invalid base URL '%s': %w", l.BaseURL, err)
	}
	return u.JoinPath("api", "v1", "usage", ref, suffix).String(), nil
}

func (l *HTTPLedger) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Service-Token", l.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: call usage service: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrAccountNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// StatusError is a non-2xx answer from the usage service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger: usage service returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func (l *HTTPLedger) ReadAllowance(ctx context.Context, ref string) (int64, error) {
	endpoint, err := l.endpoint(ref, "")
	if err != nil {
		return 0, err
	}

	return retry(ctx, l.Attempts, func() (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, fmt.Errorf("ledger: create request: %w", err)
		}
		body, err := l.do(req)
		if err != nil {
			return 0, err
		}
		var out usageResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return 0, permanent(fmt.Errorf("ledger: decode usage response: %w", err))
		}
		return out.LifetimeGenerations, nil
	})
}

// IncreaseAllowance posts the grant once. key travels as Idempotency-Key so
// the usage service can drop a replay whose first reply was lost.
func (l *HTTPLedger) IncreaseAllowance(ctx context.Context, ref string, amount int64, key string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: amount must be positive, got %d", amount)
	}
	endpoint, err := l.endpoint(ref, "allowance")
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]int64{"amount": amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	_, err = l.do(req)
	return err
}
