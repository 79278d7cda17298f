// Package broker is the client for the first-party token broker. The broker
// proxies the processor's OAuth endpoints so that merchants on the shared
// application never handle the client secret themselves.
package broker

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

	"github.com/formrelay/squarelink/internal/pkg/env"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

const defaultBrokerBaseURL = "https://auth.formrelay.io"

type Client struct {
	BaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv creates a broker client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(env.GetEnv("TOKEN_BROKER_URL", defaultBrokerBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (*square.TokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token broker request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out square.TokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token broker returned empty access_token")
	}
	return &out, nil
}

// Exchange trades an authorization code for a token pair via the broker.
func (c *Client) Exchange(ctx context.Context, code, mode string) (*square.TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	return c.post(ctx, "/auth/square/token", map[string]string{
		"code": code,
		"mode": mode,
	})
}

// Refresh trades a refresh token for a fresh pair via the broker.
func (c *Client) Refresh(ctx context.Context, refreshToken, mode string) (*square.TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	return c.post(ctx, "/auth/square/refresh", map[string]string{
		"refresh_token": refreshToken,
		"mode":          mode,
	})
}

// Deauthorize revokes the merchant's tokens through the broker.
func (c *Client) Deauthorize(ctx context.Context, merchantID, mode string) error {
	q := url.Values{}
	q.Set("merchant_id", merchantID)
	q.Set("mode", mode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/auth/square/deauthorize?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("token broker deauthorize failed: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}
