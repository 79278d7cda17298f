package square

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
)

// OAuthClient talks directly to the processor's OAuth endpoints. This is the
// custom-app path: the merchant owns the application and its client secret
// is configured locally.
type OAuthClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	HTTPClient *http.Client
}

// NewOAuthClient creates an OAuth client for a merchant-owned application.
func NewOAuthClient(mode, clientID, clientSecret string) *OAuthClient {
	base := defaultLiveBaseURL
	if mode == "sandbox" {
		base = defaultSandboxBaseURL
	}
	return &OAuthClient{
		BaseURL:      strings.TrimRight(base, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *OAuthClient) obtain(ctx context.Context, body map[string]string) (*TokenResponse, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("oauth client id and secret are required")
	}
	body["client_id"] = c.ClientID
	body["client_secret"] = c.ClientSecret

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth2/token", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Square-Version", APIVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oauth token request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out TokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("oauth token response missing access_token")
	}
	return &out, nil
}

// ExchangeCode trades an authorization code for a token pair.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	return c.obtain(ctx, map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	})
}

// RefreshToken trades a refresh token for a fresh token pair. The processor
// rotates the refresh token, so a concurrent refresh loser fails here.
func (c *OAuthClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	return c.obtain(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

// RevokeToken revokes all tokens issued to the merchant for this application.
func (c *OAuthClient) RevokeToken(ctx context.Context, merchantID string) error {
	body := map[string]string{
		"client_id":   c.ClientID,
		"merchant_id": merchantID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth2/revoke", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", APIVersion)
	// Revocation authenticates with the application secret, not a bearer token.
	req.Header.Set("Authorization", "Client "+c.ClientSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("oauth revoke failed: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}
