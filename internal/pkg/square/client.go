package square

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
)

const (
	defaultLiveBaseURL    = "https://connect.squareup.com"
	defaultSandboxBaseURL = "https://connect.squareupsandbox.com"

	// APIVersion is sent as the Square-Version header on every request.
	APIVersion = "2024-06-04"
)

// Client performs typed calls against the processor REST API on behalf of a
// single bearer token. Build one per resolved credential; it carries no
// hidden global state.
type Client struct {
	BaseURL     string
	AccessToken string
	Version     string

	HTTPClient *http.Client
}

// NewClient creates a client bound to the given mode's endpoint and bearer
// token.
func NewClient(mode, accessToken string) *Client {
	base := defaultLiveBaseURL
	if mode == "sandbox" {
		base = defaultSandboxBaseURL
	}
	if override := strings.TrimSpace(env.GetEnv("SQUARE_API_BASE_URL", "")); override != "" {
		base = override
	}

	return &Client{
		BaseURL:     strings.TrimRight(base, "/"),
		AccessToken: accessToken,
		Version:     APIVersion,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// do executes one API call and decodes the response into out (unless nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Square-Version", c.Version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope errorEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Errors) > 0 {
			apiErr.Category = envelope.Errors[0].Category
			apiErr.Code = envelope.Errors[0].Code
			apiErr.Detail = envelope.Errors[0].Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ListLocations fetches the merchant's business locations. It doubles as the
// cheap validation call performed on initialization.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var out struct {
		Locations []Location `json:"locations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/locations", nil, &out); err != nil {
		return nil, err
	}
	return out.Locations, nil
}

// CreatePayment creates a payment. With Autocomplete false the payment stays
// authorized until completed or canceled; the processor expires it after six
// days.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, errors.New("payment source is required")
	}
	var out struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/payments", req, &out); err != nil {
		return nil, err
	}
	if out.Payment == nil {
		return nil, errors.New("create payment returned empty payment")
	}
	return out.Payment, nil
}

// CompletePayment captures a previously authorized payment.
func (c *Client) CompletePayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	path := fmt.Sprintf("/v2/payments/%s/complete", url.PathEscape(paymentID))
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Payment, nil
}

// CancelPayment voids a previously authorized payment.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	path := fmt.Sprintf("/v2/payments/%s/cancel", url.PathEscape(paymentID))
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	path := "/v2/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Payment == nil {
		return nil, errors.New("get payment returned empty payment")
	}
	return out.Payment, nil
}

func (c *Client) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	var out struct {
		Refund *Refund `json:"refund"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/refunds", req, &out); err != nil {
		return nil, err
	}
	if out.Refund == nil {
		return nil, errors.New("create refund returned empty refund")
	}
	return out.Refund, nil
}

func (c *Client) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	var out struct {
		Refund *Refund `json:"refund"`
	}
	path := "/v2/refunds/" + url.PathEscape(refundID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Refund == nil {
		return nil, errors.New("get refund returned empty refund")
	}
	return out.Refund, nil
}

// ListRefunds returns refunds updated at or after since, following pagination
// cursors until the processor reports no more pages.
func (c *Client) ListRefunds(ctx context.Context, since time.Time) ([]Refund, error) {
	var all []Refund
	cursor := ""
	for {
		q := url.Values{}
		if !since.IsZero() {
			q.Set("begin_time", since.UTC().Format(time.RFC3339))
		}
		q.Set("sort_order", "ASC")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var out struct {
			Refunds []Refund `json:"refunds"`
			Cursor  string   `json:"cursor"`
		}
		if err := c.do(ctx, http.MethodGet, "/v2/refunds?"+q.Encode(), nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Refunds...)
		if out.Cursor == "" {
			return all, nil
		}
		cursor = out.Cursor
	}
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	body := struct {
		IdempotencyKey string `json:"idempotency_key"`
		Order          struct {
			LocationID  string `json:"location_id"`
			ReferenceID string `json:"reference_id,omitempty"`
			TotalMoney  Money  `json:"total_money"`
		} `json:"order"`
	}{IdempotencyKey: req.IdempotencyKey}
	body.Order.LocationID = req.LocationID
	body.Order.ReferenceID = req.ReferenceID
	body.Order.TotalMoney = req.TotalMoney

	var out struct {
		Order *Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &out); err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, errors.New("create order returned empty order")
	}
	return out.Order, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var out struct {
		Customer *Customer `json:"customer"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/customers", req, &out); err != nil {
		return nil, err
	}
	if out.Customer == nil {
		return nil, errors.New("create customer returned empty customer")
	}
	return out.Customer, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	var out struct {
		Subscription *Subscription `json:"subscription"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/subscriptions", req, &out); err != nil {
		return nil, err
	}
	if out.Subscription == nil {
		return nil, errors.New("create subscription returned empty subscription")
	}
	return out.Subscription, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out struct {
		Subscription *Subscription `json:"subscription"`
	}
	path := "/v2/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Subscription == nil {
		return nil, errors.New("get subscription returned empty subscription")
	}
	return out.Subscription, nil
}

// CancelSubscription schedules a subscription for cancellation at the
// processor.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out struct {
		Subscription *Subscription `json:"subscription"`
	}
	path := fmt.Sprintf("/v2/subscriptions/%s/cancel", url.PathEscape(subscriptionID))
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.Subscription == nil {
		return nil, errors.New("cancel subscription returned empty subscription")
	}
	return out.Subscription, nil
}
