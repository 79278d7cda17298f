package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := &Client{
		BaseURL:     server.URL,
		AccessToken: "at-1",
		Version:     APIVersion,
		HTTPClient:  server.Client(),
	}
	return client, server
}

func TestListLocationsSendsAuthHeaders(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/locations" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Fatalf("unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("Square-Version"); got != APIVersion {
			t.Fatalf("unexpected Square-Version header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"locations": []Location{
				{ID: "L1", Name: "Main", Status: "ACTIVE", Currency: "USD"},
				{ID: "L2", Name: "Closed", Status: "INACTIVE", Currency: "USD"},
			},
		})
	}))
	defer server.Close()

	locations, err := client.ListLocations(context.Background())
	if err != nil {
		t.Fatalf("ListLocations failed: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locations))
	}
	if !locations[0].IsActive() || locations[1].IsActive() {
		t.Fatalf("unexpected active flags: %+v", locations)
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED","detail":"token revoked"}]}`))
	}))
	defer server.Close()

	_, err := client.ListLocations(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if !apiErr.IsUnauthorized() {
		t.Fatalf("expected IsUnauthorized to report true")
	}
}

func TestCreatePaymentValidatesAndPosts(t *testing.T) {
	var received CreatePaymentRequest
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/payments" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decoding request failed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"payment": Payment{ID: "pay-1", Status: PaymentApproved},
		})
	}))
	defer server.Close()

	if _, err := client.CreatePayment(context.Background(), CreatePaymentRequest{SourceID: "src"}); err == nil {
		t.Fatalf("expected missing idempotency key to be rejected")
	}
	if _, err := client.CreatePayment(context.Background(), CreatePaymentRequest{IdempotencyKey: "k1"}); err == nil {
		t.Fatalf("expected missing source to be rejected")
	}

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		IdempotencyKey: "k1",
		SourceID:       "src",
		AmountMoney:    Money{Amount: 100, Currency: "USD"},
		Autocomplete:   false,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if payment.ID != "pay-1" || payment.Status != PaymentApproved {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if received.IdempotencyKey != "k1" || received.Autocomplete {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestListRefundsFollowsPagination(t *testing.T) {
	calls := 0
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("begin_time"); got == "" {
			t.Fatalf("expected begin_time to be set")
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"refunds":[{"id":"ref-1","payment_id":"pay-1","status":"COMPLETED"}],"cursor":"next"}`))
		case "next":
			_, _ = w.Write([]byte(`{"refunds":[{"id":"ref-2","payment_id":"pay-2","status":"PENDING"}]}`))
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	refunds, err := client.ListRefunds(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListRefunds failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 pages, got %d", calls)
	}
	if len(refunds) != 2 || refunds[0].ID != "ref-1" || refunds[1].ID != "ref-2" {
		t.Fatalf("unexpected refunds: %+v", refunds)
	}
}

func TestCompleteAndCancelPaymentPaths(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/payments/pay-1/complete":
			_, _ = w.Write([]byte(`{"payment":{"id":"pay-1","status":"COMPLETED","receipt_url":"https://sq.example/r/1"}}`))
		case "/v2/payments/pay-1/cancel":
			_, _ = w.Write([]byte(`{"payment":{"id":"pay-1","status":"CANCELED"}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	payment, err := client.CompletePayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("CompletePayment failed: %v", err)
	}
	if payment.Status != PaymentCompleted || payment.ReceiptURL == "" {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	payment, err = client.CancelPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	if payment.Status != PaymentCanceled {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/subscriptions":
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"ACTIVE"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v2/subscriptions/sub-1":
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"ACTIVE"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v2/subscriptions/sub-1/cancel":
			_, _ = w.Write([]byte(`{"subscription":{"id":"sub-1","status":"CANCELED"}}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	sub, err := client.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		IdempotencyKey: "k1",
		LocationID:     "L1",
		CustomerID:     "cust-1",
		PlanID:         "plan-1",
	})
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if sub.Status != SubscriptionActive {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	if _, err := client.GetSubscription(context.Background(), "sub-1"); err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}

	sub, err = client.CancelSubscription(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("CancelSubscription failed: %v", err)
	}
	if sub.Status != SubscriptionCanceled {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}
