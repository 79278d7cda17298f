package payments

import (
	"context"
	"time"

	"github.com/formrelay/squarelink/internal/pkg/square"
)

// Processor is the typed surface of the payment processor consumed by the
// orchestrator and the reconciliation sweeper. *square.Client satisfies it;
// tests substitute a stub.
type Processor interface {
	ListLocations(ctx context.Context) ([]square.Location, error)

	CreatePayment(ctx context.Context, req square.CreatePaymentRequest) (*square.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*square.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*square.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*square.Payment, error)

	CreateRefund(ctx context.Context, req square.CreateRefundRequest) (*square.Refund, error)
	GetRefund(ctx context.Context, refundID string) (*square.Refund, error)
	ListRefunds(ctx context.Context, since time.Time) ([]square.Refund, error)

	CreateOrder(ctx context.Context, req square.CreateOrderRequest) (*square.Order, error)
	CreateCustomer(ctx context.Context, req square.CreateCustomerRequest) (*square.Customer, error)

	CreateSubscription(ctx context.Context, req square.CreateSubscriptionRequest) (*square.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*square.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*square.Subscription, error)
}

// ClientFactory builds a Processor bound to a bearer token.
type ClientFactory func(mode, accessToken string) Processor

// DefaultClientFactory builds real processor clients.
func DefaultClientFactory(mode, accessToken string) Processor {
	return square.NewClient(mode, accessToken)
}
