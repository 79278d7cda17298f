package square

import "time"

// Money is an amount in the smallest unit of its currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Payment statuses as reported by the processor.
const (
	PaymentApproved  = "APPROVED" // authorized, not yet captured
	PaymentCompleted = "COMPLETED"
	PaymentCanceled  = "CANCELED"
	PaymentFailed    = "FAILED"
)

// Refund statuses as reported by the processor.
const (
	RefundPending   = "PENDING"
	RefundCompleted = "COMPLETED"
	RefundRejected  = "REJECTED"
	RefundFailed    = "FAILED"
)

// Subscription statuses as reported by the processor.
const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionCanceled = "CANCELED"
)

type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
}

// IsActive reports whether a location can take payments.
func (l Location) IsActive() bool {
	return l.Status == "ACTIVE"
}

type Payment struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	AmountMoney   Money     `json:"amount_money"`
	RefundedMoney *Money    `json:"refunded_money,omitempty"`
	RefundIDs     []string  `json:"refund_ids,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	LocationID    string    `json:"location_id,omitempty"`
	ReceiptURL    string    `json:"receipt_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Refund struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Status      string    `json:"status"`
	AmountMoney Money     `json:"amount_money"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Order struct {
	ID          string `json:"id"`
	LocationID  string `json:"location_id"`
	ReferenceID string `json:"reference_id,omitempty"`
	TotalMoney  Money  `json:"total_money"`
}

type Customer struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

type Subscription struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	LocationID string `json:"location_id"`
	CustomerID string `json:"customer_id"`
	PlanID     string `json:"plan_id,omitempty"`
}

// CreatePaymentRequest carries everything needed to create a payment. The
// idempotency key must be freshly generated per logical attempt.
type CreatePaymentRequest struct {
	IdempotencyKey    string `json:"idempotency_key"`
	SourceID          string `json:"source_id"`
	AmountMoney       Money  `json:"amount_money"`
	Autocomplete      bool   `json:"autocomplete"`
	LocationID        string `json:"location_id,omitempty"`
	OrderID           string `json:"order_id,omitempty"`
	CustomerID        string `json:"customer_id,omitempty"`
	BuyerEmailAddress string `json:"buyer_email_address,omitempty"`
	Note              string `json:"note,omitempty"`
}

type CreateRefundRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	PaymentID      string `json:"payment_id"`
	AmountMoney    Money  `json:"amount_money"`
	Reason         string `json:"reason,omitempty"`
}

type CreateOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	LocationID     string `json:"location_id"`
	ReferenceID    string `json:"reference_id,omitempty"`
	TotalMoney     Money  `json:"total_money"`
}

type CreateCustomerRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	EmailAddress   string `json:"email_address,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
}

type CreateSubscriptionRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	LocationID     string `json:"location_id"`
	CustomerID     string `json:"customer_id"`
	PlanID         string `json:"plan_id"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MerchantID   string `json:"merchant_id"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}
