package models

import "time"

// Processing modes. Credentials are mode-specific, so the mode of a
// transaction is fixed at creation time and never changes.
const (
	ModeLive    = "live"
	ModeSandbox = "sandbox"
)

const (
	TransactionTypePayment      = "payment"
	TransactionTypeSubscription = "subscription"
)

// Payment statuses recorded on a transaction.
const (
	PaymentStatusAuthorized = "Authorized"
	PaymentStatusPaid       = "Paid"
	PaymentStatusFailed     = "Failed"
	PaymentStatusVoided     = "Voided"
	PaymentStatusRefunded   = "Refunded"
	PaymentStatusActive     = "Active"
	PaymentStatusCancelled  = "Cancelled"
)

// Refund progress attached to a captured transaction. The authoritative
// completed/failed transition is applied by the reconciliation sweeper once
// the processor finalizes the refund.
const (
	RefundStatusNone      = ""
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"
)

// Transaction records the processor-side payment or subscription attached to
// a single form entry.
type Transaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EntryID         uint      `gorm:"not null;index" json:"entry_id"`
	FormID          uint      `gorm:"index" json:"form_id"`
	TransactionID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"transaction_id"`
	TransactionType string    `gorm:"type:varchar(20);not null" json:"transaction_type"`
	PaymentStatus   string    `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	RefundStatus    string    `gorm:"type:varchar(20);default:''" json:"refund_status"`
	AmountCents     int64     `gorm:"not null" json:"amount_cents"`
	RefundedCents   int64     `gorm:"default:0" json:"refunded_cents"`
	Currency        string    `gorm:"type:varchar(3);not null" json:"currency"`
	Mode            string    `gorm:"type:varchar(10);not null;index" json:"mode"`
	AuthorizeOnly   bool      `gorm:"default:false" json:"authorize_only"`
	OrderID         string    `gorm:"type:varchar(191);default:''" json:"order_id"`
	CustomerID      string    `gorm:"type:varchar(191);default:''" json:"customer_id"`
	SubscriptionID  string    `gorm:"type:varchar(191);default:'';index" json:"subscription_id"`
	ReceiptURL      string    `gorm:"type:varchar(255);default:''" json:"receipt_url"`
	Note            string    `gorm:"type:text" json:"note"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRefundEligible reports whether the sweeper may apply a refund-completed
// transition to this record.
func (t *Transaction) IsRefundEligible() bool {
	return t.PaymentStatus == PaymentStatusPaid || t.PaymentStatus == PaymentStatusAuthorized
}
