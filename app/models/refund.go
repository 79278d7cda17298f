package models

import "time"

// Refund is one processor refund belonging to a transaction. A transaction
// can accumulate several partial refunds; each gets its own row.
type Refund struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"type:varchar(191);not null;index" json:"transaction_id"`
	RefundID      string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"refund_id"`
	AmountCents   int64     `gorm:"not null" json:"amount_cents"`
	Currency      string    `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
