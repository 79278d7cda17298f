package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
)

// TransactionRepository defines the interface for transaction-related
// database operations
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByTransactionID(transactionID string) (*models.Transaction, error)
	GetByEntryID(entryID uint) ([]models.Transaction, error)
	Update(tx *models.Transaction) error
	// TransitionPayment applies updates only when the record still carries
	// one of the expected payment statuses. It reports whether the update
	// was applied, so a lost race is visible to the caller.
	TransitionPayment(transactionID string, from []string, to string, updates map[string]interface{}) (bool, error)
	ListActiveSubscriptions(mode string) ([]models.Transaction, error)
	ListPendingRefunds(mode string) ([]models.Transaction, error)
	AppendNote(transactionID, note string) error
	Count() (int64, error)
}

// RefundRepository defines the interface for refund-related database
// operations
type RefundRepository interface {
	Upsert(refund *models.Refund) error
	GetByRefundID(refundID string) (*models.Refund, error)
	ListByTransactionID(transactionID string) ([]models.Refund, error)
}

// SettingRepository defines the interface for installation settings
type SettingRepository interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
	DeleteValue(key string) error
	GetTime(key string) (time.Time, error)
	SetTime(key string, t time.Time) error
}

// Repositories holds all repository instances
type Repositories struct {
	Transaction TransactionRepository
	Refund      RefundRepository
	Setting     SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transaction: NewTransactionRepository(db),
		Refund:      NewRefundRepository(db),
		Setting:     NewSettingRepository(db),
	}
}
