package repository

import (
	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *transactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) GetByTransactionID(transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("transaction_id = ?", transactionID).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) GetByEntryID(entryID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("entry_id = ?", entryID).Order("id ASC").Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) Update(tx *models.Transaction) error {
	return r.db.Save(tx).Error
}

func (r *transactionRepository) TransitionPayment(transactionID string, from []string, to string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["payment_status"] = to

	res := r.db.Model(&models.Transaction{}).
		Where("transaction_id = ? AND payment_status IN ?", transactionID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *transactionRepository) ListActiveSubscriptions(mode string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("mode = ? AND transaction_type = ? AND payment_status = ?",
		mode, models.TransactionTypeSubscription, models.PaymentStatusActive).
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) ListPendingRefunds(mode string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("mode = ? AND refund_status = ?", mode, models.RefundStatusPending).
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) AppendNote(transactionID, note string) error {
	return r.db.Model(&models.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Update("note", gorm.Expr("CONCAT(note, ?)", "\n"+note)).Error
}

func (r *transactionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Transaction{}).Count(&count).Error
	return count, err
}
