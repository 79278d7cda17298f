package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/formrelay/squarelink/app/models"
)

// refundRepository implements the RefundRepository interface
type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository instance
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Upsert(refund *models.Refund) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "refund_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount_cents",
			"currency",
			"status",
			"updated_at",
		}),
	}).Create(refund).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("refund_id = ?", refund.RefundID).First(refund).Error
}

func (r *refundRepository) GetByRefundID(refundID string) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.Where("refund_id = ?", refundID).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) ListByTransactionID(transactionID string) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Where("transaction_id = ?", transactionID).Order("id ASC").Find(&refunds).Error
	return refunds, err
}
