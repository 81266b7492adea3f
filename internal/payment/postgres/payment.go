package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/course-checkout/internal/payment"
)

var errTransactionNotFound = internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionMissing)

type TransactionRepository struct {
	db *gorm.DB
}

var _ paymentpkg.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{
		db: db,
	}
}

// SaveSuccess inserts the row unless its transaction id is already stored.
func (r *TransactionRepository) SaveSuccess(ctx context.Context, txn *payment.Transaction) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TransactionRepository) SaveFailure(ctx context.Context, txn *payment.Transaction) error {
	txn.TransactionID = nil
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	var t payment.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]*payment.Transaction, error) {
	var txns []*payment.Transaction
	err := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&txns).Error
	return txns, err
}
