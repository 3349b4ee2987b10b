// Package mysql persists custody transfers.
package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfolioaccounting/internal/transfer/domain"
)

type transferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) domain.TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *transferRepository) Save(ctx context.Context, transfer *domain.Transfer) error {
	return r.getDB(ctx).Save(transfer).Error
}

func (r *transferRepository) GetByTransferID(ctx context.Context, transferID string) (*domain.Transfer, error) {
	var transfer domain.Transfer
	if err := r.getDB(ctx).Where("transfer_id = ?", transferID).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *transferRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer
	err := r.getDB(ctx).
		Where("source_account_id = ? OR dest_account_id = ?", accountID, accountID).
		Order("created_at DESC").
		Find(&transfers).Error
	return transfers, err
}

func (r *transferRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
