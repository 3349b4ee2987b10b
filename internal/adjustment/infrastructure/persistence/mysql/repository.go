// Package mysql persists manual adjustments.
package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfolioaccounting/internal/adjustment/domain"
)

type adjustmentRepository struct {
	db *gorm.DB
}

func NewAdjustmentRepository(db *gorm.DB) domain.AdjustmentRepository {
	return &adjustmentRepository{db: db}
}

func (r *adjustmentRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *adjustmentRepository) Save(ctx context.Context, adjustment *domain.ManualAdjustment) error {
	return r.getDB(ctx).Create(adjustment).Error
}

func (r *adjustmentRepository) Update(ctx context.Context, adjustment *domain.ManualAdjustment) error {
	return r.getDB(ctx).Save(adjustment).Error
}

func (r *adjustmentRepository) GetByAdjustmentID(ctx context.Context, adjustmentID string) (*domain.ManualAdjustment, error) {
	var adjustment domain.ManualAdjustment
	if err := r.getDB(ctx).Where("adjustment_id = ?", adjustmentID).First(&adjustment).Error; err != nil {
		return nil, err
	}
	return &adjustment, nil
}

func (r *adjustmentRepository) ListByStatus(ctx context.Context, status domain.AdjustmentStatus) ([]*domain.ManualAdjustment, error) {
	var adjustments []*domain.ManualAdjustment
	err := r.getDB(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&adjustments).Error
	return adjustments, err
}

func (r *adjustmentRepository) ListByKey(ctx context.Context, accountID, instrumentID string) ([]*domain.ManualAdjustment, error) {
	var adjustments []*domain.ManualAdjustment
	err := r.getDB(ctx).
		Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).
		Order("created_at DESC").
		Find(&adjustments).Error
	return adjustments, err
}

func (r *adjustmentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
