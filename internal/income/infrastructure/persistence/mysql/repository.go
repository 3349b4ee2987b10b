// Package mysql persists income events.
package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfolioaccounting/internal/income/domain"
)

type incomeRepository struct {
	db *gorm.DB
}

func NewIncomeRepository(db *gorm.DB) domain.IncomeRepository {
	return &incomeRepository{db: db}
}

func (r *incomeRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *incomeRepository) Save(ctx context.Context, event *domain.IncomeEvent) error {
	return r.getDB(ctx).Create(event).Error
}

func (r *incomeRepository) GetByIncomeID(ctx context.Context, incomeID string) (*domain.IncomeEvent, error) {
	var event domain.IncomeEvent
	if err := r.getDB(ctx).Where("income_id = ?", incomeID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *incomeRepository) ListByInstrument(ctx context.Context, instrumentID string) ([]*domain.IncomeEvent, error) {
	var events []*domain.IncomeEvent
	err := r.getDB(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("payment_date ASC").
		Find(&events).Error
	return events, err
}

func (r *incomeRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.IncomeEvent, error) {
	var events []*domain.IncomeEvent
	err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("payment_date ASC").
		Find(&events).Error
	return events, err
}

func (r *incomeRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
