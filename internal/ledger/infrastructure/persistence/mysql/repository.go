// Package mysql persists the operation log and materialized positions.
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

type operationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) domain.OperationRepository {
	return &operationRepository{db: db}
}

func (r *operationRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *operationRepository) Save(ctx context.Context, op *domain.Operation) error {
	return r.getDB(ctx).Create(op).Error
}

func (r *operationRepository) Update(ctx context.Context, op *domain.Operation) error {
	return r.getDB(ctx).Save(op).Error
}

func (r *operationRepository) Delete(ctx context.Context, operationID string) error {
	return r.getDB(ctx).Where("operation_id = ?", operationID).Delete(&domain.Operation{}).Error
}

func (r *operationRepository) GetByOperationID(ctx context.Context, operationID string) (*domain.Operation, error) {
	var op domain.Operation
	if err := r.getDB(ctx).Where("operation_id = ?", operationID).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at ASC, sequence ASC").
		Find(&ops).Error
	return ops, err
}

func (r *operationRepository) ListByKey(ctx context.Context, accountID, instrumentID string) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.getDB(ctx).
		Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).
		Order("executed_at ASC, sequence ASC").
		Find(&ops).Error
	return ops, err
}

func (r *operationRepository) ListAll(ctx context.Context) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.getDB(ctx).Order("executed_at ASC, sequence ASC").Find(&ops).Error
	return ops, err
}

// NextSequence allocates the next insertion-order tiebreak. Callers run it
// inside WithTx; the lock holds the max row until the insert commits.
func (r *operationRepository) NextSequence(ctx context.Context) (uint64, error) {
	var max uint64
	err := r.getDB(ctx).
		Model(&domain.Operation{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *operationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

type positionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) domain.PositionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *positionRepository) Upsert(ctx context.Context, pos *domain.Position) error {
	return r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "instrument_id"}},
		UpdateAll: true,
	}).Create(pos).Error
}

func (r *positionRepository) GetByKey(ctx context.Context, accountID, instrumentID string) (*domain.Position, error) {
	var pos domain.Position
	err := r.getDB(ctx).
		Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *positionRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.getDB(ctx).
		Where("account_id = ?", accountID).
		Order("instrument_id ASC").
		Find(&positions).Error
	return positions, err
}

func (r *positionRepository) ListByInstrument(ctx context.Context, instrumentID string) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.getDB(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("account_id ASC").
		Find(&positions).Error
	return positions, err
}
