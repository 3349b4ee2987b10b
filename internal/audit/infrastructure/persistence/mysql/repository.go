// Package mysql persists audit entries.
package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) domain.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *auditRepository) Save(ctx context.Context, entry *domain.AuditEntry) error {
	return r.getDB(ctx).Create(entry).Error
}

func (r *auditRepository) Update(ctx context.Context, entry *domain.AuditEntry) error {
	return r.getDB(ctx).Save(entry).Error
}

func (r *auditRepository) GetByEntryID(ctx context.Context, entryID string) (*domain.AuditEntry, error) {
	var entry domain.AuditEntry
	if err := r.getDB(ctx).Where("entry_id = ?", entryID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID string) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	err := r.getDB(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("timestamp DESC").
		Find(&entries).Error
	return entries, err
}

func (r *auditRepository) ListAll(ctx context.Context) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	err := r.getDB(ctx).Order("timestamp DESC").Find(&entries).Error
	return entries, err
}

func (r *auditRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
