// Package mysql persists corporate events.
package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfolioaccounting/internal/corporateaction/domain"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) domain.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *eventRepository) Save(ctx context.Context, event *domain.CorporateEvent) error {
	return r.getDB(ctx).Save(event).Error
}

func (r *eventRepository) GetByEventID(ctx context.Context, eventID string) (*domain.CorporateEvent, error) {
	var event domain.CorporateEvent
	if err := r.getDB(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListByInstrument(ctx context.Context, instrumentID string) ([]*domain.CorporateEvent, error) {
	var events []*domain.CorporateEvent
	err := r.getDB(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("effective_date ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) ListByStatus(ctx context.Context, status domain.EventStatus) ([]*domain.CorporateEvent, error) {
	var events []*domain.CorporateEvent
	err := r.getDB(ctx).
		Where("status = ?", status).
		Order("effective_date ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
