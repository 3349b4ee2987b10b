package domain

import "context"

// OperationRepository persists the operation log.
type OperationRepository interface {
	Save(ctx context.Context, op *Operation) error
	Update(ctx context.Context, op *Operation) error
	Delete(ctx context.Context, operationID string) error
	GetByOperationID(ctx context.Context, operationID string) (*Operation, error)
	ListByAccount(ctx context.Context, accountID string) ([]Operation, error)
	ListByKey(ctx context.Context, accountID, instrumentID string) ([]Operation, error)
	ListAll(ctx context.Context) ([]Operation, error)
	NextSequence(ctx context.Context) (uint64, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PositionRepository stores materialized positions derived from the log.
type PositionRepository interface {
	Upsert(ctx context.Context, pos *Position) error
	GetByKey(ctx context.Context, accountID, instrumentID string) (*Position, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Position, error)
	ListByInstrument(ctx context.Context, instrumentID string) ([]*Position, error)
}
