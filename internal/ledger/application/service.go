// Package application orchestrates the operation log and the materialized
// positions derived from it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

var ErrOperationInvalid = errors.New("operation failed validation")

// AuditRecorder funnels mutations into the audit trail. Implemented by the
// audit module.
type AuditRecorder interface {
	RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error
}

// SnapshotCache caches computed account snapshots. Get returns nil on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, accountID string) (*domain.Snapshot, error)
	Set(ctx context.Context, accountID string, snapshot *domain.Snapshot) error
	Invalidate(ctx context.Context, accountID string) error
}

type LedgerService struct {
	operationRepo domain.OperationRepository
	positionRepo  domain.PositionRepository
	cache         SnapshotCache
	audit         AuditRecorder
	logger        *slog.Logger
}

func NewLedgerService(
	operationRepo domain.OperationRepository,
	positionRepo domain.PositionRepository,
	cache SnapshotCache,
	audit AuditRecorder,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		operationRepo: operationRepo,
		positionRepo:  positionRepo,
		cache:         cache,
		audit:         audit,
		logger:        logger.With("module", "ledger_service"),
	}
}

type RecordOperationCmd struct {
	AccountID    string
	InstrumentID string
	Kind         domain.OperationKind
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Fees         decimal.Decimal
	ExecutedAt   time.Time
	Notes        string
	Source       string
	Actor        string
}

// RecordOperation appends one operation to the log and rebuilds the affected
// position. Warnings from the fold are returned alongside the stored record.
func (s *LedgerService) RecordOperation(ctx context.Context, cmd RecordOperationCmd) (*domain.Operation, []string, error) {
	op := &domain.Operation{
		OperationID:  fmt.Sprintf("OP%s", idgen.GenIDString()),
		AccountID:    cmd.AccountID,
		InstrumentID: cmd.InstrumentID,
		Kind:         cmd.Kind,
		Quantity:     cmd.Quantity,
		UnitPrice:    cmd.UnitPrice,
		Fees:         cmd.Fees,
		ExecutedAt:   cmd.ExecutedAt,
		Notes:        cmd.Notes,
		Source:       cmd.Source,
	}
	if problems := op.Validate(); len(problems) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrOperationInvalid, strings.Join(problems, "; "))
	}

	var warnings []string
	err := s.operationRepo.WithTx(ctx, func(ctx context.Context) error {
		// sequence allocation shares the insert's transaction so concurrent
		// writers cannot mint the same tiebreak
		seq, err := s.operationRepo.NextSequence(ctx)
		if err != nil {
			return err
		}
		op.Sequence = seq
		if err := s.operationRepo.Save(ctx, op); err != nil {
			return err
		}
		w, err := s.rebuildPosition(ctx, op.AccountID, op.InstrumentID)
		warnings = w
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, op.AccountID)
	s.recordAudit(ctx, "TRANSACTION", op.OperationID, "CREATE", cmd.Actor, nil, op, true)
	s.logger.InfoContext(ctx, "operation recorded",
		"operation_id", op.OperationID, "account_id", op.AccountID,
		"instrument_id", op.InstrumentID, "kind", op.Kind)
	return op, warnings, nil
}

type UpdateOperationCmd struct {
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Fees       decimal.Decimal
	ExecutedAt time.Time
	Notes      string
	Actor      string
}

// UpdateOperation amends a logged operation and re-derives the position.
func (s *LedgerService) UpdateOperation(ctx context.Context, operationID string, cmd UpdateOperationCmd) (*domain.Operation, []string, error) {
	op, err := s.operationRepo.GetByOperationID(ctx, operationID)
	if err != nil {
		return nil, nil, err
	}
	previous := *op

	op.Quantity = cmd.Quantity
	op.UnitPrice = cmd.UnitPrice
	op.Fees = cmd.Fees
	op.ExecutedAt = cmd.ExecutedAt
	op.Notes = cmd.Notes
	if problems := op.Validate(); len(problems) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrOperationInvalid, strings.Join(problems, "; "))
	}

	var warnings []string
	err = s.operationRepo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.operationRepo.Update(ctx, op); err != nil {
			return err
		}
		w, err := s.rebuildPosition(ctx, op.AccountID, op.InstrumentID)
		warnings = w
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, op.AccountID)
	s.recordAudit(ctx, "TRANSACTION", op.OperationID, "UPDATE", cmd.Actor, &previous, op, true)
	return op, warnings, nil
}

// DeleteOperation removes an operation from the log and re-derives the
// position it contributed to.
func (s *LedgerService) DeleteOperation(ctx context.Context, operationID, actor string) error {
	op, err := s.operationRepo.GetByOperationID(ctx, operationID)
	if err != nil {
		return err
	}

	err = s.operationRepo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.operationRepo.Delete(ctx, operationID); err != nil {
			return err
		}
		_, err := s.rebuildPosition(ctx, op.AccountID, op.InstrumentID)
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, op.AccountID)
	s.recordAudit(ctx, "TRANSACTION", operationID, "DELETE", actor, op, nil, false)
	return nil
}

// ComputeSnapshot folds an account's full operation log into positions and
// aggregates, persisting the derived positions. Prices key current market
// prices by instrument.
func (s *LedgerService) ComputeSnapshot(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (*domain.Snapshot, error) {
	ops, err := s.operationRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	snapshot, err := domain.Compute(ops, prices)
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot computed with failures",
			"account_id", accountID, "failures", len(snapshot.Failures), "error", err)
	}

	for _, pos := range snapshot.Positions {
		if err := s.positionRepo.Upsert(ctx, pos); err != nil {
			return nil, err
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, accountID, snapshot); err != nil {
			s.logger.WarnContext(ctx, "snapshot cache write failed", "account_id", accountID, "error", err)
		}
	}
	return snapshot, nil
}

// GetSnapshot serves the cached snapshot when available, falling back to a
// fresh fold.
func (s *LedgerService) GetSnapshot(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (*domain.Snapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, accountID)
		if err != nil {
			s.logger.WarnContext(ctx, "snapshot cache read failed", "account_id", accountID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}
	return s.ComputeSnapshot(ctx, accountID, prices)
}

func (s *LedgerService) GetOperation(ctx context.Context, operationID string) (*domain.Operation, error) {
	return s.operationRepo.GetByOperationID(ctx, operationID)
}

func (s *LedgerService) ListOperations(ctx context.Context, accountID string) ([]domain.Operation, error) {
	return s.operationRepo.ListByAccount(ctx, accountID)
}

func (s *LedgerService) GetPosition(ctx context.Context, accountID, instrumentID string) (*domain.Position, error) {
	return s.positionRepo.GetByKey(ctx, accountID, instrumentID)
}

func (s *LedgerService) ListPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	return s.positionRepo.ListByAccount(ctx, accountID)
}

// rebuildPosition replays the full key history and stores the result.
func (s *LedgerService) rebuildPosition(ctx context.Context, accountID, instrumentID string) ([]string, error) {
	ops, err := s.operationRepo.ListByKey(ctx, accountID, instrumentID)
	if err != nil {
		return nil, err
	}
	pos, warnings, err := domain.Replay(accountID, instrumentID, ops)
	if err != nil {
		return warnings, err
	}
	return warnings, s.positionRepo.Upsert(ctx, pos)
}

func (s *LedgerService) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "account_id", accountID, "error", err)
	}
}

func (s *LedgerService) recordAudit(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordChange(ctx, entityType, entityID, action, actor, previous, current, reversible); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed",
			"entity_type", entityType, "entity_id", entityID, "action", action, "error", err)
	}
}
