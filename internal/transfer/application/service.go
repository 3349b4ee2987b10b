// Package application orchestrates custody transfers between accounts.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
	"github.com/wyfcoding/portfolioaccounting/internal/transfer/domain"
)

// AuditRecorder funnels mutations into the audit trail.
type AuditRecorder interface {
	RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error
}

// AccountDirectory answers whether a custody account exists. (External
// dependency; account management lives outside this engine.)
type AccountDirectory interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// SnapshotInvalidator drops cached account snapshots after a transfer
// moves holdings.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, accountID string) error
}

type TransferService struct {
	transferRepo  domain.TransferRepository
	operationRepo ledgerdomain.OperationRepository
	positionRepo  ledgerdomain.PositionRepository
	accounts      AccountDirectory
	cache         SnapshotInvalidator
	audit         AuditRecorder
	logger        *slog.Logger
}

func NewTransferService(
	transferRepo domain.TransferRepository,
	operationRepo ledgerdomain.OperationRepository,
	positionRepo ledgerdomain.PositionRepository,
	accounts AccountDirectory,
	cache SnapshotInvalidator,
	audit AuditRecorder,
	logger *slog.Logger,
) *TransferService {
	return &TransferService{
		transferRepo:  transferRepo,
		operationRepo: operationRepo,
		positionRepo:  positionRepo,
		accounts:      accounts,
		cache:         cache,
		audit:         audit,
		logger:        logger.With("module", "transfer_service"),
	}
}

type CreateTransferCmd struct {
	SourceAccountID string
	DestAccountID   string
	InstrumentID    string
	Quantity        decimal.Decimal
	Actor           string
}

// CreateTransfer stores a PENDING transfer request.
func (s *TransferService) CreateTransfer(ctx context.Context, cmd CreateTransferCmd) (*domain.Transfer, error) {
	transfer := domain.NewTransfer(
		fmt.Sprintf("TRF%s", idgen.GenIDString()),
		cmd.SourceAccountID, cmd.DestAccountID, cmd.InstrumentID, cmd.Quantity)

	if err := s.transferRepo.Save(ctx, transfer); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, transfer.TransferID, "CREATE", cmd.Actor, nil, transfer, false)
	s.logger.InfoContext(ctx, "transfer created",
		"transfer_id", transfer.TransferID,
		"source", cmd.SourceAccountID, "dest", cmd.DestAccountID,
		"instrument_id", cmd.InstrumentID)
	return transfer, nil
}

// ValidateTransfer dry-runs a pending transfer: current positions are
// replayed from the operation log and the projected post-states returned.
func (s *TransferService) ValidateTransfer(ctx context.Context, transferID string) (*domain.ValidationResult, error) {
	transfer, err := s.transferRepo.GetByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	source, dest, known, err := s.loadContext(ctx, transfer)
	if err != nil {
		return nil, err
	}
	result := transfer.Validate(source, dest, known)
	s.recordAudit(ctx, transferID, "VALIDATE", "system", nil, result, false)
	return result, nil
}

// ExecuteTransfer runs the transfer end to end: validation, the synthetic
// operation pair, position rebuilds on both sides, all in one transaction.
func (s *TransferService) ExecuteTransfer(ctx context.Context, transferID, actor string) (*domain.ExecutionResult, error) {
	transfer, err := s.transferRepo.GetByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	source, dest, known, err := s.loadContext(ctx, transfer)
	if err != nil {
		return nil, err
	}

	exec, _, execErr := transfer.Execute(source, dest, known, time.Now())
	if execErr != nil {
		// persist the FAILED status and reason
		if err := s.transferRepo.Save(ctx, transfer); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist failed transfer",
				"transfer_id", transferID, "error", err)
		}
		return nil, execErr
	}

	err = s.transferRepo.WithTx(ctx, func(ctx context.Context) error {
		seq, err := s.operationRepo.NextSequence(ctx)
		if err != nil {
			return err
		}
		exec.SourceOp.OperationID = fmt.Sprintf("OP%s", idgen.GenIDString())
		exec.SourceOp.Sequence = seq
		if err := s.operationRepo.Save(ctx, &exec.SourceOp); err != nil {
			return err
		}

		if seq, err = s.operationRepo.NextSequence(ctx); err != nil {
			return err
		}
		exec.DestOp.OperationID = fmt.Sprintf("OP%s", idgen.GenIDString())
		exec.DestOp.Sequence = seq
		if err := s.operationRepo.Save(ctx, &exec.DestOp); err != nil {
			return err
		}

		for _, key := range []struct{ account, instrument string }{
			{transfer.SourceAccountID, transfer.InstrumentID},
			{transfer.DestAccountID, transfer.InstrumentID},
		} {
			if err := s.rebuildPosition(ctx, key.account, key.instrument); err != nil {
				return err
			}
		}
		return s.transferRepo.Save(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, transfer.SourceAccountID)
	s.invalidate(ctx, transfer.DestAccountID)
	s.recordAudit(ctx, transferID, "EXECUTE", actor, nil, transfer, false)
	s.logger.InfoContext(ctx, "transfer executed",
		"transfer_id", transferID, "cost_basis", transfer.CostBasis)
	return exec, nil
}

func (s *TransferService) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, accountID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed",
			"account_id", accountID, "error", err)
	}
}

func (s *TransferService) CancelTransfer(ctx context.Context, transferID, actor string) error {
	transfer, err := s.transferRepo.GetByTransferID(ctx, transferID)
	if err != nil {
		return err
	}
	previous := *transfer
	if err := transfer.Cancel(); err != nil {
		return err
	}
	if err := s.transferRepo.Save(ctx, transfer); err != nil {
		return err
	}
	s.recordAudit(ctx, transferID, "UPDATE", actor, &previous, transfer, false)
	return nil
}

func (s *TransferService) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	return s.transferRepo.GetByTransferID(ctx, transferID)
}

func (s *TransferService) ListTransfers(ctx context.Context, accountID string) ([]*domain.Transfer, error) {
	return s.transferRepo.ListByAccount(ctx, accountID)
}

// loadContext replays both sides' positions from the operation log and
// resolves account existence.
func (s *TransferService) loadContext(ctx context.Context, transfer *domain.Transfer) (source, dest *ledgerdomain.Position, known map[string]bool, err error) {
	source, err = s.replay(ctx, transfer.SourceAccountID, transfer.InstrumentID)
	if err != nil {
		return nil, nil, nil, err
	}
	dest, err = s.replay(ctx, transfer.DestAccountID, transfer.InstrumentID)
	if err != nil {
		return nil, nil, nil, err
	}

	known = map[string]bool{}
	for _, id := range []string{transfer.SourceAccountID, transfer.DestAccountID} {
		if id == "" {
			continue
		}
		exists := true
		if s.accounts != nil {
			if exists, err = s.accounts.Exists(ctx, id); err != nil {
				return nil, nil, nil, err
			}
		}
		known[id] = exists
	}
	return source, dest, known, nil
}

// replay folds one key's history; a key with no operations yields nil.
func (s *TransferService) replay(ctx context.Context, accountID, instrumentID string) (*ledgerdomain.Position, error) {
	ops, err := s.operationRepo.ListByKey(ctx, accountID, instrumentID)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	pos, _, err := ledgerdomain.Replay(accountID, instrumentID, ops)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *TransferService) rebuildPosition(ctx context.Context, accountID, instrumentID string) error {
	ops, err := s.operationRepo.ListByKey(ctx, accountID, instrumentID)
	if err != nil {
		return err
	}
	pos, _, err := ledgerdomain.Replay(accountID, instrumentID, ops)
	if err != nil {
		return err
	}
	return s.positionRepo.Upsert(ctx, pos)
}

func (s *TransferService) recordAudit(ctx context.Context, transferID, action, actor string, previous, current any, reversible bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordChange(ctx, "TRANSFER", transferID, action, actor, previous, current, reversible); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "transfer_id", transferID, "action", action, "error", err)
	}
}
