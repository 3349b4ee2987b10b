// Package application orchestrates the manual adjustment approval workflow.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/portfolioaccounting/internal/adjustment/domain"
	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

var ErrUnknownDecision = errors.New("decision must be APPROVE or REJECT")

// AuditRecorder funnels mutations into the audit trail.
type AuditRecorder interface {
	RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error
}

type AdjustmentService struct {
	adjustmentRepo domain.AdjustmentRepository
	positionRepo   ledgerdomain.PositionRepository
	audit          AuditRecorder
	logger         *slog.Logger
}

func NewAdjustmentService(
	adjustmentRepo domain.AdjustmentRepository,
	positionRepo ledgerdomain.PositionRepository,
	audit AuditRecorder,
	logger *slog.Logger,
) *AdjustmentService {
	return &AdjustmentService{
		adjustmentRepo: adjustmentRepo,
		positionRepo:   positionRepo,
		audit:          audit,
		logger:         logger.With("module", "adjustment_service"),
	}
}

type ProposeAdjustmentCmd struct {
	AccountID     string
	InstrumentID  string
	Field         domain.AdjustmentField
	ProposedValue decimal.Decimal
	Reason        string
	RequestedBy   string
}

// ProposeAdjustment validates and stores a PENDING adjustment against the
// current position. Validation failures come back in the result, not as an
// error.
func (s *AdjustmentService) ProposeAdjustment(ctx context.Context, cmd ProposeAdjustmentCmd) (*domain.ProposalResult, error) {
	pos, err := s.positionRepo.GetByKey(ctx, cmd.AccountID, cmd.InstrumentID)
	if err != nil {
		return nil, err
	}

	result := domain.Propose(
		fmt.Sprintf("ADJ%s", idgen.GenIDString()),
		pos, cmd.Field, cmd.ProposedValue, cmd.Reason, cmd.RequestedBy)
	if result.Adjustment == nil {
		return result, nil
	}

	if err := s.adjustmentRepo.Save(ctx, result.Adjustment); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "adjustment proposed",
		"adjustment_id", result.Adjustment.AdjustmentID,
		"field", cmd.Field, "requested_by", cmd.RequestedBy,
		"warnings", len(result.Warnings))
	return result, nil
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// DecideAdjustment approves or rejects a pending adjustment. Approval is the
// only path that mutates the target position; both outcomes are mandatory
// audit events.
func (s *AdjustmentService) DecideAdjustment(ctx context.Context, adjustmentID string, decision Decision, actor, reason string) (*domain.ManualAdjustment, error) {
	adjustment, err := s.adjustmentRepo.GetByAdjustmentID(ctx, adjustmentID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	switch decision {
	case DecisionApprove:
		err = s.adjustmentRepo.WithTx(ctx, func(ctx context.Context) error {
			pos, err := s.positionRepo.GetByKey(ctx, adjustment.AccountID, adjustment.InstrumentID)
			if err != nil {
				return err
			}
			before := *pos
			after, err := adjustment.Approve(*pos, actor, now)
			if err != nil {
				return err
			}
			after.ID = pos.ID
			if err := s.positionRepo.Upsert(ctx, after); err != nil {
				return err
			}
			if err := s.adjustmentRepo.Update(ctx, adjustment); err != nil {
				return err
			}
			s.recordAudit(ctx, adjustmentID, "APPROVE", actor, &before, after, true)
			return nil
		})
		if err != nil {
			return nil, err
		}

	case DecisionReject:
		if err := adjustment.Reject(actor, reason, now); err != nil {
			return nil, err
		}
		if err := s.adjustmentRepo.Update(ctx, adjustment); err != nil {
			return nil, err
		}
		s.recordAudit(ctx, adjustmentID, "REJECT", actor, nil, adjustment, false)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}

	s.logger.InfoContext(ctx, "adjustment decided",
		"adjustment_id", adjustmentID, "decision", decision, "decided_by", actor)
	return adjustment, nil
}

func (s *AdjustmentService) GetAdjustment(ctx context.Context, adjustmentID string) (*domain.ManualAdjustment, error) {
	return s.adjustmentRepo.GetByAdjustmentID(ctx, adjustmentID)
}

func (s *AdjustmentService) ListPending(ctx context.Context) ([]*domain.ManualAdjustment, error) {
	return s.adjustmentRepo.ListByStatus(ctx, domain.AdjustmentStatusPending)
}

func (s *AdjustmentService) recordAudit(ctx context.Context, adjustmentID, action, actor string, previous, current any, reversible bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordChange(ctx, "ADJUSTMENT", adjustmentID, action, actor, previous, current, reversible); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "adjustment_id", adjustmentID, "action", action, "error", err)
	}
}
