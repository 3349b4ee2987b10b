// Package application orchestrates income events and consolidated reporting.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/portfolioaccounting/internal/income/domain"
	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

// AuditRecorder funnels mutations into the audit trail.
type AuditRecorder interface {
	RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error
}

type IncomeService struct {
	incomeRepo   domain.IncomeRepository
	positionRepo ledgerdomain.PositionRepository
	audit        AuditRecorder
	logger       *slog.Logger
}

func NewIncomeService(
	incomeRepo domain.IncomeRepository,
	positionRepo ledgerdomain.PositionRepository,
	audit AuditRecorder,
	logger *slog.Logger,
) *IncomeService {
	return &IncomeService{
		incomeRepo:   incomeRepo,
		positionRepo: positionRepo,
		audit:        audit,
		logger:       logger.With("module", "income_service"),
	}
}

type RegisterIncomeCmd struct {
	AccountID        string
	InstrumentID     string
	Type             domain.IncomeType
	ValuePerUnit     decimal.Decimal
	AffectedQuantity decimal.Decimal
	TotalValue       decimal.Decimal
	TaxWithheld      decimal.Decimal
	BonusFactor      decimal.Decimal
	PaymentDate      time.Time
	Actor            string
}

// RegisterIncome validates and stores an income event, then folds it into the
// holder's position. Validation warnings accompany the stored record.
func (s *IncomeService) RegisterIncome(ctx context.Context, cmd RegisterIncomeCmd) (*domain.IncomeEvent, []string, error) {
	event := &domain.IncomeEvent{
		IncomeID:         fmt.Sprintf("INC%s", idgen.GenIDString()),
		AccountID:        cmd.AccountID,
		InstrumentID:     cmd.InstrumentID,
		Type:             cmd.Type,
		ValuePerUnit:     cmd.ValuePerUnit,
		AffectedQuantity: cmd.AffectedQuantity,
		TotalValue:       cmd.TotalValue,
		TaxWithheld:      cmd.TaxWithheld,
		BonusFactor:      cmd.BonusFactor,
		PaymentDate:      cmd.PaymentDate,
	}
	warnings, err := event.Validate()
	if err != nil {
		return nil, warnings, err
	}

	err = s.incomeRepo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.incomeRepo.Save(ctx, event); err != nil {
			return err
		}
		pos, err := s.positionRepo.GetByKey(ctx, cmd.AccountID, cmd.InstrumentID)
		if err != nil {
			return err
		}
		if pos == nil {
			// income on an untracked holding is stored but changes nothing
			s.logger.WarnContext(ctx, "income registered without a tracked position",
				"income_id", event.IncomeID, "account_id", cmd.AccountID,
				"instrument_id", cmd.InstrumentID)
			return nil
		}
		after, err := event.Apply(*pos)
		if err != nil {
			return err
		}
		after.ID = pos.ID
		return s.positionRepo.Upsert(ctx, after)
	})
	if err != nil {
		return nil, warnings, err
	}

	s.recordAudit(ctx, event.IncomeID, "CREATE", cmd.Actor, nil, event, false)
	s.logger.InfoContext(ctx, "income registered",
		"income_id", event.IncomeID, "type", event.Type,
		"instrument_id", event.InstrumentID, "net", event.NetValue())
	return event, warnings, nil
}

// ConsolidateByAccount builds the per-instrument income report for one
// account. prices feed the approximate yield figures.
func (s *IncomeService) ConsolidateByAccount(ctx context.Context, accountID string, prices map[string]decimal.Decimal) (*domain.ConsolidatedReport, error) {
	events, err := s.incomeRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	report := domain.Consolidate(events, prices)
	s.recordAudit(ctx, accountID, "CALCULATE", "system", nil, report, false)
	return report, nil
}

func (s *IncomeService) GetIncome(ctx context.Context, incomeID string) (*domain.IncomeEvent, error) {
	return s.incomeRepo.GetByIncomeID(ctx, incomeID)
}

func (s *IncomeService) ListByInstrument(ctx context.Context, instrumentID string) ([]*domain.IncomeEvent, error) {
	return s.incomeRepo.ListByInstrument(ctx, instrumentID)
}

func (s *IncomeService) recordAudit(ctx context.Context, entityID, action, actor string, previous, current any, reversible bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordChange(ctx, "INCOME_EVENT", entityID, action, actor, previous, current, reversible); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "entity_id", entityID, "action", action, "error", err)
	}
}
