// Package application orchestrates the corporate event lifecycle and its
// application to held positions and to the operation log.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/portfolioaccounting/internal/corporateaction/domain"
	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

// AuditRecorder funnels mutations into the audit trail.
type AuditRecorder interface {
	RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error
}

type CorporateActionService struct {
	eventRepo     domain.EventRepository
	operationRepo ledgerdomain.OperationRepository
	positionRepo  ledgerdomain.PositionRepository
	audit         AuditRecorder
	logger        *slog.Logger
}

func NewCorporateActionService(
	eventRepo domain.EventRepository,
	operationRepo ledgerdomain.OperationRepository,
	positionRepo ledgerdomain.PositionRepository,
	audit AuditRecorder,
	logger *slog.Logger,
) *CorporateActionService {
	return &CorporateActionService{
		eventRepo:     eventRepo,
		operationRepo: operationRepo,
		positionRepo:  positionRepo,
		audit:         audit,
		logger:        logger.With("module", "corporate_action_service"),
	}
}

type AnnounceEventCmd struct {
	InstrumentID      string
	Type              domain.EventType
	RecordDate        time.Time
	EffectiveDate     time.Time
	QuantityFactor    decimal.Decimal
	PriceFactor       decimal.Decimal
	NewInstrumentID   string
	ConversionRatio   decimal.Decimal
	SubscriptionPrice decimal.Decimal
	SubscriptionRatio decimal.Decimal
	Actor             string
}

// AnnounceEvent registers a new corporate event in ANNOUNCED state.
func (s *CorporateActionService) AnnounceEvent(ctx context.Context, cmd AnnounceEventCmd) (*domain.CorporateEvent, error) {
	event := domain.NewCorporateEvent(fmt.Sprintf("CA%s", idgen.GenIDString()), cmd.InstrumentID, cmd.Type)
	event.RecordDate = cmd.RecordDate
	event.EffectiveDate = cmd.EffectiveDate
	event.QuantityFactor = cmd.QuantityFactor
	event.PriceFactor = cmd.PriceFactor
	event.NewInstrumentID = cmd.NewInstrumentID
	event.ConversionRatio = cmd.ConversionRatio
	event.SubscriptionPrice = cmd.SubscriptionPrice
	event.SubscriptionRatio = cmd.SubscriptionRatio

	if _, err := event.Validate(time.Now()); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Save(ctx, event); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, event.EventID, "CREATE", cmd.Actor, nil, event, false)
	s.logger.InfoContext(ctx, "corporate event announced",
		"event_id", event.EventID, "instrument_id", event.InstrumentID, "type", event.Type)
	return event, nil
}

func (s *CorporateActionService) ConfirmEvent(ctx context.Context, eventID, actor string) error {
	event, err := s.eventRepo.GetByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	previous := *event
	if err := event.Confirm(); err != nil {
		return err
	}
	if err := s.eventRepo.Save(ctx, event); err != nil {
		return err
	}
	s.recordAudit(ctx, eventID, "UPDATE", actor, &previous, event, false)
	return nil
}

func (s *CorporateActionService) CancelEvent(ctx context.Context, eventID, actor string) error {
	event, err := s.eventRepo.GetByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	previous := *event
	if err := event.Cancel(); err != nil {
		return err
	}
	if err := s.eventRepo.Save(ctx, event); err != nil {
		return err
	}
	s.recordAudit(ctx, eventID, "UPDATE", actor, &previous, event, false)
	return nil
}

// ExecutionSummary reports what an event execution touched.
type ExecutionSummary struct {
	EventID           string   `json:"event_id"`
	PositionsAffected int      `json:"positions_affected"`
	OperationsRewrote int      `json:"operations_rewrote"`
	SpunOffPositions  int      `json:"spun_off_positions"`
	Warnings          []string `json:"warnings,omitempty"`
}

// ExecuteEvent applies the event to every position holding its instrument,
// rewrites historical operations for splits, and marks the event EXECUTED.
// All mutations share one transaction.
func (s *CorporateActionService) ExecuteEvent(ctx context.Context, eventID, actor string) (*ExecutionSummary, error) {
	event, err := s.eventRepo.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	summary := &ExecutionSummary{EventID: eventID}
	now := time.Now()

	err = s.eventRepo.WithTx(ctx, func(ctx context.Context) error {
		positions, err := s.positionRepo.ListByInstrument(ctx, event.InstrumentID)
		if err != nil {
			return err
		}

		for _, pos := range positions {
			result, err := event.Apply(*pos, now)
			if err != nil {
				return fmt.Errorf("position %s/%s: %w", pos.AccountID, pos.InstrumentID, err)
			}
			result.Position.ID = pos.ID
			if err := s.positionRepo.Upsert(ctx, result.Position); err != nil {
				return err
			}
			summary.PositionsAffected++
			summary.Warnings = append(summary.Warnings, result.Warnings...)

			if result.SpunOff != nil {
				if err := s.positionRepo.Upsert(ctx, result.SpunOff); err != nil {
					return err
				}
				summary.SpunOffPositions++
			}

			if event.Type == domain.EventSplit || event.Type == domain.EventReverseSplit {
				rewrote, warnings, err := s.rewriteHistory(ctx, pos.AccountID, event)
				if err != nil {
					return err
				}
				summary.OperationsRewrote += rewrote
				summary.Warnings = append(summary.Warnings, warnings...)
			}
		}

		if err := event.MarkExecuted(); err != nil {
			return err
		}
		return s.eventRepo.Save(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, eventID, "EXECUTE", actor, nil, summary, false)
	s.logger.InfoContext(ctx, "corporate event executed",
		"event_id", eventID, "positions", summary.PositionsAffected,
		"rewrote", summary.OperationsRewrote)
	return summary, nil
}

func (s *CorporateActionService) GetEvent(ctx context.Context, eventID string) (*domain.CorporateEvent, error) {
	return s.eventRepo.GetByEventID(ctx, eventID)
}

func (s *CorporateActionService) ListEvents(ctx context.Context, instrumentID string) ([]*domain.CorporateEvent, error) {
	return s.eventRepo.ListByInstrument(ctx, instrumentID)
}

// rewriteHistory adjusts one account's prior operations on the event's
// instrument and persists the changed rows.
func (s *CorporateActionService) rewriteHistory(ctx context.Context, accountID string, event *domain.CorporateEvent) (int, []string, error) {
	ops, err := s.operationRepo.ListByKey(ctx, accountID, event.InstrumentID)
	if err != nil {
		return 0, nil, err
	}
	adjusted, warnings, err := domain.AdjustHistory(ops, event)
	if err != nil {
		return 0, warnings, err
	}

	rewrote := 0
	for i := range adjusted {
		if adjusted[i].Quantity.Equal(ops[i].Quantity) && adjusted[i].UnitPrice.Equal(ops[i].UnitPrice) {
			continue
		}
		if err := s.operationRepo.Update(ctx, &adjusted[i]); err != nil {
			return rewrote, warnings, err
		}
		rewrote++
	}
	return rewrote, warnings, nil
}

func (s *CorporateActionService) recordAudit(ctx context.Context, eventID, action, actor string, previous, current any, reversible bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordChange(ctx, "CORPORATE_EVENT", eventID, action, actor, previous, current, reversible); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "event_id", eventID, "action", action, "error", err)
	}
}
