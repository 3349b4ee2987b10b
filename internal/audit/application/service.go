// Package application records, reverses and reports audit entries, and
// publishes each recorded entry for downstream consumers.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/pkg/idgen"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
)

// EventPublisher pushes recorded entries onto the message bus. Implementations
// may buffer through an outbox table.
type EventPublisher interface {
	Publish(ctx context.Context, entry *domain.AuditEntry) error
}

type AuditService struct {
	auditRepo domain.AuditRepository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewAuditService(auditRepo domain.AuditRepository, publisher EventPublisher, logger *slog.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		publisher: publisher,
		logger:    logger.With("module", "audit_service"),
	}
}

// RecordChange stores one audit entry. It satisfies the AuditRecorder
// interface the other modules declare. Every pair is written, but only
// mandatory pairs (domain.IsAuditable) propagate a storage failure; for
// advisory pairs the mutation must not fail over a lost trail entry.
func (s *AuditService) RecordChange(ctx context.Context, entityType, entityID, action, actor string, previous, current any, reversible bool) error {
	entry, err := domain.Record(
		fmt.Sprintf("AUD%s", idgen.GenIDString()),
		domain.EntityType(entityType), entityID, domain.Action(action), actor, time.Now(),
		domain.RecordOptions{
			Previous:   previous,
			New:        current,
			Source:     domain.SourceSystem,
			Reversible: reversible,
		})
	if err != nil {
		return err
	}
	if err := s.auditRepo.Save(ctx, entry); err != nil {
		if domain.IsAuditable(entry.EntityType, entry.Action) {
			return err
		}
		s.logger.WarnContext(ctx, "advisory audit entry dropped",
			"entity_type", entityType, "entity_id", entityID, "action", action, "error", err)
		return nil
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			// the stored entry is authoritative; publication is best effort
			s.logger.WarnContext(ctx, "audit publish failed", "entry_id", entry.EntryID, "error", err)
		}
	}
	return nil
}

// ReverseEntry produces and stores the compensating entry for a reversible
// record.
func (s *AuditService) ReverseEntry(ctx context.Context, entryID, actor string) (*domain.AuditEntry, error) {
	entry, err := s.auditRepo.GetByEntryID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	reversal, err := entry.Reverse(fmt.Sprintf("AUD%s", idgen.GenIDString()), actor, time.Now())
	if err != nil {
		return nil, err
	}

	err = s.auditRepo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.auditRepo.Save(ctx, reversal); err != nil {
			return err
		}
		return s.auditRepo.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "audit entry reversed",
		"entry_id", entryID, "reversal_id", reversal.EntryID, "actor", actor)
	return reversal, nil
}

// QueryReport loads and filters the trail into a paginated report.
func (s *AuditService) QueryReport(ctx context.Context, filter domain.Filter) (*domain.Report, error) {
	var (
		entries []*domain.AuditEntry
		err     error
	)
	if filter.EntityType != "" && filter.EntityID != "" {
		entries, err = s.auditRepo.ListByEntity(ctx, filter.EntityType, filter.EntityID)
	} else {
		entries, err = s.auditRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	return domain.BuildReport(entries, filter), nil
}

func (s *AuditService) GetEntry(ctx context.Context, entryID string) (*domain.AuditEntry, error) {
	return s.auditRepo.GetByEntryID(ctx, entryID)
}
