// Package messaging publishes recorded audit entries through the
// transactional outbox so the trail and the bus cannot diverge.
package messaging

import (
	"context"

	"github.com/wyfcoding/pkg/messagequeue/outbox"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/application"
	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
)

// TopicAuditEntryRecorded carries every stored audit entry.
const TopicAuditEntryRecorded = "portfolio.audit.entry.recorded"

type outboxPublisher struct {
	manager *outbox.Manager
}

func NewOutboxPublisher(manager *outbox.Manager) application.EventPublisher {
	return &outboxPublisher{manager: manager}
}

func (p *outboxPublisher) Publish(ctx context.Context, entry *domain.AuditEntry) error {
	return p.manager.PublishInTx(ctx, p.manager.DB(), TopicAuditEntryRecorded, entry.EntryID, entry)
}
