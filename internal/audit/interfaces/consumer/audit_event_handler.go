// Package consumer projects published audit entries into operational metrics
// and flags suspicious activity.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wyfcoding/pkg/messagequeue/kafka"

	"github.com/wyfcoding/portfolioaccounting/internal/audit/domain"
	"github.com/wyfcoding/portfolioaccounting/internal/audit/infrastructure/messaging"
)

type AuditEventHandler struct {
	logger  *slog.Logger
	entries *prometheus.CounterVec
}

func NewAuditEventHandler(logger *slog.Logger, registry prometheus.Registerer) *AuditEventHandler {
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolioaccounting",
		Subsystem: "audit",
		Name:      "entries_total",
		Help:      "Audit entries observed on the bus, by entity type and action.",
	}, []string{"entity_type", "action"})
	registry.MustRegister(entries)

	return &AuditEventHandler{
		logger:  logger.With("module", "audit_consumer"),
		entries: entries,
	}
}

func (h *AuditEventHandler) Subscribe(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.Handle)
}

func (h *AuditEventHandler) Handle(ctx context.Context, msg kafkago.Message) error {
	switch msg.Topic {
	case messaging.TopicAuditEntryRecorded:
		var entry domain.AuditEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal audit entry", "error", err)
			return err
		}
		h.entries.WithLabelValues(string(entry.EntityType), string(entry.Action)).Inc()

		// approval decisions and reversals are worth a visible trace
		if entry.Action == domain.ActionApprove || entry.ReversalOf != "" {
			h.logger.InfoContext(ctx, "sensitive audit entry observed",
				"entry_id", entry.EntryID, "entity_type", entry.EntityType,
				"entity_id", entry.EntityID, "action", entry.Action, "actor", entry.Actor)
		}
		return nil
	default:
		h.logger.WarnContext(ctx, "unknown audit topic", "topic", msg.Topic)
		return nil
	}
}
