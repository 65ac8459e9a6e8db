package event

import (
	"context"
	"log/slog"

	pkgkafka "github.com/stroymart/catalog-search/pkg/kafka"
)

// Kafka topics whose events invalidate the search index. The indexer stays
// the single writer: events only schedule the next pipeline run.
const (
	TopicProductCreated = "catalog.product.created"
	TopicProductUpdated = "catalog.product.updated"
	TopicProductDeleted = "catalog.product.deleted"
)

// Topics lists every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}
}

// ReindexScheduler is notified when the index has gone stale.
type ReindexScheduler interface {
	MarkDirty(reason string)
}

// Consumer turns catalog-change events into reindex requests.
type Consumer struct {
	scheduler ReindexScheduler
	logger    *slog.Logger
}

// NewConsumer creates a consumer feeding the given scheduler.
func NewConsumer(scheduler ReindexScheduler, logger *slog.Logger) *Consumer {
	return &Consumer{scheduler: scheduler, logger: logger}
}

// Handle marks the index dirty for any recognized catalog event.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated, TopicProductDeleted:
		c.logger.DebugContext(ctx, "catalog change observed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
		)
		c.scheduler.MarkDirty(event.EventType)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
	}
	return nil
}
