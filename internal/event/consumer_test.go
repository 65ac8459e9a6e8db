package event

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/stroymart/catalog-search/pkg/kafka"
)

type recordingScheduler struct {
	reasons []string
}

func (r *recordingScheduler) MarkDirty(reason string) {
	r.reasons = append(r.reasons, reason)
}

func newTestConsumer() (*Consumer, *recordingScheduler) {
	sched := &recordingScheduler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConsumer(sched, logger), sched
}

func TestHandle_CatalogEventsMarkDirty(t *testing.T) {
	c, sched := newTestConsumer()

	for _, topic := range Topics() {
		ev, err := pkgkafka.NewEvent(topic, "42", "product", "product-service", map[string]any{"id": 42})
		require.NoError(t, err)
		require.NoError(t, c.Handle(context.Background(), ev))
	}

	assert.Equal(t, Topics(), sched.reasons)
}

func TestHandle_UnknownEventIsIgnored(t *testing.T) {
	c, sched := newTestConsumer()

	ev, err := pkgkafka.NewEvent("catalog.order.created", "7", "order", "order-service", nil)
	require.NoError(t, err)
	require.NoError(t, c.Handle(context.Background(), ev))

	assert.Empty(t, sched.reasons)
}
