package msgbroker

import (
	"context"
	"time"

	"github.com/textileio/lane-core/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records publish and handle outcomes of a broker backend per topic.
type Metrics struct {
	published      metric.Int64Counter
	handled        metric.Int64Counter
	handleDuration metric.Int64Histogram
}

// NewMetrics creates the instruments of backend on meter.
func NewMetrics(meter metric.MeterMust, backend string) *Metrics {
	return &Metrics{
		published:      meter.NewInt64Counter(backend + "_published_messages_total"),
		handled:        meter.NewInt64Counter(backend + "_handled_messages_total"),
		handleDuration: meter.NewInt64Histogram(backend + "_handle_message_duration_millis"),
	}
}

// OnPublish records a publish on topic.
func (m *Metrics) OnPublish(ctx context.Context, topic string, err error) {
	metrics.MetricIncrCounter(ctx, err, m.published, attribute.String("topic", topic))
}

// OnHandle records a handler call on topic that started at start.
func (m *Metrics) OnHandle(ctx context.Context, topic string, start time.Time, err error) {
	label := attribute.String("topic", topic)
	metrics.RecordSince(ctx, m.handleDuration, start, time.Millisecond, label)
	metrics.MetricIncrCounter(ctx, err, m.handled, label)
}
