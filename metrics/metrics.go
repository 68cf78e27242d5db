package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// AttrOK is a metric tag to indicate a successful operation.
	AttrOK = attribute.Key("status").String("ok")
	// AttrError is a metric tag to indicate a failed operation.
	AttrError = attribute.Key("status").String("error")
)

// Outcome returns AttrOK when err is nil and AttrError otherwise.
func Outcome(err error) attribute.KeyValue {
	if err != nil {
		return AttrError
	}
	return AttrOK
}

// MetricIncrCounter increments m by 1, tagged with the outcome of err. It's meant
// to be deferred with a named error result.
func MetricIncrCounter(ctx context.Context, err error, m metric.Int64Counter, labels ...attribute.KeyValue) {
	m.Add(ctx, 1, append(labels, Outcome(err))...)
}

// RecordSince records the time elapsed since start in h, in units of unit.
func RecordSince(ctx context.Context, h metric.Int64Histogram, start time.Time, unit time.Duration, labels ...attribute.KeyValue) {
	h.Record(ctx, int64(time.Since(start)/unit), labels...)
}
