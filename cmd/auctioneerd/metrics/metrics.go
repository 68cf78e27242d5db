package metrics

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

// Prefix is the prefix of every auctioneerd metric.
const Prefix = "auctioneerd"

// Meter is the daemon meter.
var Meter = metric.Must(global.Meter(Prefix))
