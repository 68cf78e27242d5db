package auctioneer

import (
	"context"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (a *Auctioneer) initMetrics() {
	a.metricAuctions = metrics.Meter.NewInt64Counter(metrics.Prefix + ".auctions_total")
	a.metricLanesStarted = metrics.Meter.NewInt64Counter(metrics.Prefix + ".lanes_started_total")
	a.metricLanesClosed = metrics.Meter.NewInt64Counter(metrics.Prefix + ".lanes_closed_total")
	a.metricLaneExtensions = metrics.Meter.NewInt64Counter(metrics.Prefix + ".lane_extensions_total")
	a.metricBids = metrics.Meter.NewInt64Counter(metrics.Prefix + ".bids_total")
	a.metricAwards = metrics.Meter.NewInt64Counter(metrics.Prefix + ".awards_total")
	a.metricAwardResponses = metrics.Meter.NewInt64Counter(metrics.Prefix + ".award_responses_total")
	a.metricCascades = metrics.Meter.NewInt64Counter(metrics.Prefix + ".cascades_total")
	a.metricQueueFailures = metrics.Meter.NewInt64Counter(metrics.Prefix + ".queue_failures_total")
	a.metricPlacements = metrics.Meter.NewInt64Counter(metrics.Prefix + ".placements_total")
	a.metricSpotAuctions = metrics.Meter.NewInt64Counter(metrics.Prefix + ".spot_auctions_total")
	a.metricDroppedEvents = metrics.Meter.NewInt64Counter(metrics.Prefix + ".dropped_events_total")
	a.metricOpenLanes = metrics.Meter.NewInt64GaugeObserver(metrics.Prefix+".open_lanes", a.openLanesCb)
	a.metricLiveAwards = metrics.Meter.NewInt64GaugeObserver(metrics.Prefix+".live_awards", a.liveAwardsCb)
	a.metricTickLatency = metrics.Meter.NewInt64Histogram(metrics.Prefix + ".tick_duration_micros")
}

func (a *Auctioneer) openLanesCb(_ context.Context, r metric.Int64ObserverResult) {
	a.lk.Lock()
	defer a.lk.Unlock()
	var running, paused int64
	for _, l := range a.lanes {
		switch l.Status {
		case core.LaneStatusRunning:
			running++
		case core.LaneStatusPaused:
			paused++
		}
	}
	r.Observe(running, attribute.String("status", "running"))
	r.Observe(paused, attribute.String("status", "paused"))
}

func (a *Auctioneer) liveAwardsCb(_ context.Context, r metric.Int64ObserverResult) {
	a.lk.Lock()
	defer a.lk.Unlock()
	var live int64
	for _, id := range a.currentAward {
		if a.awards[id].Live() {
			live++
		}
	}
	r.Observe(live)
}

func (a *Auctioneer) onDropped(where string) {
	a.metricDroppedEvents.Add(context.Background(), 1, attribute.String("where", where))
}
