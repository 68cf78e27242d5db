package auctioneer

import (
	"context"
	"time"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/metrics"
)

// Tick evaluates every timer at now in one pass: lane expiry, award expiry and
// reminders, placement SLA breaches and spot auction closes. Failures found here
// become terminal states and audit entries; nothing is returned to a caller.
func (a *Auctioneer) Tick(now time.Time) {
	defer metrics.RecordSince(context.Background(), a.metricTickLatency, time.Now(), time.Microsecond)
	a.lk.Lock()
	defer a.lk.Unlock()

	for _, l := range a.sortedLanes() {
		if l.Status == core.LaneStatusRunning && !l.EndTime.After(now) {
			a.closeLane(now, l, systemActor, "timer expired")
		}
	}
	a.expireAwards(now)
	a.remindAwards(now)
	a.breachPlacements(now)
	a.closeSpotAuctions(now)
}
