package auctioneer

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
)

// notify records the decision to contact a vendor and hands it to the broker.
// Must be called with the lock held.
func (a *Auctioneer) notify(
	now time.Time,
	kind core.NotificationKind,
	vendor core.VendorID,
	laneID core.LaneID,
	awardID core.AwardID,
	format string,
	args ...interface{}) {
	n := core.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		VendorID:  vendor,
		LaneID:    laneID,
		AwardID:   awardID,
		Message:   fmt.Sprintf(format, args...),
		CreatedAt: now,
	}
	a.notifications = append(a.notifications, n)
	a.feed.notify(n)
	log.Debugf("notify %s (%s): %s", vendor, kind, n.Message)
}

func money(d decimal.Decimal) string {
	return humanize.CommafWithDigits(d.InexactFloat64(), 2)
}

// within renders deadline relative to now, e.g. "3 hours from now".
func within(now, deadline time.Time) string {
	return humanize.RelTime(deadline, now, "ago", "from now")
}

func (a *Auctioneer) laneName(id core.LaneID) string {
	if l, ok := a.lanes[id]; ok && l.Name != "" {
		return l.Name
	}
	return string(id)
}
