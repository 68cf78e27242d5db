package auctioneer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/metrics"
)

// StartLane starts the countdown of a PENDING lane.
func (a *Auctioneer) StartLane(laneID core.LaneID, actor string) (lane core.Lane, err error) {
	defer func() { metrics.MetricIncrCounter(context.Background(), err, a.metricLanesStarted) }()
	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return core.Lane{}, err
	}
	auction := a.auctions[l.AuctionID]
	if auction.Status != core.AuctionStatusPublished && auction.Status != core.AuctionStatusRunning {
		return core.Lane{}, fmt.Errorf("%w: auction is %s", core.ErrInvalidState, auction.Status)
	}
	if l.Status != core.LaneStatusPending {
		return core.Lane{}, fmt.Errorf("%w: lane is %s, not PENDING", core.ErrInvalidState, l.Status)
	}
	now := a.clock.Now()
	if auction.Status != core.AuctionStatusRunning {
		a.setAuctionStatus(now, auction, core.AuctionStatusRunning, core.EventAuctionStarted, actor, "lane_id", string(l.ID))
	}
	l.Status = core.LaneStatusRunning
	l.StartTime = now
	l.EndTime = now.Add(l.TimerDuration)
	a.record(now, core.EventLaneStarted, laneEntity(l.ID), actor, laneEvent(l),
		"end_time", l.EndTime.Format(time.RFC3339Nano))
	log.Debugf("lane %s started, ends at %s", l.ID, l.EndTime)
	return *l, nil
}

// PlaceBid validates and records a bid. A bid must improve on the current best
// (or the base price) by at least the minimum decrement, and always strictly. A bid landing within
// the ruleset extension threshold pushes the end time to now plus the extension.
func (a *Auctioneer) PlaceBid(laneID core.LaneID, vendorID core.VendorID, amount decimal.Decimal) (bid core.Bid, err error) {
	defer func() { metrics.MetricIncrCounter(context.Background(), err, a.metricBids) }()
	if vendorID == "" {
		return core.Bid{}, fmt.Errorf("%w: vendor id is empty", core.ErrValidationFailed)
	}
	if !amount.IsPositive() {
		return core.Bid{}, fmt.Errorf("%w: amount must be positive", core.ErrValidationFailed)
	}

	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return core.Bid{}, err
	}
	if l.Status != core.LaneStatusRunning {
		return core.Bid{}, fmt.Errorf("%w: lane is %s, not RUNNING", core.ErrInvalidState, l.Status)
	}
	now := a.clock.Now()
	if now.After(l.EndTime) {
		return core.Bid{}, fmt.Errorf("lane %s ended at %s: %w", l.ID, l.EndTime, core.ErrExpired)
	}
	rs := a.rulesets[a.auctions[l.AuctionID].RulesetID]
	current := l.BasePrice
	if l.CurrentLowestBid.Valid {
		current = l.CurrentLowestBid.Decimal
	}
	dec := a.decrementFor(l, rs)
	maxAllowed := current.Sub(dec)
	if amount.GreaterThan(maxAllowed) || (dec.IsZero() && !amount.LessThan(current)) {
		return core.Bid{}, fmt.Errorf("%w: %s doesn't improve on %s by %s", core.ErrBidTooHigh, amount, current, dec)
	}

	bid = core.Bid{
		ID:         core.BidID(a.mustNewID(now)),
		LaneID:     l.ID,
		VendorID:   vendorID,
		Amount:     amount,
		ReceivedAt: now,
	}
	a.bids[l.ID] = append(a.bids[l.ID], bid)
	l.CurrentLowestBid = decimal.NewNullDecimal(amount)
	ev := laneEvent(l)
	ev.VendorID = vendorID
	ev.Amount = amount.String()
	a.record(now, core.EventBidPlaced, laneEntity(l.ID), string(vendorID), ev, "bid_id", string(bid.ID))

	if rs.TimerExtension > 0 && l.EndTime.Sub(now) <= rs.TimerExtensionThreshold {
		l.EndTime = now.Add(rs.TimerExtension)
		l.Extensions++
		a.metricLaneExtensions.Add(context.Background(), 1)
		a.record(now, core.EventLaneExtended, laneEntity(l.ID), systemActor, laneEvent(l),
			"end_time", l.EndTime.Format(time.RFC3339Nano), "reason", "sniper protection")
		log.Debugf("lane %s extended to %s by late bid %s", l.ID, l.EndTime, bid.ID)
	}
	return bid, nil
}

// decrementFor returns the minimum improvement of a bid on l.
// A positive ruleset decrement overrides the lane's.
func (a *Auctioneer) decrementFor(l *core.Lane, rs core.Ruleset) decimal.Decimal {
	if rs.MinBidDecrement.IsPositive() {
		return rs.MinBidDecrement
	}
	return l.MinBidDecrement
}

// closeLane ends bidding on l, builds its alternate queue and, if configured,
// awards the best eligible vendor.
func (a *Auctioneer) closeLane(now time.Time, l *core.Lane, actor, reason string) {
	delete(a.paused, l.ID)
	l.Status = core.LaneStatusClosed
	l.EndTime = time.Time{}
	a.metricLanesClosed.Add(context.Background(), 1)
	a.record(now, core.EventLaneClosed, laneEntity(l.ID), actor, laneEvent(l),
		"reason", reason, "bids", fmt.Sprint(len(a.bids[l.ID])))
	log.Debugf("lane %s closed (%s) with %d bids", l.ID, reason, len(a.bids[l.ID]))

	if q := a.refreshQueue(now, l, actor); q != nil && a.conf.AutoAwardOnClose {
		a.autoAward(now, l, q, actor)
	}
	a.maybeComplete(now, a.auctions[l.AuctionID], actor)
}
