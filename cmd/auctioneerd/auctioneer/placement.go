package auctioneer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/metrics"
)

// CreatePlacementSLA starts the vehicle placement countdown of an accepted award.
func (a *Auctioneer) CreatePlacementSLA(indentID string, awardID core.AwardID, actor string) (t core.PlacementTracker, err error) {
	defer func() { metrics.MetricIncrCounter(context.Background(), err, a.metricPlacements) }()
	if indentID == "" {
		return core.PlacementTracker{}, fmt.Errorf("%w: indent id is empty", core.ErrValidationFailed)
	}
	a.lk.Lock()
	defer a.lk.Unlock()
	aw, ok := a.awards[awardID]
	if !ok {
		return core.PlacementTracker{}, fmt.Errorf("award %s: %w", awardID, core.ErrNotFound)
	}
	if aw.Status != core.AwardStatusAccepted {
		return core.PlacementTracker{}, fmt.Errorf("%w: award is %s, not ACCEPTED", core.ErrInvalidState, aw.Status)
	}
	for _, pt := range a.trackers {
		if pt.IndentID == indentID && pt.Status == core.PlacementStatusPending {
			return core.PlacementTracker{}, fmt.Errorf("%w: indent %s already has pending placement %s",
				core.ErrInvalidState, indentID, pt.ID)
		}
	}
	now := a.clock.Now()
	pt := a.newTracker(now, indentID, aw.LaneID, aw.VendorID, aw.Price, a.conf.PlacementSLA, actor)
	pt.AwardID = aw.ID
	return *pt, nil
}

func (a *Auctioneer) newTracker(
	now time.Time,
	indentID string,
	laneID core.LaneID,
	vendor core.VendorID,
	price decimal.Decimal,
	sla time.Duration,
	actor string) *core.PlacementTracker {
	pt := &core.PlacementTracker{
		ID:         core.TrackerID(a.mustNewID(now)),
		IndentID:   indentID,
		LaneID:     laneID,
		VendorID:   vendor,
		Price:      price,
		Status:     core.PlacementStatusPending,
		SLAEndTime: now.Add(sla),
		CreatedAt:  now,
	}
	a.trackers[pt.ID] = pt
	a.record(now, core.EventPlacementCreated, trackerEntity(pt.ID), actor,
		core.LiveEvent{LaneID: laneID, VendorID: vendor, Amount: price.String()},
		"indent_id", indentID, "sla_end_time", pt.SLAEndTime.Format(time.RFC3339Nano))
	return pt
}

// ConfirmVehiclePlacement marks a pending placement as PLACED.
func (a *Auctioneer) ConfirmVehiclePlacement(trackerID core.TrackerID, actor string) (core.PlacementTracker, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	pt, ok := a.trackers[trackerID]
	if !ok {
		return core.PlacementTracker{}, fmt.Errorf("placement %s: %w", trackerID, core.ErrNotFound)
	}
	if pt.Status != core.PlacementStatusPending {
		return core.PlacementTracker{}, fmt.Errorf("%w: placement is %s", core.ErrInvalidState, pt.Status)
	}
	now := a.clock.Now()
	if now.After(pt.SLAEndTime) {
		return core.PlacementTracker{}, fmt.Errorf("placement %s sla ended at %s: %w", pt.ID, pt.SLAEndTime, core.ErrExpired)
	}
	pt.Status = core.PlacementStatusPlaced
	pt.ResolvedAt = now
	a.record(now, core.EventPlacementConfirmed, trackerEntity(pt.ID), actor,
		core.LiveEvent{LaneID: pt.LaneID, VendorID: pt.VendorID})
	return *pt, nil
}

// TriggerSpotAuction fails a pending placement before its SLA ends and opens a
// spot auction for the indent.
func (a *Auctioneer) TriggerSpotAuction(trackerID core.TrackerID, reason, actor string) (core.SpotAuction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	pt, ok := a.trackers[trackerID]
	if !ok {
		return core.SpotAuction{}, fmt.Errorf("placement %s: %w", trackerID, core.ErrNotFound)
	}
	if pt.Status != core.PlacementStatusPending {
		return core.SpotAuction{}, fmt.Errorf("%w: placement is %s", core.ErrInvalidState, pt.Status)
	}
	if reason == "" {
		reason = "triggered by operator"
	}
	sa := a.breach(a.clock.Now(), pt, reason, actor)
	return copySpot(sa), nil
}

// breach fails pt and opens a spot auction capped at the placement price.
func (a *Auctioneer) breach(now time.Time, pt *core.PlacementTracker, reason, actor string) *core.SpotAuction {
	pt.Status = core.PlacementStatusFailed
	pt.ResolvedAt = now
	a.record(now, core.EventPlacementFailed, trackerEntity(pt.ID), actor,
		core.LiveEvent{LaneID: pt.LaneID, VendorID: pt.VendorID}, "reason", reason)
	a.notify(now, core.NotifyPlacementBreach, pt.VendorID, pt.LaneID, pt.AwardID,
		"Vehicle placement for indent %s was not confirmed in time.", pt.IndentID)

	sa := &core.SpotAuction{
		ID:             core.SpotAuctionID(a.mustNewID(now)),
		IndentID:       pt.IndentID,
		LaneID:         pt.LaneID,
		TrackerID:      pt.ID,
		ExcludedVendor: pt.VendorID,
		Status:         core.SpotAuctionStatusOpen,
		CeilingPrice:   pt.Price,
		StartTime:      now,
		EndTime:        now.Add(a.conf.SpotDuration),
	}
	a.spots[sa.ID] = sa
	pt.SpotAuctionID = sa.ID
	a.metricSpotAuctions.Add(context.Background(), 1)
	a.record(now, core.EventSpotAuctionStarted, spotEntity(sa.ID), actor,
		core.LiveEvent{LaneID: sa.LaneID, Amount: sa.CeilingPrice.String()},
		"indent_id", sa.IndentID, "end_time", sa.EndTime.Format(time.RFC3339Nano))
	log.Infof("placement %s breached (%s), spot auction %s open until %s", pt.ID, reason, sa.ID, sa.EndTime)

	if q := a.queues[pt.LaneID]; q != nil {
		for _, e := range q.Entries {
			if e.VendorID == pt.VendorID || e.Removed {
				continue
			}
			a.notify(now, core.NotifySpotAuction, e.VendorID, pt.LaneID, "",
				"Spot auction open for indent %s on lane %s, ceiling %s, closes %s.",
				sa.IndentID, a.laneName(sa.LaneID), money(sa.CeilingPrice), within(now, sa.EndTime))
		}
	}
	return sa
}

// PlaceSpotBid records a bid on an open spot auction. The first bid can't exceed
// the ceiling price; later bids must beat the best one.
func (a *Auctioneer) PlaceSpotBid(spotID core.SpotAuctionID, vendorID core.VendorID, amount decimal.Decimal) (core.SpotBid, error) {
	if vendorID == "" {
		return core.SpotBid{}, fmt.Errorf("%w: vendor id is empty", core.ErrValidationFailed)
	}
	if !amount.IsPositive() {
		return core.SpotBid{}, fmt.Errorf("%w: amount must be positive", core.ErrValidationFailed)
	}
	a.lk.Lock()
	defer a.lk.Unlock()
	sa, ok := a.spots[spotID]
	if !ok {
		return core.SpotBid{}, fmt.Errorf("spot auction %s: %w", spotID, core.ErrNotFound)
	}
	if sa.Status != core.SpotAuctionStatusOpen {
		return core.SpotBid{}, fmt.Errorf("%w: spot auction is %s", core.ErrInvalidState, sa.Status)
	}
	now := a.clock.Now()
	if now.After(sa.EndTime) {
		return core.SpotBid{}, fmt.Errorf("spot auction %s ended at %s: %w", sa.ID, sa.EndTime, core.ErrExpired)
	}
	if vendorID == sa.ExcludedVendor {
		return core.SpotBid{}, fmt.Errorf("vendor %s: %w: breached the placement", vendorID, core.ErrIneligibleVendor)
	}
	if ok, why := a.eligible(vendorID); !ok {
		return core.SpotBid{}, fmt.Errorf("vendor %s: %w: %s", vendorID, core.ErrIneligibleVendor, why)
	}
	if best, ok := bestSpotBid(sa); ok {
		if !amount.LessThan(best.Amount) {
			return core.SpotBid{}, fmt.Errorf("%w: %s doesn't beat the best bid %s", core.ErrBidTooHigh, amount, best.Amount)
		}
	} else if amount.GreaterThan(sa.CeilingPrice) {
		return core.SpotBid{}, fmt.Errorf("%w: %s is above the ceiling %s", core.ErrBidTooHigh, amount, sa.CeilingPrice)
	}
	bid := core.SpotBid{
		ID:         core.BidID(a.mustNewID(now)),
		VendorID:   vendorID,
		Amount:     amount,
		ReceivedAt: now,
	}
	sa.Bids = append(sa.Bids, bid)
	a.record(now, core.EventSpotBidPlaced, spotEntity(sa.ID), string(vendorID),
		core.LiveEvent{LaneID: sa.LaneID, VendorID: vendorID, Amount: amount.String()},
		"bid_id", string(bid.ID))
	return bid, nil
}

func bestSpotBid(sa *core.SpotAuction) (core.SpotBid, bool) {
	if len(sa.Bids) == 0 {
		return core.SpotBid{}, false
	}
	best := sa.Bids[0]
	for _, b := range sa.Bids[1:] {
		if b.Amount.LessThan(best.Amount) {
			best = b
		}
	}
	return best, true
}

// breachPlacements fails every pending placement past its SLA.
func (a *Auctioneer) breachPlacements(now time.Time) {
	var due []*core.PlacementTracker
	for _, pt := range a.trackers {
		if pt.Status == core.PlacementStatusPending && now.After(pt.SLAEndTime) {
			due = append(due, pt)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	for _, pt := range due {
		a.breach(now, pt, "placement sla breached", systemActor)
	}
}

// closeSpotAuctions closes spot auctions whose timer ran out. The lowest bid wins
// and gets a placement tracker with the spot SLA. No bids means no winner; it isn't retried.
func (a *Auctioneer) closeSpotAuctions(now time.Time) {
	var due []*core.SpotAuction
	for _, sa := range a.spots {
		if sa.Status == core.SpotAuctionStatusOpen && !sa.EndTime.After(now) {
			due = append(due, sa)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	for _, sa := range due {
		best, ok := bestSpotBid(sa)
		if !ok {
			sa.Status = core.SpotAuctionStatusNoWinner
			a.record(now, core.EventSpotAuctionClosed, spotEntity(sa.ID), systemActor,
				core.LiveEvent{LaneID: sa.LaneID}, "winner", "none")
			log.Infof("spot auction %s for indent %s closed without bids", sa.ID, sa.IndentID)
			continue
		}
		sa.Status = core.SpotAuctionStatusClosed
		sa.WinnerBidID = best.ID
		pt := a.newTracker(now, sa.IndentID, sa.LaneID, best.VendorID, best.Amount, a.conf.SpotPlacementSLA, systemActor)
		pt.FromSpotAuctionID = sa.ID
		sa.WinnerTracker = pt.ID
		a.record(now, core.EventSpotAuctionClosed, spotEntity(sa.ID), systemActor,
			core.LiveEvent{LaneID: sa.LaneID, VendorID: best.VendorID, Amount: best.Amount.String()},
			"winner", string(best.VendorID), "tracker_id", string(pt.ID))
		log.Debugf("spot auction %s won by %s at %s", sa.ID, best.VendorID, best.Amount)
	}
}

func copySpot(sa *core.SpotAuction) core.SpotAuction {
	c := *sa
	c.Bids = append([]core.SpotBid(nil), sa.Bids...)
	return c
}
