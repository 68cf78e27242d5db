package auctioneer

import (
	"context"
	"fmt"
	"sort"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/audit"
	"github.com/textileio/lane-core/cmd/auctioneerd/auctioneer/queue"
)

// GetAuction returns an auction by id.
func (a *Auctioneer) GetAuction(id core.AuctionID) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(id)
	if err != nil {
		return core.Auction{}, err
	}
	return *auction, nil
}

// ListAuctions returns all auctions, oldest first.
func (a *Auctioneer) ListAuctions() []core.Auction {
	a.lk.Lock()
	defer a.lk.Unlock()
	list := make([]core.Auction, 0, len(a.auctions))
	for _, auction := range a.auctions {
		list = append(list, *auction)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// GetRuleset returns the ruleset of an auction.
func (a *Auctioneer) GetRuleset(auctionID core.AuctionID) (core.Ruleset, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Ruleset{}, err
	}
	rs := a.rulesets[auction.RulesetID]
	if rs.Threshold != nil {
		t := *rs.Threshold
		rs.Threshold = &t
	}
	return rs, nil
}

// GetLanesByAuction returns the lanes of an auction by sequence order.
func (a *Auctioneer) GetLanesByAuction(auctionID core.AuctionID) ([]core.Lane, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	if _, err := a.getAuction(auctionID); err != nil {
		return nil, err
	}
	ids := a.auctionLanes[auctionID]
	list := make([]core.Lane, 0, len(ids))
	for _, id := range ids {
		list = append(list, *a.lanes[id])
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].SequenceOrder < list[j].SequenceOrder })
	return list, nil
}

// GetLane returns a lane by id.
func (a *Auctioneer) GetLane(id core.LaneID) (core.Lane, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(id)
	if err != nil {
		return core.Lane{}, err
	}
	return *l, nil
}

// GetBidsByLane returns the bids of a lane, best first.
func (a *Auctioneer) GetBidsByLane(laneID core.LaneID) ([]core.Bid, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	if _, err := a.getLane(laneID); err != nil {
		return nil, err
	}
	bids := a.bids[laneID]
	list := make([]core.Bid, 0, len(bids))
	it := queue.BidsSorter(bids).Iterate(queue.BestFirst())
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		list = append(list, b)
	}
	return list, nil
}

// GetAward returns an award by id.
func (a *Auctioneer) GetAward(id core.AwardID) (core.Award, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	aw, ok := a.awards[id]
	if !ok {
		return core.Award{}, fmt.Errorf("award %s: %w", id, core.ErrNotFound)
	}
	return copyAward(aw), nil
}

// GetAwardChain returns every award issued for a lane, oldest first.
func (a *Auctioneer) GetAwardChain(laneID core.LaneID) ([]core.Award, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	if _, err := a.getLane(laneID); err != nil {
		return nil, err
	}
	return a.awardChain(laneID), nil
}

func (a *Auctioneer) awardChain(laneID core.LaneID) []core.Award {
	ids := a.laneAwards[laneID]
	list := make([]core.Award, 0, len(ids))
	for _, id := range ids {
		list = append(list, copyAward(a.awards[id]))
	}
	return list
}

// GetAlternateQueueForLane returns the queue of a lane.
func (a *Auctioneer) GetAlternateQueueForLane(laneID core.LaneID) (*core.LaneQueue, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	q, err := a.getQueue(laneID)
	if err != nil {
		return nil, err
	}
	return q.Copy(), nil
}

// GetAlternateQueueMetrics summarises the queue of a lane.
func (a *Auctioneer) GetAlternateQueueMetrics(laneID core.LaneID) (core.QueueMetrics, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	q, err := a.getQueue(laneID)
	if err != nil {
		return core.QueueMetrics{}, err
	}
	return queue.Metrics(q), nil
}

// GetVendorQueueStatus returns the position of a vendor in every queue it is part of.
// Ranks are hidden when the auction ruleset doesn't allow rank visibility.
func (a *Auctioneer) GetVendorQueueStatus(vendorID core.VendorID) []core.VendorQueueStatus {
	a.lk.Lock()
	defer a.lk.Unlock()
	var list []core.VendorQueueStatus
	for _, l := range a.sortedLanes() {
		q, ok := a.queues[l.ID]
		if !ok {
			continue
		}
		e := q.Entry(vendorID)
		if e == nil {
			continue
		}
		s := core.VendorQueueStatus{
			LaneID:               l.ID,
			AuctionID:            l.AuctionID,
			BidAmount:            e.BidAmount,
			Status:               e.Status,
			EligibleForAutoAward: e.EligibleForAutoAward,
			QueueStatus:          q.Status,
		}
		if a.rulesets[a.auctions[l.AuctionID].RulesetID].AllowRankVisibility {
			s.Rank = e.Rank
		}
		list = append(list, s)
	}
	return list
}

// GetPlacement returns a placement tracker by id.
func (a *Auctioneer) GetPlacement(id core.TrackerID) (core.PlacementTracker, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	pt, ok := a.trackers[id]
	if !ok {
		return core.PlacementTracker{}, fmt.Errorf("placement %s: %w", id, core.ErrNotFound)
	}
	return *pt, nil
}

// GetSpotAuction returns a spot auction by id.
func (a *Auctioneer) GetSpotAuction(id core.SpotAuctionID) (core.SpotAuction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	sa, ok := a.spots[id]
	if !ok {
		return core.SpotAuction{}, fmt.Errorf("spot auction %s: %w", id, core.ErrNotFound)
	}
	return copySpot(sa), nil
}

// ListNotifications returns the notifications decided for a vendor, oldest
// first. An empty vendorID returns all of them.
func (a *Auctioneer) ListNotifications(vendorID core.VendorID) []core.Notification {
	a.lk.Lock()
	defer a.lk.Unlock()
	var list []core.Notification
	for _, n := range a.notifications {
		if vendorID == "" || n.VendorID == vendorID {
			list = append(list, n)
		}
	}
	return list
}

// AuditLog lists audit entries.
func (a *Auctioneer) AuditLog(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	return a.audit.List(ctx, q)
}

func (a *Auctioneer) getQueue(laneID core.LaneID) (*core.LaneQueue, error) {
	if _, err := a.getLane(laneID); err != nil {
		return nil, err
	}
	q, ok := a.queues[laneID]
	if !ok {
		return nil, fmt.Errorf("queue of lane %s: %w", laneID, core.ErrNotFound)
	}
	return q, nil
}
