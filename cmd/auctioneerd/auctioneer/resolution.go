package auctioneer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
)

// ResolutionResult is the state of a lane after a failed award was resolved.
type ResolutionResult struct {
	Lane  core.Lane       `json:"lane"`
	Award *core.Award     `json:"award,omitempty"`
	Queue *core.LaneQueue `json:"queue,omitempty"`
}

// ResolveFailedAward takes a lane out of a FAILED queue.
func (a *Auctioneer) ResolveFailedAward(laneID core.LaneID, res core.Resolution, actor string) (ResolutionResult, error) {
	if res.Duration < 0 {
		return ResolutionResult{}, fmt.Errorf("%w: duration can't be negative", core.ErrValidationFailed)
	}
	if res.Price.Valid && !res.Price.Decimal.IsPositive() {
		return ResolutionResult{}, fmt.Errorf("%w: price must be positive", core.ErrValidationFailed)
	}

	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return ResolutionResult{}, err
	}
	q, ok := a.queues[laneID]
	if !ok {
		return ResolutionResult{}, fmt.Errorf("queue of lane %s: %w", laneID, core.ErrNotFound)
	}
	if q.Status != core.QueueStatusFailed {
		return ResolutionResult{}, fmt.Errorf("%w: queue is %s, not FAILED", core.ErrInvalidState, q.Status)
	}
	now := a.clock.Now()
	reason := res.Reason
	if reason == "" {
		reason = "failed award resolution: " + string(res.Action)
	}

	var aw *core.Award
	switch res.Action {
	case core.ResolveAwardOutsideThreshold:
		e := q.Entry(res.VendorID)
		if e == nil {
			return ResolutionResult{}, fmt.Errorf("vendor %s in queue of lane %s: %w", res.VendorID, laneID, core.ErrNotFound)
		}
		if aw, err = a.reawardEntry(now, l, q, e, res.Price, reason, actor); err != nil {
			return ResolutionResult{}, err
		}

	case core.ResolveRenegotiateOriginal:
		if aw, err = a.reawardEntry(now, l, q, &q.Entries[0], res.Price, reason, actor); err != nil {
			return ResolutionResult{}, err
		}

	case core.ResolveReauction:
		auction := a.auctions[l.AuctionID]
		if auction.Status == core.AuctionStatusPaused {
			return ResolutionResult{}, fmt.Errorf("%w: auction is PAUSED", core.ErrInvalidState)
		}
		d := res.Duration
		if d == 0 {
			d = a.conf.ReauctionDuration
		}
		a.reopenLane(now, l, d, reason, actor)
		return ResolutionResult{Lane: *l}, nil

	case core.ResolveCancelLane:
		l.Status = core.LaneStatusClosed
		q.Status = core.QueueStatusCompleted
		q.UpdatedAt = now
		a.record(now, core.EventLaneClosed, laneEntity(l.ID), actor, laneEvent(l), "reason", reason)
		a.record(now, core.EventQueueCompleted, queueEntity(l.ID), actor, laneEvent(l), "reason", "lane cancelled")
		a.maybeComplete(now, a.auctions[l.AuctionID], actor)

	default:
		return ResolutionResult{}, fmt.Errorf("%w: unknown resolution %q", core.ErrValidationFailed, res.Action)
	}

	r := ResolutionResult{Lane: *l, Queue: q.Copy()}
	if aw != nil {
		c := copyAward(aw)
		r.Award = &c
	}
	return r, nil
}

// reawardEntry awards a queue entry of a FAILED queue, at price if set or at the
// entry bid otherwise. The vendor must still pass the gate.
func (a *Auctioneer) reawardEntry(
	now time.Time,
	l *core.Lane,
	q *core.LaneQueue,
	e *core.QueueEntry,
	price decimal.NullDecimal,
	reason string,
	actor string) (*core.Award, error) {
	if ok, why := a.eligible(e.VendorID); !ok {
		return nil, fmt.Errorf("vendor %s: %w: %s", e.VendorID, core.ErrIneligibleVendor, why)
	}
	p := e.BidAmount
	if price.Valid {
		p = price.Decimal
	}
	aw := a.issueAward(now, l, e.VendorID, p, e.Rank, reason, actor)
	q.Status = core.QueueStatusReassigned
	ev := laneEvent(l)
	ev.VendorID = e.VendorID
	a.record(now, core.EventQueueReassigned, queueEntity(l.ID), actor, ev,
		"rank", fmt.Sprint(e.Rank), "cause", "resolution")
	return aw, nil
}

// reopenLane runs a fresh bounded round on l. Bids, queue and the current award
// are dropped; the award history is kept.
func (a *Auctioneer) reopenLane(now time.Time, l *core.Lane, d time.Duration, reason, actor string) {
	delete(a.bids, l.ID)
	delete(a.queues, l.ID)
	delete(a.currentAward, l.ID)
	delete(a.paused, l.ID)
	a.roundStart[l.ID] = len(a.laneAwards[l.ID])
	l.Status = core.LaneStatusRunning
	l.StartTime = now
	l.EndTime = now.Add(d)
	l.CurrentLowestBid = decimal.NullDecimal{}
	l.Reauctions++
	auction := a.auctions[l.AuctionID]
	if auction.Status != core.AuctionStatusRunning {
		a.setAuctionStatus(now, auction, core.AuctionStatusRunning, core.EventAuctionStarted, actor,
			"lane_id", string(l.ID), "reason", "reauction")
	}
	a.record(now, core.EventLaneReopened, laneEntity(l.ID), actor, laneEvent(l),
		"reason", reason, "end_time", l.EndTime.Format(time.RFC3339Nano))
	log.Debugf("lane %s reopened until %s", l.ID, l.EndTime)
}

// GetFailedAwardContext returns what an operator needs to resolve a FAILED queue.
func (a *Auctioneer) GetFailedAwardContext(laneID core.LaneID) (core.FailedAwardContext, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return core.FailedAwardContext{}, err
	}
	q, ok := a.queues[laneID]
	if !ok {
		return core.FailedAwardContext{}, fmt.Errorf("queue of lane %s: %w", laneID, core.ErrNotFound)
	}
	if q.Status != core.QueueStatusFailed {
		return core.FailedAwardContext{}, fmt.Errorf("%w: queue is %s, not FAILED", core.ErrInvalidState, q.Status)
	}
	fc := core.FailedAwardContext{
		Lane:   *l,
		Queue:  q.Copy(),
		Awards: a.awardChain(laneID),
	}
	winner := q.Entries[0]
	fc.OriginalWinner = &winner
	for _, e := range q.Entries[1:] {
		if e.Removed {
			continue
		}
		if e.Status == core.EntryStatusOutOfThreshold ||
			((e.Status == core.EntryStatusStandby || e.Status == core.EntryStatusSkipped) && !e.EligibleForAutoAward) {
			fc.OutsideThreshold = append(fc.OutsideThreshold, e)
		}
	}
	if len(fc.OutsideThreshold) > 0 {
		fc.Actions = append(fc.Actions, core.ResolveAwardOutsideThreshold)
	}
	if ok, _ := a.eligible(winner.VendorID); ok {
		fc.Actions = append(fc.Actions, core.ResolveRenegotiateOriginal)
	}
	if a.auctions[l.AuctionID].Status != core.AuctionStatusPaused {
		fc.Actions = append(fc.Actions, core.ResolveReauction)
	}
	fc.Actions = append(fc.Actions, core.ResolveCancelLane)
	return fc, nil
}
