package auctioneer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/auctioneer/queue"
)

// eligible runs the vendor gate. Its result is never cached.
func (a *Auctioneer) eligible(vendor core.VendorID) (bool, string) {
	r := a.vendors.IsEligible(vendor)
	return r.OK, r.Reason
}

// laneThreshold returns the acceptance threshold of l. An operator adjustment wins.
func (a *Auctioneer) laneThreshold(l *core.Lane) core.ThresholdSpec {
	if t, ok := a.thresholds[l.ID]; ok {
		return t
	}
	return a.thresholdFor(a.auctions[l.AuctionID])
}

// CreateOrRefreshAlternateQueue builds or refreshes the queue of every lane of
// an auction that has bids.
func (a *Auctioneer) CreateOrRefreshAlternateQueue(auctionID core.AuctionID, actor string) ([]*core.LaneQueue, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	if _, err := a.getAuction(auctionID); err != nil {
		return nil, err
	}
	now := a.clock.Now()
	var res []*core.LaneQueue
	for _, id := range a.auctionLanes[auctionID] {
		if q := a.refreshQueue(now, a.lanes[id], actor); q != nil {
			res = append(res, q.Copy())
		}
	}
	return res, nil
}

// refreshQueue builds the queue of l from its bids. If the ranking didn't change,
// the existing queue keeps its ranks and only the threshold and flags are re-derived.
// It returns nil if l has no bids.
func (a *Auctioneer) refreshQueue(now time.Time, l *core.Lane, actor string) *core.LaneQueue {
	bids := a.bids[l.ID]
	if len(bids) == 0 {
		return nil
	}
	spec := a.laneThreshold(l)
	ranked := queue.Rank(bids)
	q := a.queues[l.ID]
	if queue.SameRanking(q, ranked) {
		queue.Rederive(q, spec, a.eligible)
	} else {
		fresh := queue.Build(l.AuctionID, l.ID, bids, spec, a.eligible, now)
		if q != nil {
			fresh.Status = q.Status
			fresh.DeclineHistory = q.DeclineHistory
			fresh.FailureReason = q.FailureReason
			fresh.FailedAt = q.FailedAt
			for _, old := range q.Entries {
				e := fresh.Entry(old.VendorID)
				if e == nil {
					continue
				}
				e.NotificationsSent = old.NotificationsSent
				if old.Removed {
					e.Removed = true
					e.Status = core.EntryStatusSkipped
					e.SkipReason = old.SkipReason
					e.EligibleForAutoAward = false
				}
			}
		}
		q = fresh
		a.queues[l.ID] = q
	}
	a.mirrorAwards(q)
	q.UpdatedAt = now
	a.record(now, core.EventQueueBuilt, queueEntity(l.ID), actor, laneEvent(l),
		"entries", fmt.Sprint(len(q.Entries)),
		"winner_bid", q.WinnerBid.String(),
		"max_bid", q.Threshold.CalculatedMaxBid.String())
	return q
}

// mirrorAwards copies the status of the latest award of each vendor in the
// current bidding round onto its entry.
func (a *Auctioneer) mirrorAwards(q *core.LaneQueue) {
	for _, id := range a.laneAwards[q.LaneID][a.roundStart[q.LaneID]:] {
		aw := a.awards[id]
		e := q.Entry(aw.VendorID)
		if e == nil {
			continue
		}
		switch aw.Status {
		case core.AwardStatusPending, core.AwardStatusModificationRequested:
			e.Status = core.EntryStatusAwarded
		case core.AwardStatusAccepted:
			e.Status = core.EntryStatusAccepted
		case core.AwardStatusDeclined:
			e.Status = core.EntryStatusDeclined
		case core.AwardStatusExpired:
			e.Status = core.EntryStatusExpired
		case core.AwardStatusReawarded:
			e.Status = core.EntryStatusReawarded
		}
	}
}

// autoAward awards the best eligible vendor of a freshly closed lane.
func (a *Auctioneer) autoAward(now time.Time, l *core.Lane, q *core.LaneQueue, actor string) {
	if aw, ok := a.awards[a.currentAward[l.ID]]; ok && (aw.Live() || aw.Status == core.AwardStatusAccepted) {
		return
	}
	if a.awardNext(now, l, q, 0, "lowest eligible bid", actor) == nil {
		a.failQueue(now, l, q, "no eligible vendor to award", actor)
	}
}

// awardNext awards the first auto-awardable entry ranked after rank. Entries
// failing the gate at this point are skipped. It returns nil if none is left.
func (a *Auctioneer) awardNext(
	now time.Time,
	l *core.Lane,
	q *core.LaneQueue,
	after int,
	reason string,
	actor string) *core.Award {
	for {
		e := queue.NextCandidate(q, after)
		if e == nil {
			return nil
		}
		if ok, why := a.eligible(e.VendorID); !ok {
			e.Status = core.EntryStatusSkipped
			e.SkipReason = why
			e.IneligibleReason = why
			e.EligibleForAutoAward = false
			ev := laneEvent(l)
			ev.VendorID = e.VendorID
			a.record(now, core.EventQueueEntrySkipped, queueEntity(l.ID), actor, ev,
				"rank", fmt.Sprint(e.Rank), "reason", why)
			log.Debugf("lane %s: skipping rank %d vendor %s: %s", l.ID, e.Rank, e.VendorID, why)
			after = e.Rank
			continue
		}
		return a.issueAward(now, l, e.VendorID, e.BidAmount, e.Rank, reason, actor)
	}
}

// issueAward makes a new PENDING award the current award of l. A live prior
// award is superseded and linked to the new one.
func (a *Auctioneer) issueAward(
	now time.Time,
	l *core.Lane,
	vendor core.VendorID,
	price decimal.Decimal,
	rank int,
	reason string,
	actor string) *core.Award {
	if actor == "" {
		actor = systemActor
	}
	aw := &core.Award{
		ID:                 core.AwardID(a.mustNewID(now)),
		LaneID:             l.ID,
		VendorID:           vendor,
		Price:              price,
		Rank:               rank,
		Status:             core.AwardStatusPending,
		Reason:             reason,
		AwardedBy:          actor,
		AcceptanceDeadline: now.Add(a.conf.AcceptanceWindow),
		CreatedAt:          now,
	}
	q := a.queues[l.ID]
	if prior, ok := a.awards[a.currentAward[l.ID]]; ok {
		aw.ReawardedFrom = prior.ID
		prior.ReawardedTo = aw.ID
		if prior.Live() {
			prior.Status = core.AwardStatusReawarded
			prior.RespondedAt = now
			if q != nil {
				if e := q.Entry(prior.VendorID); e != nil {
					e.Status = core.EntryStatusReawarded
				}
			}
			a.record(now, core.EventAwardSuperseded, awardEntity(prior.ID), actor, awardEvent(l, prior),
				"superseded_by", string(aw.ID))
			a.notify(now, core.NotifyAwardSuperseded, prior.VendorID, l.ID, prior.ID,
				"Your award for lane %s was withdrawn and given to another vendor.", a.laneName(l.ID))
		}
	}
	a.awards[aw.ID] = aw
	a.laneAwards[l.ID] = append(a.laneAwards[l.ID], aw.ID)
	a.currentAward[l.ID] = aw.ID
	l.Status = core.LaneStatusAwarded
	if q != nil {
		if e := q.Entry(vendor); e != nil {
			e.Status = core.EntryStatusAwarded
		}
		q.UpdatedAt = now
	}
	a.metricAwards.Add(context.Background(), 1)
	a.record(now, core.EventAwardIssued, awardEntity(aw.ID), actor, awardEvent(l, aw),
		"rank", fmt.Sprint(rank), "reason", reason, "deadline", aw.AcceptanceDeadline.Format(time.RFC3339Nano))
	a.notify(now, core.NotifyAwardIssued, vendor, l.ID, aw.ID,
		"You have been awarded lane %s at %s. Please respond %s.",
		a.laneName(l.ID), money(price), within(now, aw.AcceptanceDeadline))
	log.Debugf("lane %s awarded to %s (rank %d) at %s", l.ID, vendor, rank, price)
	return aw
}

// cascade moves the award of l down the queue after prior was declined or expired.
// prior must already carry its terminal status.
func (a *Auctioneer) cascade(now time.Time, l *core.Lane, prior *core.Award, cause core.Cause, reason, actor string) {
	a.metricCascades.Add(context.Background(), 1)
	switch cause {
	case core.CauseExpired:
		a.notify(now, core.NotifyAwardExpired, prior.VendorID, l.ID, prior.ID,
			"Your award for lane %s expired without a response.", a.laneName(l.ID))
	default:
		a.notify(now, core.NotifyDeclineProcessed, prior.VendorID, l.ID, prior.ID,
			"Your decline of lane %s was processed.", a.laneName(l.ID))
	}

	q := a.queues[l.ID]
	if q == nil {
		l.Status = core.LaneStatusClosed
		log.Warnf("lane %s has no alternate queue to cascade %s award %s", l.ID, cause, prior.ID)
		return
	}
	after := prior.Rank
	if e := q.Entry(prior.VendorID); e != nil {
		after = e.Rank
		if cause == core.CauseExpired {
			e.Status = core.EntryStatusExpired
		} else {
			e.Status = core.EntryStatusDeclined
		}
	}
	q.DeclineHistory = append(q.DeclineHistory, core.DeclineRecord{
		VendorID: prior.VendorID,
		AwardID:  prior.ID,
		Rank:     after,
		Cause:    cause,
		Reason:   reason,
		At:       now,
	})
	q.UpdatedAt = now

	aw := a.awardNext(now, l, q, after, fmt.Sprintf("re-award after rank %d %s", after, cause), actor)
	if aw == nil {
		a.failQueue(now, l, q, fmt.Sprintf("no eligible standby vendor after rank %d", after), actor)
		return
	}
	q.Status = core.QueueStatusReassigned
	ev := laneEvent(l)
	ev.VendorID = aw.VendorID
	a.record(now, core.EventQueueReassigned, queueEntity(l.ID), actor, ev,
		"from_vendor", string(prior.VendorID), "rank", fmt.Sprint(aw.Rank), "cause", string(cause))

	if next := queue.NextCandidate(q, aw.Rank); next != nil {
		next.NotificationsSent++
		a.notify(now, core.NotifyStandbyAlert, next.VendorID, l.ID, "",
			"You are next in line for lane %s at %s.", a.laneName(l.ID), money(next.BidAmount))
	}
}

// failQueue is terminal until an operator resolves the lane.
func (a *Auctioneer) failQueue(now time.Time, l *core.Lane, q *core.LaneQueue, reason, actor string) {
	q.Status = core.QueueStatusFailed
	q.FailureReason = reason
	q.FailedAt = now
	q.UpdatedAt = now
	l.Status = core.LaneStatusClosed
	a.metricQueueFailures.Add(context.Background(), 1)
	a.record(now, core.EventQueueFailed, queueEntity(l.ID), actor, laneEvent(l), "reason", reason)
	log.Warnf("lane %s: %s: %s", l.ID, core.ErrQueueExhausted, reason)
}

// ManualQueueAction applies an operator action to the queue of a lane.
func (a *Auctioneer) ManualQueueAction(
	laneID core.LaneID,
	action core.QueueAction,
	p core.QueueActionParams,
	actor string) (*core.LaneQueue, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return nil, err
	}
	q, ok := a.queues[laneID]
	if !ok {
		return nil, fmt.Errorf("queue of lane %s: %w", laneID, core.ErrNotFound)
	}
	if q.Status == core.QueueStatusCompleted {
		return nil, fmt.Errorf("%w: queue is COMPLETED", core.ErrInvalidState)
	}
	now := a.clock.Now()
	current := a.awards[a.currentAward[laneID]]

	switch action {
	case core.QueueActionSkipToNext:
		if current == nil || !current.Live() {
			return nil, fmt.Errorf("%w: lane has no live award to skip", core.ErrInvalidState)
		}
		reason := p.Reason
		if reason == "" {
			reason = "skipped by operator"
		}
		current.Status = core.AwardStatusDeclined
		current.DeclineReason = reason
		current.RespondedAt = now
		a.record(now, core.EventAwardDeclined, awardEntity(current.ID), actor, awardEvent(l, current),
			"reason", reason)
		a.cascade(now, l, current, core.CauseDeclined, reason, actor)

	case core.QueueActionRemoveVendor:
		e := q.Entry(p.VendorID)
		if e == nil {
			return nil, fmt.Errorf("vendor %s in queue of lane %s: %w", p.VendorID, laneID, core.ErrNotFound)
		}
		if e.Status != core.EntryStatusStandby {
			return nil, fmt.Errorf("%w: only STANDBY vendors can be removed, %s is %s",
				core.ErrInvalidState, p.VendorID, e.Status)
		}
		e.Status = core.EntryStatusSkipped
		e.Removed = true
		e.EligibleForAutoAward = false
		e.SkipReason = p.Reason
		if e.SkipReason == "" {
			e.SkipReason = "removed by operator"
		}
		ev := laneEvent(l)
		ev.VendorID = e.VendorID
		a.record(now, core.EventQueueEntrySkipped, queueEntity(laneID), actor, ev,
			"rank", fmt.Sprint(e.Rank), "reason", e.SkipReason, "removed", "true")

	case core.QueueActionAwardVendor:
		e := q.Entry(p.VendorID)
		if e == nil {
			return nil, fmt.Errorf("vendor %s in queue of lane %s: %w", p.VendorID, laneID, core.ErrNotFound)
		}
		if current != nil {
			if current.Status == core.AwardStatusAccepted {
				return nil, fmt.Errorf("%w: lane award was already accepted", core.ErrInvalidState)
			}
			if current.Live() && current.VendorID == p.VendorID {
				return nil, fmt.Errorf("%w: %s already holds the award", core.ErrInvalidState, p.VendorID)
			}
		}
		if ok, why := a.eligible(p.VendorID); !ok {
			return nil, fmt.Errorf("vendor %s: %w: %s", p.VendorID, core.ErrIneligibleVendor, why)
		}
		reason := p.Reason
		if reason == "" {
			reason = "awarded by operator"
		}
		a.issueAward(now, l, e.VendorID, e.BidAmount, e.Rank, reason, actor)
		if current != nil {
			q.Status = core.QueueStatusReassigned
			ev := laneEvent(l)
			ev.VendorID = e.VendorID
			a.record(now, core.EventQueueReassigned, queueEntity(laneID), actor, ev,
				"from_vendor", string(current.VendorID), "rank", fmt.Sprint(e.Rank), "cause", "manual")
		} else {
			q.Status = core.QueueStatusActive
		}

	case core.QueueActionAdjustThreshold:
		if p.Threshold == nil || !p.Threshold.Valid() {
			return nil, fmt.Errorf("%w: a valid threshold is required", core.ErrValidationFailed)
		}
		a.thresholds[laneID] = *p.Threshold
		queue.Rederive(q, *p.Threshold, a.eligible)
		a.mirrorAwards(q)
		q.UpdatedAt = now
		a.record(now, core.EventQueueThreshold, queueEntity(laneID), actor, laneEvent(l),
			"type", string(p.Threshold.Type),
			"value", p.Threshold.Value.String(),
			"max_bid", q.Threshold.CalculatedMaxBid.String())

	case core.QueueActionMarkFailed:
		if q.Status == core.QueueStatusFailed {
			return nil, fmt.Errorf("%w: queue is already FAILED", core.ErrInvalidState)
		}
		reason := p.Reason
		if reason == "" {
			reason = "marked failed by operator"
		}
		if current != nil && current.Live() {
			current.Status = core.AwardStatusDeclined
			current.DeclineReason = reason
			current.RespondedAt = now
			if e := q.Entry(current.VendorID); e != nil {
				e.Status = core.EntryStatusDeclined
			}
			a.record(now, core.EventAwardDeclined, awardEntity(current.ID), actor, awardEvent(l, current),
				"reason", reason)
		}
		a.failQueue(now, l, q, reason, actor)

	default:
		return nil, fmt.Errorf("%w: unknown queue action %q", core.ErrValidationFailed, action)
	}
	return q.Copy(), nil
}

func awardEvent(l *core.Lane, aw *core.Award) core.LiveEvent {
	ev := laneEvent(l)
	ev.VendorID = aw.VendorID
	ev.Amount = aw.Price.String()
	return ev
}
