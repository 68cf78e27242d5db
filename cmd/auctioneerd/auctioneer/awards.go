package auctioneer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// AwardLane awards a closed lane to vendor at price. A live award on the lane
// is superseded and linked to the new one. With rank 0 the vendor's queue rank is used.
func (a *Auctioneer) AwardLane(
	laneID core.LaneID,
	vendorID core.VendorID,
	price decimal.Decimal,
	rank int,
	reason string,
	actor string) (core.Award, error) {
	if vendorID == "" {
		return core.Award{}, fmt.Errorf("%w: vendor id is empty", core.ErrValidationFailed)
	}
	if !price.IsPositive() {
		return core.Award{}, fmt.Errorf("%w: price must be positive", core.ErrValidationFailed)
	}
	if rank < 0 {
		return core.Award{}, fmt.Errorf("%w: rank can't be negative", core.ErrValidationFailed)
	}

	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return core.Award{}, err
	}
	if l.Status != core.LaneStatusClosed && l.Status != core.LaneStatusAwarded {
		return core.Award{}, fmt.Errorf("%w: lane is %s, bidding must be over", core.ErrInvalidState, l.Status)
	}
	prior := a.awards[a.currentAward[laneID]]
	if prior != nil && prior.Status == core.AwardStatusAccepted {
		return core.Award{}, fmt.Errorf("%w: lane award was already accepted", core.ErrInvalidState)
	}
	if ok, why := a.eligible(vendorID); !ok {
		return core.Award{}, fmt.Errorf("vendor %s: %w: %s", vendorID, core.ErrIneligibleVendor, why)
	}
	q := a.queues[laneID]
	if rank == 0 && q != nil {
		if e := q.Entry(vendorID); e != nil {
			rank = e.Rank
		}
	}
	if reason == "" {
		reason = "manual award"
	}
	now := a.clock.Now()
	aw := a.issueAward(now, l, vendorID, price, rank, reason, actor)
	if q != nil && prior != nil {
		q.Status = core.QueueStatusReassigned
	}
	return copyAward(aw), nil
}

// UpdateAwardAcceptance applies a vendor response to an award.
func (a *Auctioneer) UpdateAwardAcceptance(
	awardID core.AwardID,
	action core.AcceptanceAction,
	p core.AcceptancePayload,
	actor string) (award core.Award, err error) {
	defer func() {
		metrics.MetricIncrCounter(context.Background(), err, a.metricAwardResponses,
			attribute.String("action", string(action)))
	}()

	a.lk.Lock()
	defer a.lk.Unlock()
	aw, ok := a.awards[awardID]
	if !ok {
		return core.Award{}, fmt.Errorf("award %s: %w", awardID, core.ErrNotFound)
	}
	if aw.Status == core.AwardStatusAccepted {
		return core.Award{}, fmt.Errorf("%w: award was already accepted", core.ErrInvalidState)
	}
	if !aw.Live() {
		return core.Award{}, fmt.Errorf("%w: award is %s", core.ErrInvalidState, aw.Status)
	}
	now := a.clock.Now()
	if aw.Status == core.AwardStatusPending && !now.Before(aw.AcceptanceDeadline) {
		return core.Award{}, fmt.Errorf("award %s deadline was %s: %w", aw.ID, aw.AcceptanceDeadline, core.ErrExpired)
	}
	l := a.lanes[aw.LaneID]

	switch action {
	case core.ActionAccept:
		aw.Status = core.AwardStatusAccepted
		aw.RespondedAt = now
		if q := a.queues[l.ID]; q != nil {
			if e := q.Entry(aw.VendorID); e != nil {
				e.Status = core.EntryStatusAccepted
			}
			q.Status = core.QueueStatusCompleted
			q.UpdatedAt = now
		}
		a.record(now, core.EventAwardAccepted, awardEntity(aw.ID), actor, awardEvent(l, aw))
		a.record(now, core.EventQueueCompleted, queueEntity(l.ID), actor, awardEvent(l, aw), "reason", "award accepted")
		log.Debugf("award %s of lane %s accepted by %s", aw.ID, l.ID, aw.VendorID)

	case core.ActionDecline:
		reason := p.Reason
		if reason == "" {
			reason = "declined by vendor"
		}
		aw.Status = core.AwardStatusDeclined
		aw.DeclineReason = reason
		aw.RespondedAt = now
		a.vendors.Penalize(aw.VendorID, a.conf.ReliabilityPenalty)
		a.record(now, core.EventAwardDeclined, awardEntity(aw.ID), actor, awardEvent(l, aw), "reason", reason)
		log.Debugf("award %s of lane %s declined by %s: %s", aw.ID, l.ID, aw.VendorID, reason)
		a.cascade(now, l, aw, core.CauseDeclined, reason, actor)

	case core.ActionRequestModification:
		if !p.Modification.Complete() {
			return core.Award{}, fmt.Errorf("%w: category, justification and proposed changes are required",
				core.ErrIncompleteRequest)
		}
		m := *p.Modification
		aw.Modification = &m
		aw.Status = core.AwardStatusModificationRequested
		a.record(now, core.EventAwardModification, awardEntity(aw.ID), actor, awardEvent(l, aw),
			"category", m.Category, "justification", m.Justification, "proposed_changes", m.ProposedChanges)

	default:
		return core.Award{}, fmt.Errorf("%w: unknown action %q", core.ErrValidationFailed, action)
	}
	return copyAward(aw), nil
}

// expireAwards expires PENDING awards past their deadline and cascades them.
func (a *Auctioneer) expireAwards(now time.Time) {
	for _, l := range a.sortedLanes() {
		aw, ok := a.awards[a.currentAward[l.ID]]
		if !ok || aw.Status != core.AwardStatusPending || now.Before(aw.AcceptanceDeadline) {
			continue
		}
		aw.Status = core.AwardStatusExpired
		aw.RespondedAt = now
		a.record(now, core.EventAwardExpired, awardEntity(aw.ID), systemActor, awardEvent(l, aw),
			"deadline", aw.AcceptanceDeadline.Format(time.RFC3339Nano))
		log.Debugf("award %s of lane %s expired", aw.ID, l.ID)
		a.cascade(now, l, aw, core.CauseExpired, "acceptance deadline passed", systemActor)
	}
}

// remindAwards sends at most one reminder per tick and award. When several
// marks are due at once only the tightest fires; all of them count as sent.
func (a *Auctioneer) remindAwards(now time.Time) {
	for _, l := range a.sortedLanes() {
		aw, ok := a.awards[a.currentAward[l.ID]]
		if !ok || aw.Status != core.AwardStatusPending {
			continue
		}
		remaining := aw.AcceptanceDeadline.Sub(now)
		if remaining <= 0 {
			continue
		}
		var due []time.Duration
		for _, m := range a.conf.ReminderMarks {
			if remaining <= m && !reminded(aw, m) {
				due = append(due, m)
			}
		}
		if len(due) == 0 {
			continue
		}
		aw.RemindersSent = append(aw.RemindersSent, due...)
		mark := due[len(due)-1]
		a.record(now, core.EventAwardReminder, awardEntity(aw.ID), systemActor, awardEvent(l, aw),
			"mark", mark.String())
		a.notify(now, core.NotifyAwardReminder, aw.VendorID, l.ID, aw.ID,
			"Reminder: your award for lane %s at %s expires %s.",
			a.laneName(l.ID), money(aw.Price), within(now, aw.AcceptanceDeadline))
	}
}

func reminded(aw *core.Award, mark time.Duration) bool {
	for _, m := range aw.RemindersSent {
		if m == mark {
			return true
		}
	}
	return false
}

func copyAward(aw *core.Award) core.Award {
	c := *aw
	if aw.Modification != nil {
		m := *aw.Modification
		c.Modification = &m
	}
	c.RemindersSent = append([]time.Duration(nil), aw.RemindersSent...)
	return c
}
