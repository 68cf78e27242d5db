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

// AuctionParams describes a new auction and its ruleset.
type AuctionParams struct {
	Name    string           `json:"name"`
	Type    core.AuctionType `json:"type"`
	Ruleset core.Ruleset     `json:"ruleset"`
}

// LaneParams describes a new lane.
type LaneParams struct {
	Name            string          `json:"name"`
	SequenceOrder   int             `json:"sequence_order"`
	BasePrice       decimal.Decimal `json:"base_price"`
	MinBidDecrement decimal.Decimal `json:"min_bid_decrement"`
	TimerDuration   time.Duration   `json:"timer_duration"`
}

// CreateAuction creates a DRAFT auction with its own immutable ruleset.
func (a *Auctioneer) CreateAuction(p AuctionParams, actor string) (au core.Auction, err error) {
	defer func() { metrics.MetricIncrCounter(context.Background(), err, a.metricAuctions) }()
	if p.Name == "" {
		return core.Auction{}, fmt.Errorf("%w: auction name is empty", core.ErrValidationFailed)
	}
	if p.Type == "" {
		p.Type = core.AuctionTypeReverse
	}
	if !p.Type.Valid() {
		return core.Auction{}, fmt.Errorf("%w: unknown auction type %q", core.ErrValidationFailed, p.Type)
	}
	rs := p.Ruleset
	if rs.MinBidDecrement.IsNegative() {
		return core.Auction{}, fmt.Errorf("%w: min bid decrement can't be negative", core.ErrValidationFailed)
	}
	if rs.TimerExtensionThreshold < 0 || rs.TimerExtension < 0 {
		return core.Auction{}, fmt.Errorf("%w: timer extension settings can't be negative", core.ErrValidationFailed)
	}
	// A late bid must never pull the end time in.
	if rs.TimerExtension > 0 && rs.TimerExtensionThreshold > rs.TimerExtension {
		return core.Auction{}, fmt.Errorf("%w: extension threshold %s exceeds the extension %s",
			core.ErrValidationFailed, rs.TimerExtensionThreshold, rs.TimerExtension)
	}
	if rs.Threshold != nil && !rs.Threshold.Valid() {
		return core.Auction{}, fmt.Errorf("%w: invalid acceptance threshold", core.ErrValidationFailed)
	}

	a.lk.Lock()
	defer a.lk.Unlock()
	now := a.clock.Now()
	id := core.AuctionID(a.mustNewID(now))
	rs.ID = core.RulesetID(id)
	if rs.Threshold != nil {
		t := *rs.Threshold
		rs.Threshold = &t
	}
	a.rulesets[rs.ID] = rs
	auction := &core.Auction{
		ID:        id,
		Name:      p.Name,
		Type:      p.Type,
		Status:    core.AuctionStatusDraft,
		RulesetID: rs.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.auctions[id] = auction
	a.record(now, core.EventAuctionCreated, auctionEntity(id), actor,
		core.LiveEvent{AuctionID: id}, "name", p.Name, "type", string(p.Type))
	log.Debugf("created auction %s (%s)", id, p.Type)
	return *auction, nil
}

// AddLane adds a PENDING lane to a DRAFT or PUBLISHED auction.
func (a *Auctioneer) AddLane(auctionID core.AuctionID, p LaneParams, actor string) (core.Lane, error) {
	if !p.BasePrice.IsPositive() {
		return core.Lane{}, fmt.Errorf("%w: base price must be positive", core.ErrValidationFailed)
	}
	if p.MinBidDecrement.IsNegative() {
		return core.Lane{}, fmt.Errorf("%w: min bid decrement can't be negative", core.ErrValidationFailed)
	}
	if p.TimerDuration <= 0 {
		return core.Lane{}, fmt.Errorf("%w: timer duration must be positive", core.ErrValidationFailed)
	}

	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Lane{}, err
	}
	if auction.Status != core.AuctionStatusDraft && auction.Status != core.AuctionStatusPublished {
		return core.Lane{}, fmt.Errorf("%w: can't add lanes to a %s auction", core.ErrInvalidState, auction.Status)
	}
	now := a.clock.Now()
	if p.SequenceOrder == 0 {
		p.SequenceOrder = len(a.auctionLanes[auctionID]) + 1
	}
	l := &core.Lane{
		ID:              core.LaneID(a.mustNewID(now)),
		AuctionID:       auctionID,
		Name:            p.Name,
		SequenceOrder:   p.SequenceOrder,
		Status:          core.LaneStatusPending,
		BasePrice:       p.BasePrice,
		MinBidDecrement: p.MinBidDecrement,
		TimerDuration:   p.TimerDuration,
	}
	a.lanes[l.ID] = l
	a.auctionLanes[auctionID] = append(a.auctionLanes[auctionID], l.ID)
	auction.UpdatedAt = now
	a.record(now, core.EventLaneAdded, laneEntity(l.ID), actor, laneEvent(l),
		"base_price", l.BasePrice.String(), "timer_duration", l.TimerDuration.String())
	return *l, nil
}

// PublishAuction moves a DRAFT auction with at least one lane to PUBLISHED.
func (a *Auctioneer) PublishAuction(auctionID core.AuctionID, actor string) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Auction{}, err
	}
	if auction.Status != core.AuctionStatusDraft {
		return core.Auction{}, fmt.Errorf("%w: auction is %s, not DRAFT", core.ErrInvalidState, auction.Status)
	}
	if len(a.auctionLanes[auctionID]) == 0 {
		return core.Auction{}, fmt.Errorf("%w: auction has no lanes", core.ErrValidationFailed)
	}
	now := a.clock.Now()
	a.setAuctionStatus(now, auction, core.AuctionStatusPublished, core.EventAuctionPublished, actor)
	return *auction, nil
}

// CancelAuction withdraws a DRAFT or PUBLISHED auction. Its lanes are closed.
func (a *Auctioneer) CancelAuction(auctionID core.AuctionID, reason, actor string) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Auction{}, err
	}
	if auction.Status != core.AuctionStatusDraft && auction.Status != core.AuctionStatusPublished {
		return core.Auction{}, fmt.Errorf("%w: can't cancel a %s auction", core.ErrInvalidState, auction.Status)
	}
	now := a.clock.Now()
	for _, id := range a.auctionLanes[auctionID] {
		l := a.lanes[id]
		l.Status = core.LaneStatusClosed
		a.record(now, core.EventLaneClosed, laneEntity(l.ID), actor, laneEvent(l), "reason", "auction cancelled")
	}
	a.setAuctionStatus(now, auction, core.AuctionStatusCancelled, core.EventAuctionCancelled, actor, "reason", reason)
	return *auction, nil
}

// PauseAuction suspends every running lane, keeping its remaining time aside.
// Pausing an auction which isn't RUNNING fails.
func (a *Auctioneer) PauseAuction(auctionID core.AuctionID, actor string) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Auction{}, err
	}
	if auction.Status != core.AuctionStatusRunning {
		return core.Auction{}, fmt.Errorf("%w: auction is %s, not RUNNING", core.ErrInvalidState, auction.Status)
	}
	now := a.clock.Now()
	var count int
	for _, id := range a.auctionLanes[auctionID] {
		l := a.lanes[id]
		if l.Status != core.LaneStatusRunning {
			continue
		}
		remaining := l.EndTime.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		a.paused[l.ID] = remaining
		l.EndTime = time.Time{}
		l.Status = core.LaneStatusPaused
		count++
		log.Debugf("paused lane %s with %s remaining", l.ID, remaining)
	}
	a.setAuctionStatus(now, auction, core.AuctionStatusPaused, core.EventAuctionPaused, actor,
		"lanes", fmt.Sprint(count))
	return *auction, nil
}

// ResumeAuction restarts every paused lane with exactly the time it had left.
func (a *Auctioneer) ResumeAuction(auctionID core.AuctionID, actor string) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Auction{}, err
	}
	if auction.Status != core.AuctionStatusPaused {
		return core.Auction{}, fmt.Errorf("%w: auction is %s, not PAUSED", core.ErrInvalidState, auction.Status)
	}
	now := a.clock.Now()
	var count int
	for _, id := range a.auctionLanes[auctionID] {
		l := a.lanes[id]
		if l.Status != core.LaneStatusPaused {
			continue
		}
		l.EndTime = now.Add(a.paused[l.ID])
		l.Status = core.LaneStatusRunning
		delete(a.paused, l.ID)
		count++
	}
	a.setAuctionStatus(now, auction, core.AuctionStatusRunning, core.EventAuctionResumed, actor,
		"lanes", fmt.Sprint(count))
	return *auction, nil
}

// ExtendAuctionLanes adds by to the end time of running lanes and to the
// remaining time of paused lanes. With no laneIDs, every live lane is extended.
func (a *Auctioneer) ExtendAuctionLanes(
	auctionID core.AuctionID,
	by time.Duration,
	laneIDs []core.LaneID,
	actor string) ([]core.Lane, error) {
	if by <= 0 {
		return nil, fmt.Errorf("%w: extension must be positive", core.ErrValidationFailed)
	}
	a.lk.Lock()
	defer a.lk.Unlock()
	if _, err := a.getAuction(auctionID); err != nil {
		return nil, err
	}
	var targets []*core.Lane
	if len(laneIDs) == 0 {
		for _, id := range a.auctionLanes[auctionID] {
			if l := a.lanes[id]; l.Status == core.LaneStatusRunning || l.Status == core.LaneStatusPaused {
				targets = append(targets, l)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: auction has no running or paused lanes", core.ErrInvalidState)
		}
	} else {
		for _, id := range laneIDs {
			l, ok := a.lanes[id]
			if !ok || l.AuctionID != auctionID {
				return nil, fmt.Errorf("lane %s of auction %s: %w", id, auctionID, core.ErrNotFound)
			}
			if l.Status != core.LaneStatusRunning && l.Status != core.LaneStatusPaused {
				return nil, fmt.Errorf("%w: lane %s is %s", core.ErrInvalidState, id, l.Status)
			}
			targets = append(targets, l)
		}
	}

	now := a.clock.Now()
	res := make([]core.Lane, 0, len(targets))
	for _, l := range targets {
		if l.Status == core.LaneStatusPaused {
			a.paused[l.ID] += by
		} else {
			l.EndTime = l.EndTime.Add(by)
		}
		l.Extensions++
		a.metricLaneExtensions.Add(context.Background(), 1)
		a.record(now, core.EventLaneExtended, laneEntity(l.ID), actor, laneEvent(l),
			"by", by.String(), "reason", "admin")
		res = append(res, *l)
	}
	return res, nil
}

// EndAuctionNow closes every open lane and completes the auction regardless of timers.
func (a *Auctioneer) EndAuctionNow(auctionID core.AuctionID, actor string) (core.Auction, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	auction, err := a.getAuction(auctionID)
	if err != nil {
		return core.Auction{}, err
	}
	if auction.Status == core.AuctionStatusCompleted || auction.Status == core.AuctionStatusCancelled {
		return core.Auction{}, fmt.Errorf("%w: auction is already %s", core.ErrInvalidState, auction.Status)
	}
	now := a.clock.Now()
	for _, id := range a.auctionLanes[auctionID] {
		if l := a.lanes[id]; l.Open() {
			a.closeLane(now, l, actor, "ended by admin")
		}
	}
	if auction.Status != core.AuctionStatusCompleted {
		a.setAuctionStatus(now, auction, core.AuctionStatusCompleted, core.EventAuctionCompleted, actor)
	}
	return *auction, nil
}

// ForceCloseLane closes an open lane regardless of its timer.
func (a *Auctioneer) ForceCloseLane(laneID core.LaneID, actor string) (core.Lane, error) {
	a.lk.Lock()
	defer a.lk.Unlock()
	l, err := a.getLane(laneID)
	if err != nil {
		return core.Lane{}, err
	}
	if !l.Open() {
		return core.Lane{}, fmt.Errorf("%w: lane is already %s", core.ErrInvalidState, l.Status)
	}
	a.closeLane(a.clock.Now(), l, actor, "force closed")
	return *l, nil
}

func (a *Auctioneer) setAuctionStatus(
	now time.Time,
	auction *core.Auction,
	status core.AuctionStatus,
	ev core.EventType,
	actor string,
	kv ...string) {
	log.Debugf("auction %s: %s -> %s", auction.ID, auction.Status, status)
	auction.Status = status
	auction.UpdatedAt = now
	a.record(now, ev, auctionEntity(auction.ID), actor, core.LiveEvent{AuctionID: auction.ID}, kv...)
}

// maybeComplete completes a started auction once none of its lanes is open.
func (a *Auctioneer) maybeComplete(now time.Time, auction *core.Auction, actor string) {
	switch auction.Status {
	case core.AuctionStatusPublished, core.AuctionStatusRunning, core.AuctionStatusPaused:
	default:
		return
	}
	for _, id := range a.auctionLanes[auction.ID] {
		if a.lanes[id].Open() {
			return
		}
	}
	a.setAuctionStatus(now, auction, core.AuctionStatusCompleted, core.EventAuctionCompleted, actor)
}

// thresholdFor returns the acceptance threshold of an auction's lanes.
// A ruleset threshold wins over the one derived from the auction type.
func (a *Auctioneer) thresholdFor(auction *core.Auction) core.ThresholdSpec {
	if rs, ok := a.rulesets[auction.RulesetID]; ok && rs.Threshold != nil {
		return *rs.Threshold
	}
	if auction.Type == core.AuctionTypeSpot {
		return core.ThresholdSpec{Type: core.ThresholdAbsolute, Value: a.conf.AbsoluteThreshold}
	}
	return core.ThresholdSpec{Type: core.ThresholdPercentage, Value: a.conf.PercentageThreshold}
}

func (a *Auctioneer) getAuction(id core.AuctionID) (*core.Auction, error) {
	auction, ok := a.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, core.ErrNotFound)
	}
	return auction, nil
}

func (a *Auctioneer) getLane(id core.LaneID) (*core.Lane, error) {
	l, ok := a.lanes[id]
	if !ok {
		return nil, fmt.Errorf("lane %s: %w", id, core.ErrNotFound)
	}
	return l, nil
}

// sortedLanes returns lanes ordered by id so scheduler passes are deterministic.
func (a *Auctioneer) sortedLanes() []*core.Lane {
	list := make([]*core.Lane, 0, len(a.lanes))
	for _, l := range a.lanes {
		list = append(list, l)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
