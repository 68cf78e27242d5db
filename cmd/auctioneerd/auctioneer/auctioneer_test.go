package auctioneer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/audit"
	"github.com/textileio/lane-core/cmd/auctioneerd/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/eligibility"
	"github.com/textileio/lane-core/logging"
	"github.com/textileio/lane-core/msgbroker"
	"github.com/textileio/lane-core/msgbroker/fakemsgbroker"
)

const operator = "ops@example.com"

func init() {
	if err := logging.SetLogLevels(map[string]golog.LogLevel{
		"auctioneer":       golog.LevelDebug,
		"auctioneer/queue": golog.LevelDebug,
	}); err != nil {
		panic(err)
	}
}

type env struct {
	a     *auctioneer.Auctioneer
	clk   *clock.Mock
	dir   *eligibility.Directory
	audit *audit.Log
}

func newEnv(t *testing.T, mb msgbroker.MsgBroker, vendors ...core.VendorID) env {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	dir := eligibility.NewDirectory(eligibility.DefaultConfig)
	for _, v := range vendors {
		require.NoError(t, dir.RegisterVendor(eligibility.Vendor{ID: v, Name: string(v), PerformanceScore: 90}))
	}
	log := audit.New(dssync.MutexWrap(ds.NewMapDatastore()))
	a, err := auctioneer.New(auctioneer.DefaultConfig(), clk, dir, log, mb)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return env{a: a, clk: clk, dir: dir, audit: log}
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// runningLane creates, publishes and starts an auction with a single lane.
func (e env) runningLane(t *testing.T, rs core.Ruleset, base, decrement int64, timer time.Duration) core.Lane {
	au, err := e.a.CreateAuction(auctioneer.AuctionParams{Name: "north", Ruleset: rs}, operator)
	require.NoError(t, err)
	l, err := e.a.AddLane(au.ID, auctioneer.LaneParams{
		Name:            "DEL-BOM",
		BasePrice:       d(base),
		MinBidDecrement: d(decrement),
		TimerDuration:   timer,
	}, operator)
	require.NoError(t, err)
	_, err = e.a.PublishAuction(au.ID, operator)
	require.NoError(t, err)
	l, err = e.a.StartLane(l.ID, operator)
	require.NoError(t, err)
	return l
}

// vb is a vendor bid.
type vb struct {
	v core.VendorID
	a int64
}

// closedLane runs a lane with the given bids, in order, until its timer expires.
func (e env) closedLane(t *testing.T, rs core.Ruleset, bids ...vb) core.Lane {
	l := e.runningLane(t, rs, 60000, 500, 5*time.Minute)
	for _, b := range bids {
		_, err := e.a.PlaceBid(l.ID, b.v, d(b.a))
		require.NoError(t, err)
	}
	e.clk.Add(5 * time.Minute)
	e.a.Tick(e.clk.Now())
	l, err := e.a.GetLane(l.ID)
	require.NoError(t, err)
	return l
}

func currentAward(t *testing.T, a *auctioneer.Auctioneer, laneID core.LaneID) core.Award {
	chain, err := a.GetAwardChain(laneID)
	require.NoError(t, err)
	require.NotEmpty(t, chain)
	return chain[len(chain)-1]
}

func liveAwards(t *testing.T, a *auctioneer.Auctioneer, laneID core.LaneID) int {
	chain, err := a.GetAwardChain(laneID)
	require.NoError(t, err)
	var n int
	for _, aw := range chain {
		if aw.Live() {
			n++
		}
	}
	return n
}

func TestLifecycleGuards(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	_, err := e.a.CreateAuction(auctioneer.AuctionParams{}, operator)
	require.ErrorIs(t, err, core.ErrValidationFailed)

	au, err := e.a.CreateAuction(auctioneer.AuctionParams{Name: "empty"}, operator)
	require.NoError(t, err)
	require.Equal(t, core.AuctionStatusDraft, au.Status)
	require.Equal(t, core.AuctionTypeReverse, au.Type)

	_, err = e.a.PublishAuction(au.ID, operator)
	require.ErrorIs(t, err, core.ErrValidationFailed)

	l, err := e.a.AddLane(au.ID, auctioneer.LaneParams{BasePrice: d(1000), TimerDuration: time.Minute}, operator)
	require.NoError(t, err)
	_, err = e.a.StartLane(l.ID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	_, err = e.a.PublishAuction(au.ID, operator)
	require.NoError(t, err)
	_, err = e.a.PublishAuction(au.ID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	l, err = e.a.StartLane(l.ID, operator)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusRunning, l.Status)
	require.Equal(t, e.clk.Now().Add(time.Minute), l.EndTime)
	_, err = e.a.StartLane(l.ID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	au, err = e.a.GetAuction(au.ID)
	require.NoError(t, err)
	require.Equal(t, core.AuctionStatusRunning, au.Status)

	_, err = e.a.CancelAuction(au.ID, "too late", operator)
	require.ErrorIs(t, err, core.ErrInvalidState)
	_, err = e.a.GetAuction("missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSniperProtection(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2")
	rs := core.Ruleset{TimerExtensionThreshold: 15 * time.Second, TimerExtension: 90 * time.Second}
	l := e.runningLane(t, rs, 100000, 1000, 300*time.Second)
	t0 := e.clk.Now()

	_, err := e.a.PlaceBid(l.ID, "v1", d(99000))
	require.NoError(t, err)
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, t0.Add(300*time.Second), l.EndTime)

	e.clk.Add(time.Second)
	_, err = e.a.PlaceBid(l.ID, "v2", d(99500))
	require.ErrorIs(t, err, core.ErrValidationFailed)
	require.ErrorIs(t, err, core.ErrBidTooHigh)
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.True(t, l.CurrentLowestBid.Decimal.Equal(d(99000)))
	bids, err := e.a.GetBidsByLane(l.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)

	e.clk.Set(t0.Add(290 * time.Second))
	_, err = e.a.PlaceBid(l.ID, "v2", d(98000))
	require.NoError(t, err)
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, t0.Add(380*time.Second), l.EndTime)
	require.Equal(t, 1, l.Extensions)

	// Late bids keep re-extending.
	e.clk.Set(t0.Add(370 * time.Second))
	_, err = e.a.PlaceBid(l.ID, "v1", d(97000))
	require.NoError(t, err)
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, t0.Add(460*time.Second), l.EndTime)
	require.Equal(t, 2, l.Extensions)

	e.clk.Set(t0.Add(461 * time.Second))
	_, err = e.a.PlaceBid(l.ID, "v2", d(90000))
	require.ErrorIs(t, err, core.ErrExpired)
}

func TestBidMonotonicityUnderConcurrency(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	l := e.runningLane(t, core.Ruleset{}, 100000, 1000, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vendor := core.VendorID("v" + string(rune('a'+i%26)))
			_, _ = e.a.PlaceBid(l.ID, vendor, d(int64(99000-(i%17)*700)))
		}(i)
	}
	wg.Wait()

	bids, err := e.a.GetBidsByLane(l.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i].Amount.Sub(bids[i-1].Amount).GreaterThanOrEqual(d(1000)),
			"%s and %s are closer than the decrement", bids[i-1].Amount, bids[i].Amount)
	}
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.True(t, l.CurrentLowestBid.Decimal.Equal(bids[0].Amount))
}

func TestPauseResumeConservesTime(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	l := e.runningLane(t, core.Ruleset{}, 100000, 1000, 300*time.Second)

	e.clk.Add(100 * time.Second)
	au, err := e.a.PauseAuction(l.AuctionID, operator)
	require.NoError(t, err)
	require.Equal(t, core.AuctionStatusPaused, au.Status)
	_, err = e.a.PauseAuction(l.AuctionID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusPaused, l.Status)
	require.True(t, l.EndTime.IsZero())
	_, err = e.a.PlaceBid(l.ID, "v1", d(99000))
	require.ErrorIs(t, err, core.ErrInvalidState)

	e.clk.Add(3 * time.Hour)
	e.a.Tick(e.clk.Now())
	_, err = e.a.ExtendAuctionLanes(l.AuctionID, 30*time.Second, nil, operator)
	require.NoError(t, err)

	_, err = e.a.ResumeAuction(l.AuctionID, operator)
	require.NoError(t, err)
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusRunning, l.Status)
	require.Equal(t, 230*time.Second, l.EndTime.Sub(e.clk.Now()))
	_, err = e.a.ResumeAuction(l.AuctionID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestTickClosesLaneAndCompletesAuction(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	l := e.runningLane(t, core.Ruleset{}, 100000, 1000, time.Minute)

	e.clk.Add(59 * time.Second)
	e.a.Tick(e.clk.Now())
	l, err := e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusRunning, l.Status)

	e.clk.Add(time.Second)
	e.a.Tick(e.clk.Now())
	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusClosed, l.Status)
	require.True(t, l.EndTime.IsZero())
	au, err := e.a.GetAuction(l.AuctionID)
	require.NoError(t, err)
	require.Equal(t, core.AuctionStatusCompleted, au.Status)

	_, err = e.a.GetAlternateQueueForLane(l.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCascadeEndsInFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2", "v3")
	l := e.closedLane(t, core.Ruleset{}, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})
	require.Equal(t, core.LaneStatusAwarded, l.Status)

	q, err := e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.True(t, q.Threshold.CalculatedMaxBid.Equal(d(52500)))
	require.Equal(t, core.EntryStatusAwarded, q.Entries[0].Status)
	require.Equal(t, core.EntryStatusStandby, q.Entries[1].Status)
	require.True(t, q.Entries[1].EligibleForAutoAward)
	require.Equal(t, core.EntryStatusOutOfThreshold, q.Entries[2].Status)
	require.False(t, q.Entries[2].EligibleForAutoAward)

	first := currentAward(t, e.a, l.ID)
	require.Equal(t, core.VendorID("v1"), first.VendorID)
	require.Equal(t, 1, first.Rank)
	require.Equal(t, e.clk.Now().Add(24*time.Hour), first.AcceptanceDeadline)

	_, err = e.a.UpdateAwardAcceptance(first.ID, core.ActionDecline, core.AcceptancePayload{Reason: "no trucks"}, "v1")
	require.NoError(t, err)
	v1, err := e.dir.GetVendor("v1")
	require.NoError(t, err)
	require.Equal(t, 90, v1.ReliabilityScore)

	second := currentAward(t, e.a, l.ID)
	require.Equal(t, core.VendorID("v2"), second.VendorID)
	require.True(t, second.Price.Equal(d(51000)))
	require.Equal(t, first.ID, second.ReawardedFrom)
	q, err = e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusReassigned, q.Status)
	require.Equal(t, core.EntryStatusDeclined, q.Entries[0].Status)
	require.Equal(t, core.EntryStatusAwarded, q.Entries[1].Status)

	e.clk.Add(24 * time.Hour)
	e.a.Tick(e.clk.Now())

	q, err = e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusFailed, q.Status)
	require.NotEmpty(t, q.FailureReason)
	require.Equal(t, core.EntryStatusExpired, q.Entries[1].Status)
	require.Len(t, q.DeclineHistory, 2)
	require.Equal(t, core.CauseDeclined, q.DeclineHistory[0].Cause)
	require.Equal(t, core.CauseExpired, q.DeclineHistory[1].Cause)

	chain, err := e.a.GetAwardChain(l.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, core.AwardStatusDeclined, chain[0].Status)
	require.Equal(t, core.AwardStatusExpired, chain[1].Status)
	require.Equal(t, chain[1].ID, chain[0].ReawardedTo)

	l, err = e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.LaneStatusClosed, l.Status)

	m, err := e.a.GetAlternateQueueMetrics(l.ID)
	require.NoError(t, err)
	require.Equal(t, 3, m.TotalEntries)
	require.Equal(t, 1, m.Declined)
	require.Equal(t, 1, m.Expired)
	require.Equal(t, 1, m.OutOfThreshold)
	require.Equal(t, 2, m.Reassignments)

	var kinds []core.NotificationKind
	for _, n := range e.a.ListNotifications("v1") {
		kinds = append(kinds, n.Kind)
	}
	require.Equal(t, []core.NotificationKind{core.NotifyAwardIssued, core.NotifyDeclineProcessed}, kinds)
}

func TestCascadeSkipsVendorFailingGate(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2", "v3")
	rs := core.Ruleset{Threshold: &core.ThresholdSpec{Type: core.ThresholdAbsolute, Value: d(10000)}}
	l := e.closedLane(t, rs, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})

	require.NoError(t, e.dir.OpenDispute(eligibility.Dispute{ID: "d1", VendorID: "v2"}))
	first := currentAward(t, e.a, l.ID)
	_, err := e.a.UpdateAwardAcceptance(first.ID, core.ActionDecline, core.AcceptancePayload{}, "v1")
	require.NoError(t, err)

	aw := currentAward(t, e.a, l.ID)
	require.Equal(t, core.VendorID("v3"), aw.VendorID)
	q, err := e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.EntryStatusSkipped, q.Entries[1].Status)
	require.Contains(t, q.Entries[1].SkipReason, "open dispute")
	require.Equal(t, core.EntryStatusAwarded, q.Entries[2].Status)
}

func TestCascadeTermination(t *testing.T) {
	t.Parallel()
	vendors := []core.VendorID{"v1", "v2", "v3", "v4", "v5", "v6"}
	e := newEnv(t, nil, vendors...)
	rs := core.Ruleset{Threshold: &core.ThresholdSpec{Type: core.ThresholdPercentage, Value: decimal.RequireFromString("0.5")}}
	var bids []vb
	for i := range vendors {
		bids = append(bids, vb{vendors[len(vendors)-1-i], int64(59000 - i*1000)})
	}
	l := e.closedLane(t, rs, bids...)

	steps := 0
	for ; steps <= len(vendors); steps++ {
		q, err := e.a.GetAlternateQueueForLane(l.ID)
		require.NoError(t, err)
		if q.Status == core.QueueStatusFailed {
			break
		}
		require.Equal(t, 1, liveAwards(t, e.a, l.ID))
		aw := currentAward(t, e.a, l.ID)
		_, err = e.a.UpdateAwardAcceptance(aw.ID, core.ActionDecline, core.AcceptancePayload{}, string(aw.VendorID))
		require.NoError(t, err)
	}
	require.Equal(t, len(vendors), steps)
	require.Equal(t, 0, liveAwards(t, e.a, l.ID))
}

func TestNoDoubleAward(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2", "v3")
	l := e.closedLane(t, core.Ruleset{}, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})
	first := currentAward(t, e.a, l.ID)

	_, err := e.a.AwardLane(l.ID, "v2", d(51500), 0, "", operator)
	require.NoError(t, err)
	require.Equal(t, 1, liveAwards(t, e.a, l.ID))

	prior, err := e.a.GetAward(first.ID)
	require.NoError(t, err)
	require.Equal(t, core.AwardStatusReawarded, prior.Status)
	second := currentAward(t, e.a, l.ID)
	require.Equal(t, 2, second.Rank)
	require.Equal(t, second.ID, prior.ReawardedTo)

	q, err := e.a.ManualQueueAction(l.ID, core.QueueActionAwardVendor, core.QueueActionParams{VendorID: "v3"}, operator)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusReassigned, q.Status)
	require.Equal(t, 1, liveAwards(t, e.a, l.ID))

	third := currentAward(t, e.a, l.ID)
	_, err = e.a.UpdateAwardAcceptance(third.ID, core.ActionAccept, core.AcceptancePayload{}, "v3")
	require.NoError(t, err)
	_, err = e.a.UpdateAwardAcceptance(third.ID, core.ActionAccept, core.AcceptancePayload{}, "v3")
	require.ErrorIs(t, err, core.ErrInvalidState)
	_, err = e.a.AwardLane(l.ID, "v1", d(50000), 0, "", operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	q, err = e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusCompleted, q.Status)
	_, err = e.a.ManualQueueAction(l.ID, core.QueueActionSkipToNext, core.QueueActionParams{}, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestRequestModification(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2")
	l := e.closedLane(t, core.Ruleset{}, vb{"v2", 51000}, vb{"v1", 50000})
	aw := currentAward(t, e.a, l.ID)

	_, err := e.a.UpdateAwardAcceptance(aw.ID, core.ActionRequestModification, core.AcceptancePayload{
		Modification: &core.ModificationRequest{Category: "rate", ProposedChanges: "52000"},
	}, "v1")
	require.ErrorIs(t, err, core.ErrValidationFailed)
	require.ErrorIs(t, err, core.ErrIncompleteRequest)
	got, err := e.a.GetAward(aw.ID)
	require.NoError(t, err)
	require.Equal(t, core.AwardStatusPending, got.Status)

	got, err = e.a.UpdateAwardAcceptance(aw.ID, core.ActionRequestModification, core.AcceptancePayload{
		Modification: &core.ModificationRequest{Category: "rate", Justification: "fuel", ProposedChanges: "52000"},
	}, "v1")
	require.NoError(t, err)
	require.Equal(t, core.AwardStatusModificationRequested, got.Status)
	q, err := e.a.GetAlternateQueueForLane(l.ID)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusActive, q.Status)
	require.Equal(t, 1, liveAwards(t, e.a, l.ID))
}

func TestAwardReminders(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2")
	l := e.closedLane(t, core.Ruleset{}, vb{"v2", 51000}, vb{"v1", 50000})
	aw := currentAward(t, e.a, l.ID)

	reminders := func() int {
		var n int
		for _, x := range e.a.ListNotifications("v1") {
			if x.Kind == core.NotifyAwardReminder {
				n++
			}
		}
		return n
	}

	e.clk.Add(11 * time.Hour)
	e.a.Tick(e.clk.Now())
	require.Equal(t, 0, reminders())

	e.clk.Add(time.Hour)
	e.a.Tick(e.clk.Now())
	e.a.Tick(e.clk.Now())
	require.Equal(t, 1, reminders())

	// Both remaining marks are due at once, only one reminder goes out.
	e.clk.Set(aw.AcceptanceDeadline.Add(-10 * time.Minute))
	e.a.Tick(e.clk.Now())
	require.Equal(t, 2, reminders())
	got, err := e.a.GetAward(aw.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []time.Duration{12 * time.Hour, 2 * time.Hour, 30 * time.Minute}, got.RemindersSent)

	e.clk.Set(aw.AcceptanceDeadline)
	_, err = e.a.UpdateAwardAcceptance(aw.ID, core.ActionAccept, core.AcceptancePayload{}, "v1")
	require.ErrorIs(t, err, core.ErrExpired)
}

func TestManualQueueActions(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2", "v3", "v4")
	rs := core.Ruleset{Threshold: &core.ThresholdSpec{Type: core.ThresholdAbsolute, Value: d(2000)}}
	l := e.closedLane(t, rs, vb{"v4", 56000}, vb{"v3", 51500}, vb{"v2", 51000}, vb{"v1", 50000})

	_, err := e.a.ManualQueueAction(l.ID, core.QueueActionRemoveVendor, core.QueueActionParams{VendorID: "v4"}, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	q, err := e.a.ManualQueueAction(l.ID, core.QueueActionRemoveVendor, core.QueueActionParams{VendorID: "v2"}, operator)
	require.NoError(t, err)
	require.Equal(t, core.EntryStatusSkipped, q.Entries[1].Status)
	require.True(t, q.Entries[1].Removed)

	q, err = e.a.ManualQueueAction(l.ID, core.QueueActionAdjustThreshold, core.QueueActionParams{
		Threshold: &core.ThresholdSpec{Type: core.ThresholdAbsolute, Value: d(6000)},
	}, operator)
	require.NoError(t, err)
	require.True(t, q.Threshold.CalculatedMaxBid.Equal(d(56000)))
	require.Equal(t, core.EntryStatusAwarded, q.Entries[0].Status)
	require.Equal(t, core.EntryStatusSkipped, q.Entries[1].Status)
	require.False(t, q.Entries[1].EligibleForAutoAward)
	require.Equal(t, core.EntryStatusStandby, q.Entries[3].Status)
	require.True(t, q.Entries[3].EligibleForAutoAward)

	_, err = e.a.ManualQueueAction(l.ID, core.QueueActionAdjustThreshold, core.QueueActionParams{}, operator)
	require.ErrorIs(t, err, core.ErrValidationFailed)

	q, err = e.a.ManualQueueAction(l.ID, core.QueueActionSkipToNext, core.QueueActionParams{Reason: "ops"}, operator)
	require.NoError(t, err)
	require.Equal(t, core.EntryStatusDeclined, q.Entries[0].Status)
	require.Equal(t, core.EntryStatusAwarded, q.Entries[2].Status)
	v1, err := e.dir.GetVendor("v1")
	require.NoError(t, err)
	require.Equal(t, 100, v1.ReliabilityScore)

	require.NoError(t, e.dir.SetBlocked("v1", true))
	_, err = e.a.ManualQueueAction(l.ID, core.QueueActionAwardVendor, core.QueueActionParams{VendorID: "v1"}, operator)
	require.ErrorIs(t, err, core.ErrIneligibleVendor)

	q, err = e.a.ManualQueueAction(l.ID, core.QueueActionMarkFailed, core.QueueActionParams{}, operator)
	require.NoError(t, err)
	require.Equal(t, core.QueueStatusFailed, q.Status)
	require.Equal(t, 0, liveAwards(t, e.a, l.ID))
	_, err = e.a.ManualQueueAction(l.ID, core.QueueActionMarkFailed, core.QueueActionParams{}, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestResolveFailedAward(t *testing.T) {
	t.Parallel()
	failed := func(t *testing.T) (env, core.Lane) {
		e := newEnv(t, nil, "v1", "v2", "v3")
		l := e.closedLane(t, core.Ruleset{}, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})
		_, err := e.a.ManualQueueAction(l.ID, core.QueueActionMarkFailed, core.QueueActionParams{}, operator)
		require.NoError(t, err)
		return e, l
	}

	t.Run("context", func(t *testing.T) {
		e, l := failed(t)
		fc, err := e.a.GetFailedAwardContext(l.ID)
		require.NoError(t, err)
		require.Equal(t, core.VendorID("v1"), fc.OriginalWinner.VendorID)
		require.Len(t, fc.OutsideThreshold, 1)
		require.Equal(t, core.VendorID("v3"), fc.OutsideThreshold[0].VendorID)
		require.Equal(t, []core.ResolutionAction{
			core.ResolveAwardOutsideThreshold,
			core.ResolveRenegotiateOriginal,
			core.ResolveReauction,
			core.ResolveCancelLane,
		}, fc.Actions)
	})

	t.Run("award outside threshold", func(t *testing.T) {
		e, l := failed(t)
		r, err := e.a.ResolveFailedAward(l.ID, core.Resolution{Action: core.ResolveAwardOutsideThreshold, VendorID: "v3"}, operator)
		require.NoError(t, err)
		require.Equal(t, core.VendorID("v3"), r.Award.VendorID)
		require.True(t, r.Award.Price.Equal(d(55000)))
		require.Equal(t, core.QueueStatusReassigned, r.Queue.Status)
		require.Equal(t, core.LaneStatusAwarded, r.Lane.Status)
		_, err = e.a.ResolveFailedAward(l.ID, core.Resolution{Action: core.ResolveCancelLane}, operator)
		require.ErrorIs(t, err, core.ErrInvalidState)
	})

	t.Run("renegotiate original", func(t *testing.T) {
		e, l := failed(t)
		r, err := e.a.ResolveFailedAward(l.ID, core.Resolution{
			Action: core.ResolveRenegotiateOriginal,
			Price:  decimal.NewNullDecimal(d(50500)),
		}, operator)
		require.NoError(t, err)
		require.Equal(t, core.VendorID("v1"), r.Award.VendorID)
		require.True(t, r.Award.Price.Equal(d(50500)))
	})

	t.Run("reauction", func(t *testing.T) {
		e, l := failed(t)
		r, err := e.a.ResolveFailedAward(l.ID, core.Resolution{Action: core.ResolveReauction}, operator)
		require.NoError(t, err)
		require.Equal(t, core.LaneStatusRunning, r.Lane.Status)
		require.Equal(t, 1, r.Lane.Reauctions)
		require.False(t, r.Lane.CurrentLowestBid.Valid)
		require.Equal(t, e.clk.Now().Add(15*time.Minute), r.Lane.EndTime)
		bids, err := e.a.GetBidsByLane(l.ID)
		require.NoError(t, err)
		require.Empty(t, bids)
		_, err = e.a.GetAlternateQueueForLane(l.ID)
		require.ErrorIs(t, err, core.ErrNotFound)
		au, err := e.a.GetAuction(l.AuctionID)
		require.NoError(t, err)
		require.Equal(t, core.AuctionStatusRunning, au.Status)

		_, err = e.a.PlaceBid(l.ID, "v2", d(49000))
		require.NoError(t, err)
		e.clk.Add(15 * time.Minute)
		e.a.Tick(e.clk.Now())
		aw := currentAward(t, e.a, l.ID)
		require.Equal(t, core.VendorID("v2"), aw.VendorID)
	})

	t.Run("reauction forgets previous round declines", func(t *testing.T) {
		e := newEnv(t, nil, "v1", "v2", "v3")
		l := e.closedLane(t, core.Ruleset{}, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})
		for _, v := range []string{"v1", "v2"} {
			aw := currentAward(t, e.a, l.ID)
			require.Equal(t, core.VendorID(v), aw.VendorID)
			_, err := e.a.UpdateAwardAcceptance(aw.ID, core.ActionDecline, core.AcceptancePayload{}, v)
			require.NoError(t, err)
		}
		q, err := e.a.GetAlternateQueueForLane(l.ID)
		require.NoError(t, err)
		require.Equal(t, core.QueueStatusFailed, q.Status)

		_, err = e.a.ResolveFailedAward(l.ID, core.Resolution{Action: core.ResolveReauction}, operator)
		require.NoError(t, err)
		_, err = e.a.PlaceBid(l.ID, "v1", d(49000))
		require.NoError(t, err)
		e.clk.Add(15 * time.Minute)
		e.a.Tick(e.clk.Now())

		aw := currentAward(t, e.a, l.ID)
		require.Equal(t, core.VendorID("v1"), aw.VendorID)
		require.Equal(t, core.AwardStatusPending, aw.Status)
		require.True(t, aw.Price.Equal(d(49000)))
		require.Empty(t, aw.ReawardedFrom)
		chain, err := e.a.GetAwardChain(l.ID)
		require.NoError(t, err)
		require.Len(t, chain, 3)

		q, err = e.a.GetAlternateQueueForLane(l.ID)
		require.NoError(t, err)
		require.Equal(t, core.QueueStatusActive, q.Status)
		require.Equal(t, core.EntryStatusAwarded, q.Entries[0].Status)
	})

	t.Run("cancel lane", func(t *testing.T) {
		e, l := failed(t)
		r, err := e.a.ResolveFailedAward(l.ID, core.Resolution{Action: core.ResolveCancelLane}, operator)
		require.NoError(t, err)
		require.Equal(t, core.LaneStatusClosed, r.Lane.Status)
		require.Equal(t, core.QueueStatusCompleted, r.Queue.Status)
	})
}

func TestPlacementBreachOpensSpotAuction(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2", "v3")
	l := e.closedLane(t, core.Ruleset{}, vb{"v3", 55000}, vb{"v2", 51000}, vb{"v1", 50000})
	aw := currentAward(t, e.a, l.ID)

	_, err := e.a.CreatePlacementSLA("indent-1", aw.ID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)
	_, err = e.a.UpdateAwardAcceptance(aw.ID, core.ActionAccept, core.AcceptancePayload{}, "v1")
	require.NoError(t, err)
	pt, err := e.a.CreatePlacementSLA("indent-1", aw.ID, operator)
	require.NoError(t, err)
	require.Equal(t, e.clk.Now().Add(4*time.Hour), pt.SLAEndTime)
	_, err = e.a.CreatePlacementSLA("indent-1", aw.ID, operator)
	require.ErrorIs(t, err, core.ErrInvalidState)

	e.clk.Add(4*time.Hour + time.Second)
	e.a.Tick(e.clk.Now())
	pt, err = e.a.GetPlacement(pt.ID)
	require.NoError(t, err)
	require.Equal(t, core.PlacementStatusFailed, pt.Status)
	require.NotEmpty(t, pt.SpotAuctionID)
	_, err = e.a.ConfirmVehiclePlacement(pt.ID, "v1")
	require.ErrorIs(t, err, core.ErrInvalidState)

	sa, err := e.a.GetSpotAuction(pt.SpotAuctionID)
	require.NoError(t, err)
	require.Equal(t, core.SpotAuctionStatusOpen, sa.Status)
	require.True(t, sa.CeilingPrice.Equal(d(50000)))
	require.Equal(t, e.clk.Now().Add(5*time.Minute), sa.EndTime)

	_, err = e.a.PlaceSpotBid(sa.ID, "v1", d(40000))
	require.ErrorIs(t, err, core.ErrIneligibleVendor)
	_, err = e.a.PlaceSpotBid(sa.ID, "v2", d(50001))
	require.ErrorIs(t, err, core.ErrBidTooHigh)
	_, err = e.a.PlaceSpotBid(sa.ID, "v2", d(49000))
	require.NoError(t, err)
	_, err = e.a.PlaceSpotBid(sa.ID, "v3", d(49000))
	require.ErrorIs(t, err, core.ErrBidTooHigh)
	win, err := e.a.PlaceSpotBid(sa.ID, "v3", d(48500))
	require.NoError(t, err)

	e.clk.Add(5 * time.Minute)
	e.a.Tick(e.clk.Now())
	sa, err = e.a.GetSpotAuction(sa.ID)
	require.NoError(t, err)
	require.Equal(t, core.SpotAuctionStatusClosed, sa.Status)
	require.Equal(t, win.ID, sa.WinnerBidID)

	next, err := e.a.GetPlacement(sa.WinnerTracker)
	require.NoError(t, err)
	require.Equal(t, core.VendorID("v3"), next.VendorID)
	require.Equal(t, sa.ID, next.FromSpotAuctionID)
	require.Equal(t, e.clk.Now().Add(time.Hour), next.SLAEndTime)
	next, err = e.a.ConfirmVehiclePlacement(next.ID, "v3")
	require.NoError(t, err)
	require.Equal(t, core.PlacementStatusPlaced, next.Status)
}

func TestSpotAuctionWithoutBids(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2")
	l := e.closedLane(t, core.Ruleset{}, vb{"v2", 51000}, vb{"v1", 50000})
	aw := currentAward(t, e.a, l.ID)
	_, err := e.a.UpdateAwardAcceptance(aw.ID, core.ActionAccept, core.AcceptancePayload{}, "v1")
	require.NoError(t, err)
	pt, err := e.a.CreatePlacementSLA("indent-2", aw.ID, operator)
	require.NoError(t, err)

	sa, err := e.a.TriggerSpotAuction(pt.ID, "truck broke down", operator)
	require.NoError(t, err)
	e.clk.Add(5 * time.Minute)
	e.a.Tick(e.clk.Now())
	sa, err = e.a.GetSpotAuction(sa.ID)
	require.NoError(t, err)
	require.Equal(t, core.SpotAuctionStatusNoWinner, sa.Status)
	require.Empty(t, sa.WinnerTracker)
}

func TestVendorQueueStatusHidesRank(t *testing.T) {
	t.Parallel()
	for _, visible := range []bool{false, true} {
		e := newEnv(t, nil, "v1", "v2")
		l := e.closedLane(t, core.Ruleset{AllowRankVisibility: visible}, vb{"v2", 51000}, vb{"v1", 50000})
		list := e.a.GetVendorQueueStatus("v2")
		require.Len(t, list, 1)
		require.Equal(t, l.ID, list[0].LaneID)
		require.Equal(t, core.EntryStatusStandby, list[0].Status)
		if visible {
			require.Equal(t, 2, list[0].Rank)
		} else {
			require.Zero(t, list[0].Rank)
		}
	}
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1")
	l := e.runningLane(t, core.Ruleset{}, 100000, 1000, time.Minute)
	_, err := e.a.PlaceBid(l.ID, "v1", d(99000))
	require.NoError(t, err)

	entries, err := e.a.AuditLog(context.Background(), audit.Query{EntityType: "lane", EntityID: string(l.ID)})
	require.NoError(t, err)
	var types []string
	for _, en := range entries {
		types = append(types, en.EventType)
	}
	require.Equal(t, []string{
		string(core.EventLaneAdded),
		string(core.EventLaneStarted),
		string(core.EventBidPlaced),
	}, types)
	require.Equal(t, "v1", entries[2].TriggeredBy)
	require.Equal(t, "99000", entries[2].Payload["amount"])
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	events, unsubscribe := e.a.Subscribe(16)

	au, err := e.a.CreateAuction(auctioneer.AuctionParams{Name: "live"}, operator)
	require.NoError(t, err)
	select {
	case ev := <-events:
		require.Equal(t, core.EventAuctionCreated, ev.Type)
		require.Equal(t, au.ID, ev.AuctionID)
		require.NotEmpty(t, ev.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no live event received")
	}

	unsubscribe()
	unsubscribe()
	_, ok := <-events
	require.False(t, ok)
}

func TestPublishesToMsgBroker(t *testing.T) {
	t.Parallel()
	mb := fakemsgbroker.New()
	e := newEnv(t, mb, "v1", "v2")
	e.closedLane(t, core.Ruleset{}, vb{"v2", 51000}, vb{"v1", 50000})

	require.Eventually(t, func() bool {
		return mb.TotalPublishedTopic(msgbroker.VendorNotificationsTopic) >= 1 &&
			mb.TotalPublishedTopic(msgbroker.LiveEventsTopic) >= 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestZeroDecrementNeedsStrictImprovement(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil, "v1", "v2")
	l := e.runningLane(t, core.Ruleset{}, 100000, 0, 5*time.Minute)

	_, err := e.a.PlaceBid(l.ID, "v1", d(100000))
	require.ErrorIs(t, err, core.ErrBidTooHigh)
	_, err = e.a.PlaceBid(l.ID, "v1", d(99000))
	require.NoError(t, err)
	_, err = e.a.PlaceBid(l.ID, "v2", d(99000))
	require.ErrorIs(t, err, core.ErrBidTooHigh)
	require.ErrorIs(t, err, core.ErrValidationFailed)
	_, err = e.a.PlaceBid(l.ID, "v2", d(98999))
	require.NoError(t, err)

	bids, err := e.a.GetBidsByLane(l.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	got, err := e.a.GetLane(l.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentLowestBid.Decimal.Equal(d(98999)))
}

func TestRulesetExtensionThreshold(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	_, err := e.a.CreateAuction(auctioneer.AuctionParams{
		Name:    "late",
		Ruleset: core.Ruleset{TimerExtensionThreshold: 2 * time.Minute, TimerExtension: time.Minute},
	}, operator)
	require.ErrorIs(t, err, core.ErrValidationFailed)

	_, err = e.a.CreateAuction(auctioneer.AuctionParams{
		Name:    "equal",
		Ruleset: core.Ruleset{TimerExtensionThreshold: time.Minute, TimerExtension: time.Minute},
	}, operator)
	require.NoError(t, err)
}
