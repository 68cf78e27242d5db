// Package queue holds the ranking and threshold rules of lane alternate queues.
// Everything here is a pure function of its arguments; the auctioneer owns the state.
package queue

import (
	"time"

	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	"github.com/textileio/lane-core/auctioneer"
)

var (
	log = golog.Logger("auctioneer/queue")

	hundred = decimal.NewFromInt(100)
)

// EligibilityFunc runs the vendor eligibility gate.
type EligibilityFunc func(vendor auctioneer.VendorID) (ok bool, reason string)

// Rank returns the best bid of each vendor, ordered best first.
// Ties on amount go to the vendor who bid first.
func Rank(bids []auctioneer.Bid) []auctioneer.Bid {
	it := BidsSorter(bids).Iterate(BestFirst())
	seen := make(map[auctioneer.VendorID]struct{})
	var ranked []auctioneer.Bid
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		if _, ok := seen[b.VendorID]; ok {
			continue
		}
		seen[b.VendorID] = struct{}{}
		ranked = append(ranked, b)
	}
	return ranked
}

// ResolveThreshold computes the maximum bid allowed by spec over winner.
func ResolveThreshold(spec auctioneer.ThresholdSpec, winner decimal.Decimal) auctioneer.Threshold {
	t := auctioneer.Threshold{ThresholdSpec: spec}
	switch spec.Type {
	case auctioneer.ThresholdAbsolute:
		t.CalculatedMaxBid = winner.Add(spec.Value)
	default:
		t.CalculatedMaxBid = winner.Mul(decimal.NewFromInt(1).Add(spec.Value))
	}
	return t
}

// Build ranks bids into a new queue. It returns nil if there are no bids.
// Entry status is STANDBY or OUT_OF_THRESHOLD; award mirroring is up to the caller.
func Build(
	auctionID auctioneer.AuctionID,
	laneID auctioneer.LaneID,
	bids []auctioneer.Bid,
	spec auctioneer.ThresholdSpec,
	eligible EligibilityFunc,
	now time.Time,
) *auctioneer.LaneQueue {
	ranked := Rank(bids)
	if len(ranked) == 0 {
		return nil
	}
	winner := ranked[0]
	q := &auctioneer.LaneQueue{
		LaneID:         laneID,
		AuctionID:      auctionID,
		WinnerVendorID: winner.VendorID,
		WinnerBid:      winner.Amount,
		Threshold:      ResolveThreshold(spec, winner.Amount),
		Entries:        make([]auctioneer.QueueEntry, len(ranked)),
		Status:         auctioneer.QueueStatusActive,
		UpdatedAt:      now,
	}
	for i, b := range ranked {
		diff := b.Amount.Sub(winner.Amount)
		e := auctioneer.QueueEntry{
			Rank:            i + 1,
			VendorID:        b.VendorID,
			BidAmount:       b.Amount,
			PriceDifference: diff,
		}
		if winner.Amount.IsPositive() {
			e.PercentageDifference = diff.Div(winner.Amount).Mul(hundred).Round(2)
		}
		q.Entries[i] = e
	}
	derive(q, eligible, true)
	log.Debugf("built queue for lane %s: %d entries, max bid %s", laneID, len(q.Entries), q.Threshold.CalculatedMaxBid)
	return q
}

// SameRanking returns true if q was built from the same ranking as ranked.
func SameRanking(q *auctioneer.LaneQueue, ranked []auctioneer.Bid) bool {
	if q == nil || len(q.Entries) != len(ranked) {
		return false
	}
	for i, b := range ranked {
		e := q.Entries[i]
		if e.VendorID != b.VendorID || !e.BidAmount.Equal(b.Amount) {
			return false
		}
	}
	return true
}

// Rederive recomputes the threshold and the eligibility flags of every entry.
// Rank order is never touched.
func Rederive(q *auctioneer.LaneQueue, spec auctioneer.ThresholdSpec, eligible EligibilityFunc) {
	q.Threshold = ResolveThreshold(spec, q.WinnerBid)
	derive(q, eligible, false)
}

// derive sets threshold and eligibility flags. Status is only rewritten for
// entries still waiting in line (STANDBY/OUT_OF_THRESHOLD) unless fresh is set.
func derive(q *auctioneer.LaneQueue, eligible EligibilityFunc, fresh bool) {
	for i := range q.Entries {
		e := &q.Entries[i]
		e.WithinThreshold = e.Rank == 1 || e.BidAmount.LessThanOrEqual(q.Threshold.CalculatedMaxBid)
		ok, reason := eligible(e.VendorID)
		e.IneligibleReason = reason
		e.EligibleForAutoAward = e.WithinThreshold && ok && !e.Removed
		if !e.WithinThreshold && e.IneligibleReason == "" {
			e.IneligibleReason = "bid above threshold"
		}
		if e.Rank == 1 && !fresh {
			continue
		}
		if fresh || e.Status == auctioneer.EntryStatusStandby || e.Status == auctioneer.EntryStatusOutOfThreshold {
			if e.WithinThreshold {
				e.Status = auctioneer.EntryStatusStandby
			} else {
				e.Status = auctioneer.EntryStatusOutOfThreshold
			}
		}
	}
}

// NextCandidate returns the lowest-ranked entry after rank that can be auto-awarded.
func NextCandidate(q *auctioneer.LaneQueue, after int) *auctioneer.QueueEntry {
	for i := range q.Entries {
		e := &q.Entries[i]
		if e.Rank <= after || !e.EligibleForAutoAward {
			continue
		}
		if e.Status == auctioneer.EntryStatusStandby || e.Status == auctioneer.EntryStatusSkipped {
			return e
		}
	}
	return nil
}

// Metrics summarises q.
func Metrics(q *auctioneer.LaneQueue) auctioneer.QueueMetrics {
	m := auctioneer.QueueMetrics{
		LaneID:       q.LaneID,
		Status:       q.Status,
		TotalEntries: len(q.Entries),
	}
	for _, e := range q.Entries {
		if e.EligibleForAutoAward {
			m.Eligible++
		}
		switch e.Status {
		case auctioneer.EntryStatusStandby:
			m.Standby++
		case auctioneer.EntryStatusOutOfThreshold:
			m.OutOfThreshold++
		case auctioneer.EntryStatusSkipped:
			m.Skipped++
		case auctioneer.EntryStatusDeclined:
			m.Declined++
		case auctioneer.EntryStatusExpired:
			m.Expired++
		case auctioneer.EntryStatusAwarded, auctioneer.EntryStatusAccepted:
			m.CurrentRank = e.Rank
		}
	}
	m.Reassignments = len(q.DeclineHistory)
	return m
}
