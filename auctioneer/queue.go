package auctioneer

import (
	"time"

	"github.com/shopspring/decimal"
)

// ThresholdType selects how the acceptance threshold is computed.
type ThresholdType string

const (
	// ThresholdPercentage allows a percentage premium over the winning bid.
	ThresholdPercentage ThresholdType = "percentage"
	// ThresholdAbsolute allows a fixed premium over the winning bid.
	ThresholdAbsolute ThresholdType = "absolute"
)

// ThresholdSpec is the configured premium a standby bid may have over the winner.
// For ThresholdPercentage, Value is a fraction (0.05 is 5%).
type ThresholdSpec struct {
	Type  ThresholdType   `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Valid returns true if the threshold type is known and its value non-negative.
func (t ThresholdSpec) Valid() bool {
	return (t.Type == ThresholdPercentage || t.Type == ThresholdAbsolute) && !t.Value.IsNegative()
}

// Threshold is a ThresholdSpec resolved against a winning bid.
type Threshold struct {
	ThresholdSpec
	CalculatedMaxBid decimal.Decimal `json:"calculated_max_bid"`
}

// QueueEntry is a ranked standby vendor of a lane.
type QueueEntry struct {
	Rank                 int             `json:"rank"`
	VendorID             VendorID        `json:"vendor_id"`
	BidAmount            decimal.Decimal `json:"bid_amount"`
	PriceDifference      decimal.Decimal `json:"price_difference"`
	PercentageDifference decimal.Decimal `json:"percentage_difference"`
	Status               EntryStatus     `json:"status"`
	WithinThreshold      bool            `json:"within_threshold"`
	EligibleForAutoAward bool            `json:"eligible_for_auto_award"`
	IneligibleReason     string          `json:"ineligible_reason,omitempty"`
	SkipReason           string          `json:"skip_reason,omitempty"`
	Removed              bool            `json:"removed"`
	NotificationsSent    int             `json:"notifications_sent"`
}

// EntryStatus is the status of a queue entry.
type EntryStatus int

const (
	// EntryStatusStandby indicates the vendor is waiting within threshold.
	EntryStatusStandby EntryStatus = iota
	// EntryStatusAwarded indicates the vendor holds the live award.
	EntryStatusAwarded
	// EntryStatusAccepted indicates the vendor accepted the award.
	EntryStatusAccepted
	// EntryStatusDeclined indicates the vendor declined.
	EntryStatusDeclined
	// EntryStatusExpired indicates the vendor let the award expire.
	EntryStatusExpired
	// EntryStatusReawarded indicates the vendor's award was superseded.
	EntryStatusReawarded
	// EntryStatusSkipped indicates the vendor was passed over.
	EntryStatusSkipped
	// EntryStatusOutOfThreshold indicates the bid is above the acceptance threshold.
	EntryStatusOutOfThreshold
)

// String returns a string-encoded status.
func (es EntryStatus) String() string {
	switch es {
	case EntryStatusStandby:
		return "STANDBY"
	case EntryStatusAwarded:
		return "AWARDED"
	case EntryStatusAccepted:
		return "ACCEPTED"
	case EntryStatusDeclined:
		return "DECLINED"
	case EntryStatusExpired:
		return "EXPIRED"
	case EntryStatusReawarded:
		return "REAWARDED"
	case EntryStatusSkipped:
		return "SKIPPED"
	case EntryStatusOutOfThreshold:
		return "OUT_OF_THRESHOLD"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (es EntryStatus) MarshalText() ([]byte, error) {
	return []byte(es.String()), nil
}

// QueueStatus is the status of a lane alternate queue.
type QueueStatus int

const (
	// QueueStatusActive indicates the original award is in play.
	QueueStatusActive QueueStatus = iota
	// QueueStatusReassigned indicates the award moved to a standby vendor.
	QueueStatusReassigned
	// QueueStatusFailed indicates no eligible standby vendor remains.
	QueueStatusFailed
	// QueueStatusCompleted indicates the lane was accepted or cancelled.
	QueueStatusCompleted
)

// String returns a string-encoded status.
func (qs QueueStatus) String() string {
	switch qs {
	case QueueStatusActive:
		return "ACTIVE"
	case QueueStatusReassigned:
		return "REASSIGNED"
	case QueueStatusFailed:
		return "FAILED"
	case QueueStatusCompleted:
		return "COMPLETED"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (qs QueueStatus) MarshalText() ([]byte, error) {
	return []byte(qs.String()), nil
}

// DeclineRecord is a decline or expiry in the history of a lane queue.
type DeclineRecord struct {
	VendorID VendorID  `json:"vendor_id"`
	AwardID  AwardID   `json:"award_id"`
	Rank     int       `json:"rank"`
	Cause    Cause     `json:"cause"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// LaneQueue is the ranked standby list of a lane.
type LaneQueue struct {
	LaneID         LaneID          `json:"lane_id"`
	AuctionID      AuctionID       `json:"auction_id"`
	WinnerVendorID VendorID        `json:"winner_vendor_id"`
	WinnerBid      decimal.Decimal `json:"winner_bid"`
	Threshold      Threshold       `json:"threshold"`
	Entries        []QueueEntry    `json:"entries"`
	Status         QueueStatus     `json:"status"`
	DeclineHistory []DeclineRecord `json:"decline_history"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Entry returns the entry of vendor, or nil.
func (q *LaneQueue) Entry(vendor VendorID) *QueueEntry {
	for i := range q.Entries {
		if q.Entries[i].VendorID == vendor {
			return &q.Entries[i]
		}
	}
	return nil
}

// Copy returns a deep copy of q.
func (q *LaneQueue) Copy() *LaneQueue {
	c := *q
	c.Entries = append([]QueueEntry(nil), q.Entries...)
	c.DeclineHistory = append([]DeclineRecord(nil), q.DeclineHistory...)
	return &c
}

// QueueAction is an operator action on a lane queue.
type QueueAction string

const (
	// QueueActionSkipToNext cascades as if the current vendor declined.
	QueueActionSkipToNext QueueAction = "SKIP_TO_NEXT"
	// QueueActionRemoveVendor takes a standby vendor out of the queue.
	QueueActionRemoveVendor QueueAction = "REMOVE_VENDOR"
	// QueueActionAwardVendor awards any queue entry directly.
	QueueActionAwardVendor QueueAction = "AWARD_VENDOR"
	// QueueActionAdjustThreshold recomputes the threshold and entry eligibility.
	QueueActionAdjustThreshold QueueAction = "ADJUST_THRESHOLD"
	// QueueActionMarkFailed moves the queue to FAILED.
	QueueActionMarkFailed QueueAction = "MARK_FAILED"
)

// QueueActionParams carries the arguments of a QueueAction.
type QueueActionParams struct {
	VendorID  VendorID       `json:"vendor_id,omitempty"`
	Threshold *ThresholdSpec `json:"threshold,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// QueueMetrics summarises a lane queue.
type QueueMetrics struct {
	LaneID         LaneID      `json:"lane_id"`
	Status         QueueStatus `json:"status"`
	TotalEntries   int         `json:"total_entries"`
	Standby        int         `json:"standby"`
	Eligible       int         `json:"eligible"`
	OutOfThreshold int         `json:"out_of_threshold"`
	Skipped        int         `json:"skipped"`
	Declined       int         `json:"declined"`
	Expired        int         `json:"expired"`
	Reassignments  int         `json:"reassignments"`
	CurrentRank    int         `json:"current_rank"`
}

// VendorQueueStatus is the position of a vendor in one lane queue.
type VendorQueueStatus struct {
	LaneID               LaneID          `json:"lane_id"`
	AuctionID            AuctionID       `json:"auction_id"`
	Rank                 int             `json:"rank"`
	BidAmount            decimal.Decimal `json:"bid_amount"`
	Status               EntryStatus     `json:"status"`
	EligibleForAutoAward bool            `json:"eligible_for_auto_award"`
	QueueStatus          QueueStatus     `json:"queue_status"`
}

// ResolutionAction is a way out of a FAILED queue.
type ResolutionAction string

const (
	// ResolveAwardOutsideThreshold awards a queue entry regardless of threshold.
	ResolveAwardOutsideThreshold ResolutionAction = "AWARD_OUTSIDE_THRESHOLD"
	// ResolveRenegotiateOriginal re-awards the original winner.
	ResolveRenegotiateOriginal ResolutionAction = "RENEGOTIATE_ORIGINAL"
	// ResolveReauction reopens the lane for a short bounded round.
	ResolveReauction ResolutionAction = "REAUCTION"
	// ResolveCancelLane closes the lane permanently.
	ResolveCancelLane ResolutionAction = "CANCEL_LANE"
)

// Resolution carries the arguments of a ResolutionAction.
type Resolution struct {
	Action   ResolutionAction    `json:"action"`
	VendorID VendorID            `json:"vendor_id,omitempty"`
	Price    decimal.NullDecimal `json:"price"`
	Duration time.Duration       `json:"duration,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// FailedAwardContext gathers what an operator needs to resolve a FAILED queue.
type FailedAwardContext struct {
	Lane             Lane               `json:"lane"`
	Queue            *LaneQueue         `json:"queue"`
	Awards           []Award            `json:"awards"`
	OriginalWinner   *QueueEntry        `json:"original_winner,omitempty"`
	OutsideThreshold []QueueEntry       `json:"outside_threshold"`
	Actions          []ResolutionAction `json:"actions"`
}
