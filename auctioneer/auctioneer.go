package auctioneer

import (
	"time"

	"github.com/shopspring/decimal"
)

const invalidStatus = "invalid"

// AuctionID is the type used for auction identity.
type AuctionID string

// LaneID is the type used for lane identity.
type LaneID string

// BidID is the type used for bid identity.
type BidID string

// RulesetID is the type used for ruleset identity.
type RulesetID string

// VendorID identifies a carrier/vendor taking part in auctions.
type VendorID string

// AuctionType is the commercial type of an auction.
type AuctionType string

const (
	// AuctionTypeReverse is a regular descending-price lane auction.
	AuctionTypeReverse AuctionType = "REVERSE"
	// AuctionTypeSpot is a short single-round auction for immediate capacity.
	AuctionTypeSpot AuctionType = "SPOT"
)

// Valid returns true if t is a known auction type.
func (t AuctionType) Valid() bool {
	return t == AuctionTypeReverse || t == AuctionTypeSpot
}

// Auction groups lanes that are bid on under one ruleset.
type Auction struct {
	ID        AuctionID     `json:"id"`
	Name      string        `json:"name"`
	Type      AuctionType   `json:"type"`
	Status    AuctionStatus `json:"status"`
	RulesetID RulesetID     `json:"ruleset_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AuctionStatus is the status of an auction.
type AuctionStatus int

const (
	// AuctionStatusDraft indicates the auction is being prepared.
	AuctionStatusDraft AuctionStatus = iota
	// AuctionStatusPublished indicates the auction is visible and lanes can be started.
	AuctionStatusPublished
	// AuctionStatusRunning indicates at least one lane was started.
	AuctionStatusRunning
	// AuctionStatusPaused indicates all running lanes are suspended.
	AuctionStatusPaused
	// AuctionStatusCompleted indicates no lane remains open.
	AuctionStatusCompleted
	// AuctionStatusCancelled indicates the auction was withdrawn before running.
	AuctionStatusCancelled
)

// String returns a string-encoded status.
func (as AuctionStatus) String() string {
	switch as {
	case AuctionStatusDraft:
		return "DRAFT"
	case AuctionStatusPublished:
		return "PUBLISHED"
	case AuctionStatusRunning:
		return "RUNNING"
	case AuctionStatusPaused:
		return "PAUSED"
	case AuctionStatusCompleted:
		return "COMPLETED"
	case AuctionStatusCancelled:
		return "CANCELLED"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (as AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(as.String()), nil
}

// Ruleset holds the bidding rules of an auction. It is immutable once attached.
type Ruleset struct {
	ID                      RulesetID       `json:"id"`
	MinBidDecrement         decimal.Decimal `json:"min_bid_decrement"`
	TimerExtensionThreshold time.Duration   `json:"timer_extension_threshold"`
	TimerExtension          time.Duration   `json:"timer_extension"`
	AllowRankVisibility     bool            `json:"allow_rank_visibility"`
	// Threshold overrides the type-derived acceptance threshold when set.
	Threshold *ThresholdSpec `json:"threshold,omitempty"`
}

// Lane is a single biddable freight route within an auction.
type Lane struct {
	ID               LaneID              `json:"id"`
	AuctionID        AuctionID           `json:"auction_id"`
	Name             string              `json:"name"`
	SequenceOrder    int                 `json:"sequence_order"`
	Status           LaneStatus          `json:"status"`
	BasePrice        decimal.Decimal     `json:"base_price"`
	MinBidDecrement  decimal.Decimal     `json:"min_bid_decrement"`
	TimerDuration    time.Duration       `json:"timer_duration"`
	StartTime        time.Time           `json:"start_time"`
	EndTime          time.Time           `json:"end_time"`
	CurrentLowestBid decimal.NullDecimal `json:"current_lowest_bid"`
	Extensions       int                 `json:"extensions"`
	Reauctions       int                 `json:"reauctions"`
}

// Open returns true if the lane can still receive or resume bidding.
func (l Lane) Open() bool {
	return l.Status == LaneStatusPending || l.Status == LaneStatusRunning || l.Status == LaneStatusPaused
}

// LaneStatus is the status of a lane.
type LaneStatus int

const (
	// LaneStatusPending indicates the lane was not started yet.
	LaneStatusPending LaneStatus = iota
	// LaneStatusRunning indicates the lane timer is counting down.
	LaneStatusRunning
	// LaneStatusPaused indicates the lane timer is suspended.
	LaneStatusPaused
	// LaneStatusClosed indicates bidding ended.
	LaneStatusClosed
	// LaneStatusAwarded indicates an award was issued for the lane.
	LaneStatusAwarded
)

// String returns a string-encoded status.
func (ls LaneStatus) String() string {
	switch ls {
	case LaneStatusPending:
		return "PENDING"
	case LaneStatusRunning:
		return "RUNNING"
	case LaneStatusPaused:
		return "PAUSED"
	case LaneStatusClosed:
		return "CLOSED"
	case LaneStatusAwarded:
		return "AWARDED"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (ls LaneStatus) MarshalText() ([]byte, error) {
	return []byte(ls.String()), nil
}

// Bid is an accepted offer on a lane. Lower is better.
type Bid struct {
	ID         BidID           `json:"id"`
	LaneID     LaneID          `json:"lane_id"`
	VendorID   VendorID        `json:"vendor_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedAt time.Time       `json:"received_at"`
}
