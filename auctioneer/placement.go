package auctioneer

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackerID is the type used for placement tracker identity.
type TrackerID string

// SpotAuctionID is the type used for spot auction identity.
type SpotAuctionID string

// PlacementTracker watches a vendor confirming a vehicle before SLAEndTime.
type PlacementTracker struct {
	ID                TrackerID       `json:"id"`
	IndentID          string          `json:"indent_id"`
	LaneID            LaneID          `json:"lane_id"`
	AwardID           AwardID         `json:"award_id,omitempty"`
	VendorID          VendorID        `json:"vendor_id"`
	Price             decimal.Decimal `json:"price"`
	Status            PlacementStatus `json:"status"`
	SLAEndTime        time.Time       `json:"sla_end_time"`
	CreatedAt         time.Time       `json:"created_at"`
	ResolvedAt        time.Time       `json:"resolved_at"`
	SpotAuctionID     SpotAuctionID   `json:"spot_auction_id,omitempty"`
	FromSpotAuctionID SpotAuctionID   `json:"from_spot_auction_id,omitempty"`
}

// PlacementStatus is the status of a placement tracker.
type PlacementStatus int

const (
	// PlacementStatusPending indicates the vehicle is not confirmed yet.
	PlacementStatusPending PlacementStatus = iota
	// PlacementStatusPlaced indicates the vendor confirmed in time.
	PlacementStatusPlaced
	// PlacementStatusFailed indicates the SLA was breached.
	PlacementStatusFailed
)

// String returns a string-encoded status.
func (ps PlacementStatus) String() string {
	switch ps {
	case PlacementStatusPending:
		return "PENDING"
	case PlacementStatusPlaced:
		return "PLACED"
	case PlacementStatusFailed:
		return "FAILED"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (ps PlacementStatus) MarshalText() ([]byte, error) {
	return []byte(ps.String()), nil
}

// SpotAuction is a single-round fallback auction opened on an SLA breach.
type SpotAuction struct {
	ID             SpotAuctionID     `json:"id"`
	IndentID       string            `json:"indent_id"`
	LaneID         LaneID            `json:"lane_id"`
	TrackerID      TrackerID         `json:"tracker_id"`
	ExcludedVendor VendorID          `json:"excluded_vendor"`
	Status         SpotAuctionStatus `json:"status"`
	CeilingPrice   decimal.Decimal   `json:"ceiling_price"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	Bids           []SpotBid         `json:"bids"`
	WinnerBidID    BidID             `json:"winner_bid_id,omitempty"`
	WinnerTracker  TrackerID         `json:"winner_tracker,omitempty"`
}

// SpotAuctionStatus is the status of a spot auction.
type SpotAuctionStatus int

const (
	// SpotAuctionStatusOpen indicates the spot auction accepts bids.
	SpotAuctionStatusOpen SpotAuctionStatus = iota
	// SpotAuctionStatusClosed indicates a winner was picked.
	SpotAuctionStatusClosed
	// SpotAuctionStatusNoWinner indicates the spot auction closed without bids.
	SpotAuctionStatusNoWinner
)

// String returns a string-encoded status.
func (ss SpotAuctionStatus) String() string {
	switch ss {
	case SpotAuctionStatusOpen:
		return "OPEN"
	case SpotAuctionStatusClosed:
		return "CLOSED"
	case SpotAuctionStatusNoWinner:
		return "NO_WINNER"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (ss SpotAuctionStatus) MarshalText() ([]byte, error) {
	return []byte(ss.String()), nil
}

// SpotBid is an accepted offer in a spot auction.
type SpotBid struct {
	ID         BidID           `json:"id"`
	VendorID   VendorID        `json:"vendor_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedAt time.Time       `json:"received_at"`
}
