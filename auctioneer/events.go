package auctioneer

import "time"

// EventType names a committed state change.
type EventType string

const (
	EventAuctionCreated      EventType = "auction_created"
	EventAuctionPublished    EventType = "auction_published"
	EventAuctionStarted      EventType = "auction_started"
	EventAuctionPaused       EventType = "auction_paused"
	EventAuctionResumed      EventType = "auction_resumed"
	EventAuctionCompleted    EventType = "auction_completed"
	EventAuctionCancelled    EventType = "auction_cancelled"
	EventLaneAdded           EventType = "lane_added"
	EventLaneStarted         EventType = "lane_started"
	EventLaneExtended        EventType = "lane_extended"
	EventLaneClosed          EventType = "lane_closed"
	EventLaneReopened        EventType = "lane_reopened"
	EventBidPlaced           EventType = "bid_placed"
	EventAwardIssued         EventType = "award_issued"
	EventAwardAccepted       EventType = "award_accepted"
	EventAwardDeclined       EventType = "award_declined"
	EventAwardExpired        EventType = "award_expired"
	EventAwardModification   EventType = "award_modification_requested"
	EventAwardSuperseded     EventType = "award_superseded"
	EventAwardReminder       EventType = "award_reminder"
	EventQueueBuilt          EventType = "queue_built"
	EventQueueReassigned     EventType = "queue_reassigned"
	EventQueueEntrySkipped   EventType = "queue_entry_skipped"
	EventQueueThreshold      EventType = "queue_threshold_adjusted"
	EventQueueFailed         EventType = "queue_failed"
	EventQueueCompleted      EventType = "queue_completed"
	EventPlacementCreated    EventType = "placement_created"
	EventPlacementConfirmed  EventType = "placement_confirmed"
	EventPlacementFailed     EventType = "placement_failed"
	EventSpotAuctionStarted  EventType = "spot_auction_started"
	EventSpotBidPlaced       EventType = "spot_bid_placed"
	EventSpotAuctionClosed   EventType = "spot_auction_closed"
	EventVendorUpdated       EventType = "vendor_updated"
	EventDisputeStatusChange EventType = "dispute_status_changed"
)

// LiveEvent is the typed change notification fanned out after every committed mutation.
type LiveEvent struct {
	ID        string    `json:"id" cbor:"1,keyasint"`
	Type      EventType `json:"type" cbor:"2,keyasint"`
	AuctionID AuctionID `json:"auction_id,omitempty" cbor:"3,keyasint,omitempty"`
	LaneID    LaneID    `json:"lane_id,omitempty" cbor:"4,keyasint,omitempty"`
	VendorID  VendorID  `json:"vendor_id,omitempty" cbor:"5,keyasint,omitempty"`
	Amount    string    `json:"amount,omitempty" cbor:"6,keyasint,omitempty"`
	EntityID  string    `json:"entity_id,omitempty" cbor:"7,keyasint,omitempty"`
	Timestamp time.Time `json:"timestamp" cbor:"8,keyasint"`
}

// NotificationKind is the reason a vendor should be contacted.
type NotificationKind string

const (
	NotifyAwardIssued      NotificationKind = "award_issued"
	NotifyDeclineProcessed NotificationKind = "decline_processed"
	NotifyAwardExpired     NotificationKind = "award_expired"
	NotifyStandbyAlert     NotificationKind = "standby_alert"
	NotifyAwardReminder    NotificationKind = "award_reminder"
	NotifyAwardSuperseded  NotificationKind = "award_superseded"
	NotifySpotAuction      NotificationKind = "spot_auction"
	NotifyPlacementBreach  NotificationKind = "placement_breach"
)

// Notification records the decision to contact a vendor. Delivery happens elsewhere.
type Notification struct {
	ID        string           `json:"id" cbor:"1,keyasint"`
	Kind      NotificationKind `json:"kind" cbor:"2,keyasint"`
	VendorID  VendorID         `json:"vendor_id" cbor:"3,keyasint"`
	LaneID    LaneID           `json:"lane_id,omitempty" cbor:"4,keyasint,omitempty"`
	AwardID   AwardID          `json:"award_id,omitempty" cbor:"5,keyasint,omitempty"`
	Message   string           `json:"message" cbor:"6,keyasint"`
	CreatedAt time.Time        `json:"created_at" cbor:"7,keyasint"`
}
