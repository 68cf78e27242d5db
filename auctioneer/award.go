package auctioneer

import (
	"time"

	"github.com/shopspring/decimal"
)

// AwardID is the type used for award identity.
type AwardID string

// Award offers a lane to a vendor at a price until AcceptanceDeadline.
type Award struct {
	ID                 AwardID              `json:"id"`
	LaneID             LaneID               `json:"lane_id"`
	VendorID           VendorID             `json:"vendor_id"`
	Price              decimal.Decimal      `json:"price"`
	Rank               int                  `json:"rank"`
	Status             AwardStatus          `json:"status"`
	Reason             string               `json:"reason"`
	AwardedBy          string               `json:"awarded_by"`
	AcceptanceDeadline time.Time            `json:"acceptance_deadline"`
	CreatedAt          time.Time            `json:"created_at"`
	RespondedAt        time.Time            `json:"responded_at"`
	DeclineReason      string               `json:"decline_reason,omitempty"`
	Modification       *ModificationRequest `json:"modification,omitempty"`
	RemindersSent      []time.Duration      `json:"reminders_sent,omitempty"`
	ReawardedFrom      AwardID              `json:"reawarded_from,omitempty"`
	ReawardedTo        AwardID              `json:"reawarded_to,omitempty"`
}

// Live returns true while the award still waits for the vendor.
func (a Award) Live() bool {
	return a.Status == AwardStatusPending || a.Status == AwardStatusModificationRequested
}

// AwardStatus is the status of an award.
type AwardStatus int

const (
	// AwardStatusPending indicates the vendor has not answered yet.
	AwardStatusPending AwardStatus = iota
	// AwardStatusAccepted indicates the vendor accepted.
	AwardStatusAccepted
	// AwardStatusDeclined indicates the vendor declined or the award was skipped.
	AwardStatusDeclined
	// AwardStatusExpired indicates the acceptance deadline passed.
	AwardStatusExpired
	// AwardStatusModificationRequested indicates the vendor asked to change terms.
	AwardStatusModificationRequested
	// AwardStatusReawarded indicates the award was superseded by another award.
	AwardStatusReawarded
)

// String returns a string-encoded status.
func (as AwardStatus) String() string {
	switch as {
	case AwardStatusPending:
		return "PENDING"
	case AwardStatusAccepted:
		return "ACCEPTED"
	case AwardStatusDeclined:
		return "DECLINED"
	case AwardStatusExpired:
		return "EXPIRED"
	case AwardStatusModificationRequested:
		return "MODIFICATION_REQUESTED"
	case AwardStatusReawarded:
		return "REAWARDED"
	default:
		return invalidStatus
	}
}

// MarshalText implements encoding.TextMarshaler.
func (as AwardStatus) MarshalText() ([]byte, error) {
	return []byte(as.String()), nil
}

// AcceptanceAction is a vendor response to an award.
type AcceptanceAction string

const (
	// ActionAccept accepts the award.
	ActionAccept AcceptanceAction = "ACCEPT"
	// ActionDecline declines the award and cascades to the next standby vendor.
	ActionDecline AcceptanceAction = "DECLINE"
	// ActionRequestModification asks for changed terms without advancing the queue.
	ActionRequestModification AcceptanceAction = "REQUEST_MODIFICATION"
)

// ModificationRequest describes the terms a vendor wants changed.
type ModificationRequest struct {
	Category        string `json:"category"`
	Justification   string `json:"justification"`
	ProposedChanges string `json:"proposed_changes"`
}

// Complete returns true if every field is filled in.
func (m *ModificationRequest) Complete() bool {
	return m != nil && m.Category != "" && m.Justification != "" && m.ProposedChanges != ""
}

// AcceptancePayload carries the details of a vendor response.
type AcceptancePayload struct {
	Reason       string               `json:"reason"`
	Modification *ModificationRequest `json:"modification,omitempty"`
}

// Cause is the reason an award left the vendor's hands.
type Cause string

const (
	// CauseDeclined is used when the vendor declined or an operator skipped the award.
	CauseDeclined Cause = "DECLINED"
	// CauseExpired is used when the acceptance deadline passed.
	CauseExpired Cause = "EXPIRED"
)
