package auctioneer

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced auction, lane, award, queue or vendor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the operation is not allowed from the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidationFailed indicates a structural precondition was violated.
	ErrValidationFailed = errors.New("validation failed")

	// ErrExpired indicates a deadline already passed.
	ErrExpired = errors.New("expired")

	// ErrIneligibleVendor indicates the vendor fails the eligibility gate.
	ErrIneligibleVendor = errors.New("ineligible vendor")

	// ErrQueueExhausted indicates no eligible standby vendor remains.
	ErrQueueExhausted = errors.New("alternate queue exhausted")

	// ErrBidTooHigh indicates a bid does not improve on the current best by the minimum decrement.
	ErrBidTooHigh = fmt.Errorf("%w: bid too high", ErrValidationFailed)

	// ErrIncompleteRequest indicates a modification request misses required fields.
	ErrIncompleteRequest = fmt.Errorf("%w: incomplete modification request", ErrValidationFailed)
)
