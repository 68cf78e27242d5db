package auctioneer

import (
	"fmt"
	"strconv"

	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/eligibility"
)

// RegisterVendor adds or replaces a vendor in the directory.
func (a *Auctioneer) RegisterVendor(v eligibility.Vendor, actor string) error {
	if err := a.vendors.RegisterVendor(v); err != nil {
		return err
	}
	a.vendorUpdated(v.ID, actor, "action", "registered", "performance_score", strconv.Itoa(v.PerformanceScore))
	return nil
}

// GetVendor returns a vendor and its current gate result.
func (a *Auctioneer) GetVendor(id core.VendorID) (eligibility.Vendor, eligibility.Result, error) {
	v, err := a.vendors.GetVendor(id)
	if err != nil {
		return eligibility.Vendor{}, eligibility.Result{}, err
	}
	return v, a.vendors.IsEligible(id), nil
}

// ListVendors returns every registered vendor.
func (a *Auctioneer) ListVendors() []eligibility.Vendor {
	return a.vendors.ListVendors()
}

// SetVendorBlocked blocks or unblocks a vendor.
func (a *Auctioneer) SetVendorBlocked(id core.VendorID, blocked bool, actor string) error {
	if err := a.vendors.SetBlocked(id, blocked); err != nil {
		return err
	}
	a.vendorUpdated(id, actor, "blocked", strconv.FormatBool(blocked))
	return nil
}

// SetVendorSuspended suspends or reinstates a vendor.
func (a *Auctioneer) SetVendorSuspended(id core.VendorID, suspended bool, actor string) error {
	if err := a.vendors.SetSuspended(id, suspended); err != nil {
		return err
	}
	a.vendorUpdated(id, actor, "suspended", strconv.FormatBool(suspended))
	return nil
}

// SetVendorPerformanceScore sets the performance score of a vendor.
func (a *Auctioneer) SetVendorPerformanceScore(id core.VendorID, score int, actor string) error {
	if err := a.vendors.SetPerformanceScore(id, score); err != nil {
		return err
	}
	a.vendorUpdated(id, actor, "performance_score", strconv.Itoa(score))
	return nil
}

// OpenDispute records a dispute raised by a vendor. Open disputes make it ineligible.
func (a *Auctioneer) OpenDispute(d eligibility.Dispute, actor string) error {
	if d.Status == "" {
		d.Status = eligibility.DisputeNew
	}
	if err := a.vendors.OpenDispute(d); err != nil {
		return err
	}
	a.lk.Lock()
	defer a.lk.Unlock()
	a.record(a.clock.Now(), core.EventDisputeStatusChange, vendorEntity(d.VendorID), actor,
		core.LiveEvent{VendorID: d.VendorID}, "dispute_id", d.ID, "status", string(d.Status))
	return nil
}

// SetDisputeStatus moves a dispute to a new status.
func (a *Auctioneer) SetDisputeStatus(id string, status eligibility.DisputeStatus, actor string) error {
	vendor, err := a.vendors.SetDisputeStatus(id, status)
	if err != nil {
		return fmt.Errorf("setting dispute status: %w", err)
	}
	a.lk.Lock()
	defer a.lk.Unlock()
	a.record(a.clock.Now(), core.EventDisputeStatusChange, vendorEntity(vendor), actor,
		core.LiveEvent{VendorID: vendor}, "dispute_id", id, "status", string(status))
	return nil
}

func (a *Auctioneer) vendorUpdated(id core.VendorID, actor string, kv ...string) {
	a.lk.Lock()
	defer a.lk.Unlock()
	a.record(a.clock.Now(), core.EventVendorUpdated, vendorEntity(id), actor, core.LiveEvent{VendorID: id}, kv...)
}
