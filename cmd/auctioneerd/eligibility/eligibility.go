package eligibility

import (
	"fmt"
	"sort"
	"sync"

	golog "github.com/ipfs/go-log/v2"
	"github.com/textileio/lane-core/auctioneer"
)

var log = golog.Logger("auctioneer/eligibility")

// Config holds the gate thresholds.
type Config struct {
	MinPerformanceScore int
}

// DefaultConfig is the default gate configuration.
var DefaultConfig = Config{
	MinPerformanceScore: 70,
}

// Vendor is the state of a vendor relevant to eligibility.
type Vendor struct {
	ID               auctioneer.VendorID `json:"id"`
	Name             string              `json:"name"`
	Blocked          bool                `json:"blocked"`
	Suspended        bool                `json:"suspended"`
	PerformanceScore int                 `json:"performance_score"`
	ReliabilityScore int                 `json:"reliability_score"`
}

// DisputeStatus is the status of a vendor dispute.
type DisputeStatus string

const (
	// DisputeNew is a freshly opened dispute.
	DisputeNew DisputeStatus = "NEW"
	// DisputeUnderReview is a dispute being investigated.
	DisputeUnderReview DisputeStatus = "UNDER_REVIEW"
	// DisputeEscalated is a dispute handed to a higher authority.
	DisputeEscalated DisputeStatus = "ESCALATED"
	// DisputeResolved is a dispute settled in favor of one side.
	DisputeResolved DisputeStatus = "RESOLVED"
	// DisputeClosed is a dispute closed without further action.
	DisputeClosed DisputeStatus = "CLOSED"
)

// Open returns true while the dispute blocks its vendor.
func (s DisputeStatus) Open() bool {
	return s == DisputeNew || s == DisputeUnderReview || s == DisputeEscalated
}

// Valid returns true if s is a known status.
func (s DisputeStatus) Valid() bool {
	return s.Open() || s == DisputeResolved || s == DisputeClosed
}

// Dispute is a ticket raised by a vendor.
type Dispute struct {
	ID       string              `json:"id"`
	VendorID auctioneer.VendorID `json:"vendor_id"`
	Status   DisputeStatus       `json:"status"`
	Subject  string              `json:"subject"`
}

// Result is the outcome of the gate. Reason is empty when OK.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Check evaluates the gate for v. It depends only on its arguments.
func Check(v Vendor, disputes []Dispute, conf Config) Result {
	switch {
	case v.Blocked:
		return Result{Reason: "vendor is blocked"}
	case v.Suspended:
		return Result{Reason: "vendor is suspended"}
	case v.PerformanceScore < conf.MinPerformanceScore:
		return Result{Reason: fmt.Sprintf("performance score %d below floor %d", v.PerformanceScore, conf.MinPerformanceScore)}
	}
	for _, d := range disputes {
		if d.VendorID == v.ID && d.Status.Open() {
			return Result{Reason: fmt.Sprintf("open dispute %s (%s)", d.ID, d.Status)}
		}
	}
	return Result{OK: true}
}

// Directory holds vendor and dispute state consulted by the gate.
type Directory struct {
	conf Config

	lk       sync.RWMutex
	vendors  map[auctioneer.VendorID]*Vendor
	disputes map[string]*Dispute
}

// NewDirectory returns an empty Directory.
func NewDirectory(conf Config) *Directory {
	return &Directory{
		conf:     conf,
		vendors:  make(map[auctioneer.VendorID]*Vendor),
		disputes: make(map[string]*Dispute),
	}
}

// IsEligible runs the gate against the current state of vendor.
// Unknown vendors are not eligible.
func (d *Directory) IsEligible(vendor auctioneer.VendorID) Result {
	d.lk.RLock()
	defer d.lk.RUnlock()
	v, ok := d.vendors[vendor]
	if !ok {
		return Result{Reason: "unknown vendor"}
	}
	var ds []Dispute
	for _, dp := range d.disputes {
		if dp.VendorID == vendor {
			ds = append(ds, *dp)
		}
	}
	return Check(*v, ds, d.conf)
}

// RegisterVendor adds or replaces a vendor.
func (d *Directory) RegisterVendor(v Vendor) error {
	if v.ID == "" {
		return fmt.Errorf("%w: vendor id is empty", auctioneer.ErrValidationFailed)
	}
	if v.PerformanceScore < 0 || v.PerformanceScore > 100 {
		return fmt.Errorf("%w: performance score must be within 0..100", auctioneer.ErrValidationFailed)
	}
	d.lk.Lock()
	defer d.lk.Unlock()
	if old, ok := d.vendors[v.ID]; ok && v.ReliabilityScore == 0 {
		v.ReliabilityScore = old.ReliabilityScore
	} else if !ok && v.ReliabilityScore == 0 {
		v.ReliabilityScore = 100
	}
	d.vendors[v.ID] = &v
	log.Debugf("registered vendor %s (score %d)", v.ID, v.PerformanceScore)
	return nil
}

// GetVendor returns a vendor by id.
func (d *Directory) GetVendor(id auctioneer.VendorID) (Vendor, error) {
	d.lk.RLock()
	defer d.lk.RUnlock()
	v, ok := d.vendors[id]
	if !ok {
		return Vendor{}, fmt.Errorf("vendor %s: %w", id, auctioneer.ErrNotFound)
	}
	return *v, nil
}

// ListVendors returns all vendors ordered by id.
func (d *Directory) ListVendors() []Vendor {
	d.lk.RLock()
	defer d.lk.RUnlock()
	list := make([]Vendor, 0, len(d.vendors))
	for _, v := range d.vendors {
		list = append(list, *v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// SetBlocked blocks or unblocks a vendor.
func (d *Directory) SetBlocked(id auctioneer.VendorID, blocked bool) error {
	return d.update(id, func(v *Vendor) { v.Blocked = blocked })
}

// SetSuspended suspends or reinstates a vendor.
func (d *Directory) SetSuspended(id auctioneer.VendorID, suspended bool) error {
	return d.update(id, func(v *Vendor) { v.Suspended = suspended })
}

// SetPerformanceScore updates the performance score of a vendor.
func (d *Directory) SetPerformanceScore(id auctioneer.VendorID, score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("%w: performance score must be within 0..100", auctioneer.ErrValidationFailed)
	}
	return d.update(id, func(v *Vendor) { v.PerformanceScore = score })
}

// Penalize lowers the reliability score of a vendor, floored at zero.
// Unknown vendors are ignored.
func (d *Directory) Penalize(id auctioneer.VendorID, points int) {
	err := d.update(id, func(v *Vendor) {
		v.ReliabilityScore -= points
		if v.ReliabilityScore < 0 {
			v.ReliabilityScore = 0
		}
	})
	if err != nil {
		log.Debugf("not penalizing %s: %s", id, err)
	}
}

func (d *Directory) update(id auctioneer.VendorID, f func(v *Vendor)) error {
	d.lk.Lock()
	defer d.lk.Unlock()
	v, ok := d.vendors[id]
	if !ok {
		return fmt.Errorf("vendor %s: %w", id, auctioneer.ErrNotFound)
	}
	f(v)
	return nil
}

// OpenDispute records a dispute raised by a vendor.
func (d *Directory) OpenDispute(dp Dispute) error {
	if dp.ID == "" {
		return fmt.Errorf("%w: dispute id is empty", auctioneer.ErrValidationFailed)
	}
	if dp.Status == "" {
		dp.Status = DisputeNew
	}
	if !dp.Status.Valid() {
		return fmt.Errorf("%w: unknown dispute status %q", auctioneer.ErrValidationFailed, dp.Status)
	}
	d.lk.Lock()
	defer d.lk.Unlock()
	if _, ok := d.vendors[dp.VendorID]; !ok {
		return fmt.Errorf("vendor %s: %w", dp.VendorID, auctioneer.ErrNotFound)
	}
	if _, ok := d.disputes[dp.ID]; ok {
		return fmt.Errorf("%w: dispute %s already exists", auctioneer.ErrInvalidState, dp.ID)
	}
	d.disputes[dp.ID] = &dp
	return nil
}

// SetDisputeStatus moves a dispute to status and returns the vendor who raised it.
func (d *Directory) SetDisputeStatus(id string, status DisputeStatus) (auctioneer.VendorID, error) {
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown dispute status %q", auctioneer.ErrValidationFailed, status)
	}
	d.lk.Lock()
	defer d.lk.Unlock()
	dp, ok := d.disputes[id]
	if !ok {
		return "", fmt.Errorf("dispute %s: %w", id, auctioneer.ErrNotFound)
	}
	dp.Status = status
	return dp.VendorID, nil
}
