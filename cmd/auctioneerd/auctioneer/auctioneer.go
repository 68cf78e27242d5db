package auctioneer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	golog "github.com/ipfs/go-log/v2"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/audit"
	"github.com/textileio/lane-core/cmd/auctioneerd/eligibility"
	"github.com/textileio/lane-core/msgbroker"
	"go.opentelemetry.io/otel/metric"
)

const systemActor = "system"

var log = golog.Logger("auctioneer")

// Config holds the engine timing and threshold settings.
type Config struct {
	// AcceptanceWindow is the time a vendor has to answer an award.
	AcceptanceWindow time.Duration
	// ReminderMarks are the remaining times at which a live award is reminded.
	ReminderMarks []time.Duration
	// PercentageThreshold is the default premium allowed over the winning bid (0.05 is 5%).
	PercentageThreshold decimal.Decimal
	// AbsoluteThreshold is the premium allowed over the winning bid of SPOT auctions.
	AbsoluteThreshold decimal.Decimal
	// ReliabilityPenalty is subtracted from the reliability score of a vendor who declines.
	ReliabilityPenalty int
	// PlacementSLA is the time a vendor has to confirm a vehicle after acceptance.
	PlacementSLA time.Duration
	// SpotPlacementSLA is the placement SLA of spot auction winners.
	SpotPlacementSLA time.Duration
	// SpotDuration is the length of spot auctions.
	SpotDuration time.Duration
	// ReauctionDuration is the default window of a lane re-auction.
	ReauctionDuration time.Duration
	// TickInterval is the scheduler period.
	TickInterval time.Duration
	// EventBuffer is the capacity of the live event feed.
	EventBuffer int
	// AutoAwardOnClose awards the rank-1 vendor as soon as a lane closes.
	AutoAwardOnClose bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		AcceptanceWindow:    24 * time.Hour,
		ReminderMarks:       []time.Duration{12 * time.Hour, 2 * time.Hour, 30 * time.Minute},
		PercentageThreshold: decimal.RequireFromString("0.05"),
		AbsoluteThreshold:   decimal.NewFromInt(5000),
		ReliabilityPenalty:  10,
		PlacementSLA:        4 * time.Hour,
		SpotPlacementSLA:    time.Hour,
		SpotDuration:        5 * time.Minute,
		ReauctionDuration:   15 * time.Minute,
		TickInterval:        time.Second,
		EventBuffer:         1024,
		AutoAwardOnClose:    true,
	}
}

// Validate returns an error if the configuration is unusable.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"acceptance window":  c.AcceptanceWindow,
		"placement sla":      c.PlacementSLA,
		"spot placement sla": c.SpotPlacementSLA,
		"spot duration":      c.SpotDuration,
		"reauction duration": c.ReauctionDuration,
		"tick interval":      c.TickInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	for _, m := range c.ReminderMarks {
		if m <= 0 {
			return errors.New("reminder marks must be positive")
		}
	}
	if c.PercentageThreshold.IsNegative() || c.AbsoluteThreshold.IsNegative() {
		return errors.New("thresholds can't be negative")
	}
	if c.ReliabilityPenalty < 0 {
		return errors.New("reliability penalty can't be negative")
	}
	if c.EventBuffer <= 0 {
		return errors.New("event buffer must be positive")
	}
	return nil
}

// VendorDirectory is the vendor state consulted and administered by the engine.
type VendorDirectory interface {
	IsEligible(core.VendorID) eligibility.Result
	Penalize(core.VendorID, int)
	RegisterVendor(eligibility.Vendor) error
	GetVendor(core.VendorID) (eligibility.Vendor, error)
	ListVendors() []eligibility.Vendor
	SetBlocked(core.VendorID, bool) error
	SetSuspended(core.VendorID, bool) error
	SetPerformanceScore(core.VendorID, int) error
	OpenDispute(eligibility.Dispute) error
	SetDisputeStatus(string, eligibility.DisputeStatus) (core.VendorID, error)
}

// Auctioneer is the single auction authority. Commands and the scheduler tick
// are serialized by one lock; reads return copies.
type Auctioneer struct {
	conf    Config
	clock   clock.Clock
	vendors VendorDirectory
	audit   *audit.Log
	feed    *Feed

	lk            sync.Mutex
	auctions      map[core.AuctionID]*core.Auction
	rulesets      map[core.RulesetID]core.Ruleset
	lanes         map[core.LaneID]*core.Lane
	auctionLanes  map[core.AuctionID][]core.LaneID
	bids          map[core.LaneID][]core.Bid
	paused        map[core.LaneID]time.Duration
	awards        map[core.AwardID]*core.Award
	laneAwards    map[core.LaneID][]core.AwardID
	roundStart    map[core.LaneID]int // index in laneAwards of the first award of the current round
	currentAward  map[core.LaneID]core.AwardID
	queues        map[core.LaneID]*core.LaneQueue
	thresholds    map[core.LaneID]core.ThresholdSpec
	trackers      map[core.TrackerID]*core.PlacementTracker
	spots         map[core.SpotAuctionID]*core.SpotAuction
	notifications []core.Notification

	idLk    sync.Mutex
	entropy *ulid.MonotonicEntropy

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	metricAuctions        metric.Int64Counter
	metricLanesStarted    metric.Int64Counter
	metricLanesClosed     metric.Int64Counter
	metricLaneExtensions  metric.Int64Counter
	metricBids            metric.Int64Counter
	metricAwards          metric.Int64Counter
	metricAwardResponses  metric.Int64Counter
	metricCascades        metric.Int64Counter
	metricQueueFailures   metric.Int64Counter
	metricPlacements      metric.Int64Counter
	metricSpotAuctions    metric.Int64Counter
	metricDroppedEvents   metric.Int64Counter
	metricOpenLanes       metric.Int64GaugeObserver
	metricLiveAwards      metric.Int64GaugeObserver
	metricTickLatency     metric.Int64Histogram
}

// New returns a new Auctioneer. mb is optional; when set, live events and
// vendor notifications are also published to it.
func New(
	conf Config,
	clk clock.Clock,
	vendors VendorDirectory,
	auditLog *audit.Log,
	mb msgbroker.MsgBroker,
) (*Auctioneer, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %v", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if vendors == nil {
		return nil, errors.New("vendor directory is required")
	}
	if auditLog == nil {
		return nil, errors.New("audit log is required")
	}
	marks := append([]time.Duration(nil), conf.ReminderMarks...)
	sort.Slice(marks, func(i, j int) bool { return marks[i] > marks[j] })
	conf.ReminderMarks = marks

	a := &Auctioneer{
		conf:         conf,
		clock:        clk,
		vendors:      vendors,
		audit:        auditLog,
		auctions:     make(map[core.AuctionID]*core.Auction),
		rulesets:     make(map[core.RulesetID]core.Ruleset),
		lanes:        make(map[core.LaneID]*core.Lane),
		auctionLanes: make(map[core.AuctionID][]core.LaneID),
		bids:         make(map[core.LaneID][]core.Bid),
		paused:       make(map[core.LaneID]time.Duration),
		awards:       make(map[core.AwardID]*core.Award),
		laneAwards:   make(map[core.LaneID][]core.AwardID),
		roundStart:   make(map[core.LaneID]int),
		currentAward: make(map[core.LaneID]core.AwardID),
		queues:       make(map[core.LaneID]*core.LaneQueue),
		thresholds:   make(map[core.LaneID]core.ThresholdSpec),
		trackers:     make(map[core.TrackerID]*core.PlacementTracker),
		spots:        make(map[core.SpotAuctionID]*core.SpotAuction),
		closeCh:      make(chan struct{}),
	}
	a.initMetrics()
	a.feed = newFeed(conf.EventBuffer, mb, a.onDropped)
	return a, nil
}

// Start runs the scheduler until Close is called.
func (a *Auctioneer) Start() {
	ticker := a.clock.Ticker(a.conf.TickInterval)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-a.closeCh:
				return
			case <-ticker.C:
				a.Tick(a.clock.Now())
			}
		}
	}()
	log.Infof("scheduler started with %s ticks", a.conf.TickInterval)
}

// Close stops the scheduler and the live event feed.
func (a *Auctioneer) Close() error {
	a.closeOnce.Do(func() {
		close(a.closeCh)
		a.wg.Wait()
		a.feed.close()
	})
	return nil
}

// Subscribe returns a channel of live events and a function to unsubscribe.
// Events are dropped for this subscriber when buffer is full.
func (a *Auctioneer) Subscribe(buffer int) (<-chan core.LiveEvent, func()) {
	return a.feed.subscribe(buffer)
}

// NewID returns new monotonically increasing ids.
func (a *Auctioneer) NewID(t time.Time) (string, error) {
	a.idLk.Lock() // entropy is not safe for concurrent use

	if a.entropy == nil {
		a.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(t.UTC()), a.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		a.entropy = nil
		a.idLk.Unlock()
		return a.NewID(t)
	} else if err != nil {
		a.idLk.Unlock()
		return "", fmt.Errorf("generating id: %v", err)
	}
	a.idLk.Unlock()
	return strings.ToLower(id.String()), nil
}

// mustNewID is used once a command is committed to mutating state.
// The entropy source is crypto/rand, there is nothing sensible to do if it fails.
func (a *Auctioneer) mustNewID(t time.Time) string {
	id, err := a.NewID(t)
	if err != nil {
		panic(err)
	}
	return id
}

// entity names the audit subject of a change.
type entity struct {
	kind string
	id   string
}

func auctionEntity(id core.AuctionID) entity { return entity{"auction", string(id)} }
func laneEntity(id core.LaneID) entity       { return entity{"lane", string(id)} }
func awardEntity(id core.AwardID) entity     { return entity{"award", string(id)} }
func queueEntity(id core.LaneID) entity      { return entity{"queue", string(id)} }
func trackerEntity(id core.TrackerID) entity { return entity{"placement", string(id)} }
func spotEntity(id core.SpotAuctionID) entity {
	return entity{"spot_auction", string(id)}
}
func vendorEntity(id core.VendorID) entity { return entity{"vendor", string(id)} }

// record appends an audit entry and fans out a live event for a committed change.
// kv are payload key/value pairs. Must be called with the lock held.
func (a *Auctioneer) record(
	now time.Time,
	t core.EventType,
	ent entity,
	actor string,
	ev core.LiveEvent,
	kv ...string) {
	if actor == "" {
		actor = systemActor
	}
	payload := make(map[string]string, len(kv)/2+3)
	for i := 0; i+1 < len(kv); i += 2 {
		payload[kv[i]] = kv[i+1]
	}
	if ev.AuctionID != "" {
		payload["auction_id"] = string(ev.AuctionID)
	}
	if ev.LaneID != "" {
		payload["lane_id"] = string(ev.LaneID)
	}
	if ev.VendorID != "" {
		payload["vendor_id"] = string(ev.VendorID)
	}
	if ev.Amount != "" {
		payload["amount"] = ev.Amount
	}
	if _, err := a.audit.Append(context.Background(), audit.Entry{
		EntityType:  ent.kind,
		EntityID:    ent.id,
		EventType:   string(t),
		TriggeredBy: actor,
		Payload:     payload,
		CreatedAt:   now,
	}); err != nil {
		log.Errorf("appending audit entry %s for %s %s: %v", t, ent.kind, ent.id, err)
	}

	ev.ID = uuid.NewString()
	ev.Type = t
	ev.EntityID = ent.id
	ev.Timestamp = now
	a.feed.publish(ev)
}

func laneEvent(l *core.Lane) core.LiveEvent {
	return core.LiveEvent{AuctionID: l.AuctionID, LaneID: l.ID}
}
