package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	golog "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
	core "github.com/textileio/lane-core/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/auctioneer"
	"github.com/textileio/lane-core/cmd/auctioneerd/audit"
	"github.com/textileio/lane-core/cmd/auctioneerd/eligibility"
	"github.com/textileio/lane-core/cmd/common"
)

var (
	log = golog.Logger("auctioneer/api")
)

// ActorHeader carries the identity recorded in the audit log for a command.
const ActorHeader = "X-Actor"

const defaultActor = "api"

// Service provides scoped access to the auctioneer.
type Service interface {
	CreateAuction(p auctioneer.AuctionParams, actor string) (core.Auction, error)
	AddLane(auctionID core.AuctionID, p auctioneer.LaneParams, actor string) (core.Lane, error)
	PublishAuction(auctionID core.AuctionID, actor string) (core.Auction, error)
	CancelAuction(auctionID core.AuctionID, reason, actor string) (core.Auction, error)
	PauseAuction(auctionID core.AuctionID, actor string) (core.Auction, error)
	ResumeAuction(auctionID core.AuctionID, actor string) (core.Auction, error)
	ExtendAuctionLanes(auctionID core.AuctionID, by time.Duration, laneIDs []core.LaneID, actor string) ([]core.Lane, error)
	EndAuctionNow(auctionID core.AuctionID, actor string) (core.Auction, error)
	CreateOrRefreshAlternateQueue(auctionID core.AuctionID, actor string) ([]*core.LaneQueue, error)

	StartLane(laneID core.LaneID, actor string) (core.Lane, error)
	ForceCloseLane(laneID core.LaneID, actor string) (core.Lane, error)
	PlaceBid(laneID core.LaneID, vendorID core.VendorID, amount decimal.Decimal) (core.Bid, error)
	AwardLane(laneID core.LaneID, vendorID core.VendorID, price decimal.Decimal, rank int, reason, actor string) (core.Award, error)
	ManualQueueAction(laneID core.LaneID, action core.QueueAction, p core.QueueActionParams, actor string) (*core.LaneQueue, error)
	ResolveFailedAward(laneID core.LaneID, res core.Resolution, actor string) (auctioneer.ResolutionResult, error)

	UpdateAwardAcceptance(awardID core.AwardID, action core.AcceptanceAction, p core.AcceptancePayload, actor string) (core.Award, error)
	CreatePlacementSLA(indentID string, awardID core.AwardID, actor string) (core.PlacementTracker, error)
	ConfirmVehiclePlacement(trackerID core.TrackerID, actor string) (core.PlacementTracker, error)
	TriggerSpotAuction(trackerID core.TrackerID, reason, actor string) (core.SpotAuction, error)
	PlaceSpotBid(spotID core.SpotAuctionID, vendorID core.VendorID, amount decimal.Decimal) (core.SpotBid, error)

	GetAuction(id core.AuctionID) (core.Auction, error)
	ListAuctions() []core.Auction
	GetRuleset(auctionID core.AuctionID) (core.Ruleset, error)
	GetLanesByAuction(auctionID core.AuctionID) ([]core.Lane, error)
	GetLane(id core.LaneID) (core.Lane, error)
	GetBidsByLane(laneID core.LaneID) ([]core.Bid, error)
	GetAward(id core.AwardID) (core.Award, error)
	GetAwardChain(laneID core.LaneID) ([]core.Award, error)
	GetAlternateQueueForLane(laneID core.LaneID) (*core.LaneQueue, error)
	GetAlternateQueueMetrics(laneID core.LaneID) (core.QueueMetrics, error)
	GetFailedAwardContext(laneID core.LaneID) (core.FailedAwardContext, error)
	GetVendorQueueStatus(vendorID core.VendorID) []core.VendorQueueStatus
	GetPlacement(id core.TrackerID) (core.PlacementTracker, error)
	GetSpotAuction(id core.SpotAuctionID) (core.SpotAuction, error)
	ListNotifications(vendorID core.VendorID) []core.Notification
	AuditLog(ctx context.Context, q audit.Query) ([]audit.Entry, error)

	RegisterVendor(v eligibility.Vendor, actor string) error
	GetVendor(id core.VendorID) (eligibility.Vendor, eligibility.Result, error)
	ListVendors() []eligibility.Vendor
	SetVendorBlocked(id core.VendorID, blocked bool, actor string) error
	SetVendorSuspended(id core.VendorID, suspended bool, actor string) error
	SetVendorPerformanceScore(id core.VendorID, score int, actor string) error
	OpenDispute(d eligibility.Dispute, actor string) error
	SetDisputeStatus(id string, status eligibility.DisputeStatus, actor string) error
}

var _ Service = (*auctioneer.Auctioneer)(nil)

// NewServer returns a new http server for auctioneer commands and queries.
func NewServer(listenAddr string, service Service) (*http.Server, error) {
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           common.RecoverHandler(log, createMux(service)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("stopping http server: %s", err)
		}
	}()

	log.Infof("http server started at %s", listenAddr)
	return httpServer, nil
}

func createMux(service Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", getOnly(healthHandler))
	// allow both with and without trailing slash
	auctions := auctionsHandler(service)
	mux.HandleFunc("/auctions", auctions)
	mux.HandleFunc("/auctions/", auctions)
	mux.HandleFunc("/lanes/", lanesHandler(service))
	mux.HandleFunc("/awards/", awardsHandler(service))
	mux.HandleFunc("/placements/", placementsHandler(service))
	mux.HandleFunc("/spot-auctions/", spotAuctionsHandler(service))
	vendors := vendorsHandler(service)
	mux.HandleFunc("/vendors", vendors)
	mux.HandleFunc("/vendors/", vendors)
	disputes := disputesHandler(service)
	mux.HandleFunc("/disputes", disputes)
	mux.HandleFunc("/disputes/", disputes)
	mux.HandleFunc("/notifications", getOnly(notificationsHandler(service)))
	mux.HandleFunc("/audit", getOnly(auditHandler(service)))
	return mux
}

func getOnly(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpError(w, "only GET method is allowed", http.StatusMethodNotAllowed)
			return
		}
		f(w, r)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type rulesetRequest struct {
	MinBidDecrement                decimal.Decimal     `json:"min_bid_decrement"`
	TimerExtensionThresholdSeconds int64               `json:"timer_extension_threshold_seconds"`
	TimerExtensionSeconds          int64               `json:"timer_extension_seconds"`
	AllowRankVisibility            bool                `json:"allow_rank_visibility"`
	Threshold                      *core.ThresholdSpec `json:"threshold,omitempty"`
}

type auctionRequest struct {
	Name    string           `json:"name"`
	Type    core.AuctionType `json:"type"`
	Ruleset rulesetRequest   `json:"ruleset"`
}

type laneRequest struct {
	Name                 string          `json:"name"`
	SequenceOrder        int             `json:"sequence_order"`
	BasePrice            decimal.Decimal `json:"base_price"`
	MinBidDecrement      decimal.Decimal `json:"min_bid_decrement"`
	TimerDurationSeconds int64           `json:"timer_duration_seconds"`
}

type extendRequest struct {
	BySeconds int64         `json:"by_seconds"`
	LaneIDs   []core.LaneID `json:"lane_ids"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func auctionsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) == 1 {
			switch r.Method {
			case http.MethodGet:
				writeJSON(w, http.StatusOK, service.ListAuctions())
			case http.MethodPost:
				var req auctionRequest
				if !decode(w, r, &req) {
					return
				}
				auction, err := service.CreateAuction(auctioneer.AuctionParams{
					Name: req.Name,
					Type: req.Type,
					Ruleset: core.Ruleset{
						MinBidDecrement:         req.Ruleset.MinBidDecrement,
						TimerExtensionThreshold: seconds(req.Ruleset.TimerExtensionThresholdSeconds),
						TimerExtension:          seconds(req.Ruleset.TimerExtensionSeconds),
						AllowRankVisibility:     req.Ruleset.AllowRankVisibility,
						Threshold:               req.Ruleset.Threshold,
					},
				}, actor(r))
				respond(w, http.StatusCreated, auction, err)
			default:
				httpError(w, "only GET and POST methods are allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		id := core.AuctionID(parts[1])
		if len(parts) == 2 {
			if !allow(w, r, http.MethodGet) {
				return
			}
			auction, err := service.GetAuction(id)
			respond(w, http.StatusOK, auction, err)
			return
		}
		if len(parts) > 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}

		switch parts[2] {
		case "lanes":
			switch r.Method {
			case http.MethodGet:
				lanes, err := service.GetLanesByAuction(id)
				respond(w, http.StatusOK, lanes, err)
			case http.MethodPost:
				var req laneRequest
				if !decode(w, r, &req) {
					return
				}
				lane, err := service.AddLane(id, auctioneer.LaneParams{
					Name:            req.Name,
					SequenceOrder:   req.SequenceOrder,
					BasePrice:       req.BasePrice,
					MinBidDecrement: req.MinBidDecrement,
					TimerDuration:   seconds(req.TimerDurationSeconds),
				}, actor(r))
				respond(w, http.StatusCreated, lane, err)
			default:
				httpError(w, "only GET and POST methods are allowed", http.StatusMethodNotAllowed)
			}
		case "ruleset":
			if !allow(w, r, http.MethodGet) {
				return
			}
			rs, err := service.GetRuleset(id)
			respond(w, http.StatusOK, rs, err)
		case "publish":
			if !allow(w, r, http.MethodPost) {
				return
			}
			auction, err := service.PublishAuction(id, actor(r))
			respond(w, http.StatusOK, auction, err)
		case "cancel":
			var req reasonRequest
			if !allow(w, r, http.MethodPost) || !decodeOptional(w, r, &req) {
				return
			}
			auction, err := service.CancelAuction(id, req.Reason, actor(r))
			respond(w, http.StatusOK, auction, err)
		case "pause":
			if !allow(w, r, http.MethodPost) {
				return
			}
			auction, err := service.PauseAuction(id, actor(r))
			respond(w, http.StatusOK, auction, err)
		case "resume":
			if !allow(w, r, http.MethodPost) {
				return
			}
			auction, err := service.ResumeAuction(id, actor(r))
			respond(w, http.StatusOK, auction, err)
		case "extend":
			var req extendRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			lanes, err := service.ExtendAuctionLanes(id, seconds(req.BySeconds), req.LaneIDs, actor(r))
			respond(w, http.StatusOK, lanes, err)
		case "end":
			if !allow(w, r, http.MethodPost) {
				return
			}
			auction, err := service.EndAuctionNow(id, actor(r))
			respond(w, http.StatusOK, auction, err)
		case "queues":
			if !allow(w, r, http.MethodPost) {
				return
			}
			queues, err := service.CreateOrRefreshAlternateQueue(id, actor(r))
			respond(w, http.StatusOK, queues, err)
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

type bidRequest struct {
	VendorID core.VendorID   `json:"vendor_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type awardRequest struct {
	VendorID core.VendorID   `json:"vendor_id"`
	Price    decimal.Decimal `json:"price"`
	Rank     int             `json:"rank"`
	Reason   string          `json:"reason"`
}

type queueActionRequest struct {
	Action    core.QueueAction    `json:"action"`
	VendorID  core.VendorID       `json:"vendor_id"`
	Threshold *core.ThresholdSpec `json:"threshold"`
	Reason    string              `json:"reason"`
}

type resolutionRequest struct {
	Action          core.ResolutionAction `json:"action"`
	VendorID        core.VendorID         `json:"vendor_id"`
	Price           decimal.NullDecimal   `json:"price"`
	DurationSeconds int64                 `json:"duration_seconds"`
	Reason          string                `json:"reason"`
}

func lanesHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) < 2 {
			httpError(w, "missing lane id", http.StatusNotFound)
			return
		}
		id := core.LaneID(parts[1])
		action := strings.Join(parts[2:], "/")

		switch action {
		case "":
			if !allow(w, r, http.MethodGet) {
				return
			}
			lane, err := service.GetLane(id)
			respond(w, http.StatusOK, lane, err)
		case "start":
			if !allow(w, r, http.MethodPost) {
				return
			}
			lane, err := service.StartLane(id, actor(r))
			respond(w, http.StatusOK, lane, err)
		case "close":
			if !allow(w, r, http.MethodPost) {
				return
			}
			lane, err := service.ForceCloseLane(id, actor(r))
			respond(w, http.StatusOK, lane, err)
		case "bids":
			switch r.Method {
			case http.MethodGet:
				bids, err := service.GetBidsByLane(id)
				respond(w, http.StatusOK, bids, err)
			case http.MethodPost:
				var req bidRequest
				if !decode(w, r, &req) {
					return
				}
				bid, err := service.PlaceBid(id, req.VendorID, req.Amount)
				respond(w, http.StatusCreated, bid, err)
			default:
				httpError(w, "only GET and POST methods are allowed", http.StatusMethodNotAllowed)
			}
		case "award":
			var req awardRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			aw, err := service.AwardLane(id, req.VendorID, req.Price, req.Rank, req.Reason, actor(r))
			respond(w, http.StatusCreated, aw, err)
		case "awards":
			if !allow(w, r, http.MethodGet) {
				return
			}
			chain, err := service.GetAwardChain(id)
			respond(w, http.StatusOK, chain, err)
		case "queue":
			if !allow(w, r, http.MethodGet) {
				return
			}
			q, err := service.GetAlternateQueueForLane(id)
			respond(w, http.StatusOK, q, err)
		case "queue/metrics":
			if !allow(w, r, http.MethodGet) {
				return
			}
			m, err := service.GetAlternateQueueMetrics(id)
			respond(w, http.StatusOK, m, err)
		case "queue/actions":
			var req queueActionRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			q, err := service.ManualQueueAction(id, req.Action, core.QueueActionParams{
				VendorID:  req.VendorID,
				Threshold: req.Threshold,
				Reason:    req.Reason,
			}, actor(r))
			respond(w, http.StatusOK, q, err)
		case "failed-award":
			if !allow(w, r, http.MethodGet) {
				return
			}
			fc, err := service.GetFailedAwardContext(id)
			respond(w, http.StatusOK, fc, err)
		case "failed-award/resolve":
			var req resolutionRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			res, err := service.ResolveFailedAward(id, core.Resolution{
				Action:   req.Action,
				VendorID: req.VendorID,
				Price:    req.Price,
				Duration: seconds(req.DurationSeconds),
				Reason:   req.Reason,
			}, actor(r))
			respond(w, http.StatusOK, res, err)
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

type acceptanceRequest struct {
	Action       core.AcceptanceAction     `json:"action"`
	Reason       string                    `json:"reason"`
	Modification *core.ModificationRequest `json:"modification"`
}

type placementRequest struct {
	IndentID string `json:"indent_id"`
}

func awardsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) < 2 || len(parts) > 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		id := core.AwardID(parts[1])
		if len(parts) == 2 {
			if !allow(w, r, http.MethodGet) {
				return
			}
			aw, err := service.GetAward(id)
			respond(w, http.StatusOK, aw, err)
			return
		}

		switch parts[2] {
		case "response":
			var req acceptanceRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			aw, err := service.UpdateAwardAcceptance(id, req.Action, core.AcceptancePayload{
				Reason:       req.Reason,
				Modification: req.Modification,
			}, actor(r))
			respond(w, http.StatusOK, aw, err)
		case "placement":
			var req placementRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			pt, err := service.CreatePlacementSLA(req.IndentID, id, actor(r))
			respond(w, http.StatusCreated, pt, err)
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

func placementsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) < 2 || len(parts) > 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		id := core.TrackerID(parts[1])
		if len(parts) == 2 {
			if !allow(w, r, http.MethodGet) {
				return
			}
			pt, err := service.GetPlacement(id)
			respond(w, http.StatusOK, pt, err)
			return
		}

		switch parts[2] {
		case "confirm":
			if !allow(w, r, http.MethodPost) {
				return
			}
			pt, err := service.ConfirmVehiclePlacement(id, actor(r))
			respond(w, http.StatusOK, pt, err)
		case "spot-auction":
			var req reasonRequest
			if !allow(w, r, http.MethodPost) || !decodeOptional(w, r, &req) {
				return
			}
			sa, err := service.TriggerSpotAuction(id, req.Reason, actor(r))
			respond(w, http.StatusCreated, sa, err)
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

func spotAuctionsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) < 2 || len(parts) > 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		id := core.SpotAuctionID(parts[1])
		if len(parts) == 2 {
			if !allow(w, r, http.MethodGet) {
				return
			}
			sa, err := service.GetSpotAuction(id)
			respond(w, http.StatusOK, sa, err)
			return
		}
		if parts[2] != "bids" {
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		var req bidRequest
		if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
			return
		}
		bid, err := service.PlaceSpotBid(id, req.VendorID, req.Amount)
		respond(w, http.StatusCreated, bid, err)
	}
}

type vendorResponse struct {
	eligibility.Vendor
	Eligibility eligibility.Result `json:"eligibility"`
}

type flagRequest struct {
	Value bool `json:"value"`
}

type scoreRequest struct {
	Score int `json:"score"`
}

func vendorsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		if len(parts) == 1 {
			switch r.Method {
			case http.MethodGet:
				writeJSON(w, http.StatusOK, service.ListVendors())
			case http.MethodPost:
				var v eligibility.Vendor
				if !decode(w, r, &v) {
					return
				}
				if err := service.RegisterVendor(v, actor(r)); err != nil {
					writeError(w, err)
					return
				}
				getVendor(w, service, v.ID, http.StatusCreated)
			default:
				httpError(w, "only GET and POST methods are allowed", http.StatusMethodNotAllowed)
			}
			return
		}
		if len(parts) > 3 {
			httpError(w, "not found", http.StatusNotFound)
			return
		}

		id := core.VendorID(parts[1])
		if len(parts) == 2 {
			if !allow(w, r, http.MethodGet) {
				return
			}
			getVendor(w, service, id, http.StatusOK)
			return
		}

		var err error
		switch parts[2] {
		case "queues":
			if allow(w, r, http.MethodGet) {
				writeJSON(w, http.StatusOK, service.GetVendorQueueStatus(id))
			}
			return
		case "notifications":
			if allow(w, r, http.MethodGet) {
				writeJSON(w, http.StatusOK, service.ListNotifications(id))
			}
			return
		case "blocked":
			var req flagRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			err = service.SetVendorBlocked(id, req.Value, actor(r))
		case "suspended":
			var req flagRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			err = service.SetVendorSuspended(id, req.Value, actor(r))
		case "performance-score":
			var req scoreRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			err = service.SetVendorPerformanceScore(id, req.Score, actor(r))
		default:
			httpError(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		getVendor(w, service, id, http.StatusOK)
	}
}

func getVendor(w http.ResponseWriter, service Service, id core.VendorID, status int) {
	v, res, err := service.GetVendor(id)
	respond(w, status, vendorResponse{Vendor: v, Eligibility: res}, err)
}

type disputeStatusRequest struct {
	Status eligibility.DisputeStatus `json:"status"`
}

func disputesHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r.URL.Path)
		switch {
		case len(parts) == 1:
			var d eligibility.Dispute
			if !allow(w, r, http.MethodPost) || !decode(w, r, &d) {
				return
			}
			if d.Status == "" {
				d.Status = eligibility.DisputeNew
			}
			respond(w, http.StatusCreated, d, service.OpenDispute(d, actor(r)))
		case len(parts) == 3 && parts[2] == "status":
			var req disputeStatusRequest
			if !allow(w, r, http.MethodPost) || !decode(w, r, &req) {
				return
			}
			if err := service.SetDisputeStatus(parts[1], req.Status, actor(r)); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			httpError(w, "not found", http.StatusNotFound)
		}
	}
}

func notificationsHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := core.VendorID(r.URL.Query().Get("vendor_id"))
		writeJSON(w, http.StatusOK, service.ListNotifications(vendorID))
	}
}

func auditHandler(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		q := audit.Query{
			EntityType: params.Get("entity_type"),
			EntityID:   params.Get("entity_id"),
			Offset:     params.Get("offset"),
		}
		if s := params.Get("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil {
				httpError(w, fmt.Sprintf("parsing limit: %s", err), http.StatusBadRequest)
				return
			}
			q.Limit = limit
		}
		switch params.Get("order") {
		case "", "asc":
		case "desc":
			q.Order = audit.OrderDescending
		default:
			httpError(w, fmt.Sprintf("unknown order %q", params.Get("order")), http.StatusBadRequest)
			return
		}
		entries, err := service.AuditLog(r.Context(), q)
		respond(w, http.StatusOK, entries, err)
	}
}

// pathParts returns the non-empty segments of path.
func pathParts(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		httpError(w, fmt.Sprintf("only %s method is allowed", method), http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func actor(r *http.Request) string {
	if a := r.Header.Get(ActorHeader); a != "" {
		return a
	}
	return defaultActor
}

func seconds(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpError(w, fmt.Sprintf("decoding request: %s", err), http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional is decode for commands whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, v)
}

func respond(w http.ResponseWriter, status int, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		httpError(w, fmt.Sprintf("json encoding: %s", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Errorf("write failed: %v", err)
	}
}

// statusOf maps the engine error taxonomy to an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrExpired):
		return http.StatusGone
	case errors.Is(err, core.ErrIneligibleVendor):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrQueueExhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %s", err)
	}
	httpError(w, err.Error(), status)
}

func httpError(w http.ResponseWriter, err string, status int) {
	log.Debugf("request error: %s", err)
	http.Error(w, err, status)
}
