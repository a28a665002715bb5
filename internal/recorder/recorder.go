// Package recorder turns raw ad interactions into immutable events. Billing
// outcomes here are data on the event (billable or not, and why not), never
// errors: a duplicate click or an exhausted budget is still a recorded fact.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
	"github.com/jobdeck/adengine/internal/pricing"
	"github.com/jobdeck/adengine/internal/targeting"
)

// nowFn allows tests to control the clock.
var nowFn = time.Now

// DefaultDedupWindow is used when no window is configured.
const DefaultDedupWindow = 2 * time.Minute

// Deduper answers whether a (viewer, creative, placement) tuple has already
// produced an event of the given type inside the window. db.RedisStore is
// the production implementation.
type Deduper interface {
	MarkEventSeen(ctx context.Context, eventType, viewerID string, creativeID int, placementID string, window time.Duration) (bool, error)
}

var _ Deduper = (*db.RedisStore)(nil)

// EventRequest carries the fields common to every interaction.
type EventRequest struct {
	CampaignID  int
	CreativeID  int
	PlacementID string
	ViewerID    string
	PageURL     string
	UserAgent   string
	DeviceType  string
	Country     string
}

// ConversionRequest adds the conversion-specific fields.
type ConversionRequest struct {
	EventRequest
	ConversionType string
	Value          float64
	Currency       string
}

// Result is the billing outcome of one recorded event.
type Result struct {
	EventID   string  `json:"event_id"`
	Billable  bool    `json:"billable"`
	Duplicate bool    `json:"duplicate"`
	Cost      float64 `json:"cost"`
}

// Recorder owns the record pipeline: dedup, price, debit, persist.
type Recorder struct {
	store     models.CampaignStore
	ledger    ledger.Ledger
	pricing   *pricing.Model
	analytics analytics.Service
	dedup     Deduper
	lifecycle *lifecycle.Manager
	redis     *db.RedisStore
	metrics   observability.MetricsRegistry
	logger    *zap.Logger

	dedupWindow time.Duration
}

// New wires a recorder. The redis store may be nil (daily counters are then
// skipped); a nil deduper disables duplicate detection.
func New(store models.CampaignStore, l ledger.Ledger, p *pricing.Model, svc analytics.Service, rs *db.RedisStore, lm *lifecycle.Manager, metrics observability.MetricsRegistry, logger *zap.Logger) *Recorder {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:       store,
		ledger:      l,
		pricing:     p,
		analytics:   svc,
		lifecycle:   lm,
		redis:       rs,
		metrics:     metrics,
		logger:      logger,
		dedupWindow: DefaultDedupWindow,
	}
	if rs != nil {
		r.dedup = rs
	}
	return r
}

// SetDedupWindow overrides the duplicate-detection window.
func (r *Recorder) SetDedupWindow(d time.Duration) {
	if d > 0 {
		r.dedupWindow = d
	}
}

// SetDeduper replaces the dedup backend.
func (r *Recorder) SetDeduper(d Deduper) {
	r.dedup = d
}

// RecordImpression records one ad view. Under CPM pricing a first-seen,
// non-bot impression is billed.
func (r *Recorder) RecordImpression(ctx context.Context, req EventRequest) (Result, error) {
	return r.record(ctx, models.EventImpression, req)
}

// RecordClick records one click-through. Under CPC pricing a first-seen,
// non-bot click is billed. Clicks are deduplicated only against other
// clicks; a prior impression never suppresses one.
func (r *Recorder) RecordClick(ctx context.Context, req EventRequest) (Result, error) {
	return r.record(ctx, models.EventClick, req)
}

func (r *Recorder) record(ctx context.Context, eventType string, req EventRequest) (Result, error) {
	c := r.store.GetCampaign(req.CampaignID)
	if c == nil {
		return Result{}, fmt.Errorf("campaign %d: %w", req.CampaignID, models.ErrNotFound)
	}
	if cr := r.store.GetCreative(req.CreativeID); cr == nil || cr.CampaignID != c.ID {
		return Result{}, fmt.Errorf("creative %d: %w", req.CreativeID, models.ErrNotFound)
	}

	ev := r.newEvent(eventType, c, req)
	billable := true
	duplicate := false

	if targeting.IsBot(req.UserAgent) {
		billable = false
	}

	if billable && r.dedup != nil {
		firstSeen, err := r.dedup.MarkEventSeen(ctx, eventType, req.ViewerID, req.CreativeID, req.PlacementID, r.dedupWindow)
		if err != nil {
			// With dedup unverifiable the event still counts; the ledger
			// alone guards against overspend.
			r.logger.Warn("dedup check failed", zap.Error(err), zap.String("event_type", eventType))
		} else if !firstSeen {
			billable = false
			duplicate = true
			r.metrics.IncrementDuplicateEvent(eventType)
		}
	}

	if billable {
		cost := r.pricing.EventCost(c, eventType)
		if cost > 0 {
			remaining, err := r.ledger.Debit(ctx, c.ID, cost)
			switch {
			case err == nil:
				ev.Cost = cost
				r.metrics.IncrementDebit("ok")
				r.metrics.SetSpendTotal(strconv.Itoa(c.ID), c.BudgetTotal-remaining)
				r.addDailySpend(ctx, c.ID, cost)
			case errors.Is(err, ledger.ErrInsufficientBudget), errors.Is(err, ledger.ErrUnknownCampaign):
				billable = false
				r.metrics.IncrementDebit("insufficient")
				r.autoComplete(ctx, c)
			default:
				return Result{}, fmt.Errorf("debit campaign %d: %w", c.ID, err)
			}
		} else {
			// No charge under this pricing mode; the event is recorded as
			// non-billable traffic.
			billable = false
		}
	}

	ev.Billable = billable
	r.persist(ctx, ev)
	r.metrics.IncrementEvent(eventType, billable)

	return Result{EventID: ev.ID, Billable: billable, Duplicate: duplicate, Cost: ev.Cost}, nil
}

// RecordConversion records an attributed conversion. Conversions are never
// billed; their value feeds ROAS.
func (r *Recorder) RecordConversion(ctx context.Context, req ConversionRequest) (Result, error) {
	c := r.store.GetCampaign(req.CampaignID)
	if c == nil {
		return Result{}, fmt.Errorf("campaign %d: %w", req.CampaignID, models.ErrNotFound)
	}
	if err := pricing.ValidateCurrency(c, req.Currency); err != nil {
		return Result{}, err
	}

	ev := r.newEvent(models.EventConversion, c, req.EventRequest)
	ev.ConversionType = req.ConversionType
	ev.ConversionValue = req.Value

	r.persist(ctx, ev)
	r.metrics.IncrementEvent(models.EventConversion, false)

	return Result{EventID: ev.ID}, nil
}

// RecordServe persists a serve event for one delivered ad. Serves are pure
// delivery telemetry, never billed.
func (r *Recorder) RecordServe(ctx context.Context, ad models.SelectedAd, req EventRequest) {
	req.CampaignID = ad.Campaign.ID
	req.CreativeID = ad.Creative.ID
	ev := r.newEvent(models.EventServe, ad.Campaign, req)
	r.persist(ctx, ev)
	r.metrics.IncrementEvent(models.EventServe, false)
}

func (r *Recorder) newEvent(eventType string, c *models.Campaign, req EventRequest) models.Event {
	deviceType := req.DeviceType
	if deviceType == "" && req.UserAgent != "" {
		deviceType = targeting.DeviceFromUA(req.UserAgent)
	}
	return models.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		CampaignID:  c.ID,
		CreativeID:  req.CreativeID,
		PlacementID: req.PlacementID,
		ViewerID:    req.ViewerID,
		PageURL:     req.PageURL,
		DeviceType:  deviceType,
		Country:     req.Country,
		Timestamp:   nowFn(),
		Currency:    c.Currency,
	}
}

// persist writes the event row and bumps the daily counters. Failures are
// logged and counted; by this point any debit has already happened and must
// not be rolled back.
func (r *Recorder) persist(ctx context.Context, ev models.Event) {
	if err := r.analytics.RecordEvent(ctx, ev); err != nil {
		r.logger.Error("event persist failed",
			zap.String("event_type", ev.Type),
			zap.Int("campaign_id", ev.CampaignID),
			zap.Error(err),
		)
	}
	if r.redis != nil {
		if err := r.redis.IncrementEventCounter(ctx, ev.CampaignID, ev.Type); err != nil {
			r.logger.Warn("daily counter failed", zap.Error(err))
		}
	}
}

func (r *Recorder) addDailySpend(ctx context.Context, campaignID int, amount float64) {
	if r.redis == nil {
		return
	}
	if err := r.redis.AddDailySpend(ctx, campaignID, amount); err != nil {
		r.logger.Warn("daily spend counter failed", zap.Error(err))
	}
}

// autoComplete ends a campaign whose debit was just rejected. A remainder
// too small to fund the next event can never be spent, so the campaign is
// treated as exhausted.
func (r *Recorder) autoComplete(ctx context.Context, c *models.Campaign) {
	if r.lifecycle == nil {
		return
	}
	r.lifecycle.CheckAutoComplete(ctx, c, nowFn(), 0)
}
