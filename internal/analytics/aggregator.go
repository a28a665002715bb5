package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/models"
)

// Weighting of the campaign progress figure: elapsed time counts for 40%,
// budget consumption for 60%.
const (
	progressTimeWeight   = 0.4
	progressBudgetWeight = 0.6
)

// Metrics are the derived performance ratios for a campaign. All zero
// denominators yield zero rather than an error.
type Metrics struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	Spent           float64 `json:"spent"`
	ConversionValue float64 `json:"conversion_value"`
	CTR             float64 `json:"ctr"`  // clicks/impressions * 100
	CPC             float64 `json:"cpc"`  // spent/clicks
	CPM             float64 `json:"cpm"`  // spent/impressions * 1000
	ROAS            float64 `json:"roas"` // conversion value / spent
}

// Report is the full analytics answer for one campaign.
type Report struct {
	CampaignID int            `json:"campaign_id"`
	Days       int            `json:"days"`
	Metrics    Metrics        `json:"metrics"`
	Budget     ledger.Snapshot `json:"budget"`
	Progress   float64        `json:"progress"`
	Daily      []DailyMetrics `json:"daily,omitempty"`
}

// Derive computes the performance ratios from raw totals.
func Derive(t Totals) Metrics {
	m := Metrics{
		Impressions:     t.Impressions,
		Clicks:          t.Clicks,
		Conversions:     t.Conversions,
		Spent:           t.Spent,
		ConversionValue: t.ConversionValue,
	}
	if t.Impressions > 0 {
		m.CTR = float64(t.Clicks) / float64(t.Impressions) * 100
		m.CPM = t.Spent / float64(t.Impressions) * 1000
	}
	if t.Clicks > 0 {
		m.CPC = t.Spent / float64(t.Clicks)
	}
	if t.Spent > 0 {
		m.ROAS = t.ConversionValue / t.Spent
	}
	return m
}

// Progress combines the elapsed-time fraction and the budget-spent fraction
// into a single 0-100 figure.
func Progress(c *models.Campaign, snap ledger.Snapshot, now time.Time) float64 {
	var timeFrac float64
	if window := c.EndDate.Sub(c.StartDate); window > 0 {
		timeFrac = float64(now.Sub(c.StartDate)) / float64(window)
	}
	timeFrac = clamp01(timeFrac)

	var budgetFrac float64
	if snap.Total > 0 {
		budgetFrac = snap.Spent / snap.Total
	}
	budgetFrac = clamp01(budgetFrac)

	p := (progressTimeWeight*timeFrac + progressBudgetWeight*budgetFrac) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Aggregator assembles campaign reports. It only reads: events from the
// analytics store, balances from the ledger. It never mutates either.
type Aggregator struct {
	svc    Service
	ledger ledger.Ledger
	store  models.CampaignStore
}

// NewAggregator wires an aggregator.
func NewAggregator(svc Service, l ledger.Ledger, store models.CampaignStore) *Aggregator {
	return &Aggregator{svc: svc, ledger: l, store: store}
}

// CampaignReport builds the analytics report for one campaign over the
// trailing number of days.
func (a *Aggregator) CampaignReport(ctx context.Context, campaignID, days int) (*Report, error) {
	c := a.store.GetCampaign(campaignID)
	if c == nil {
		return nil, models.ErrNotFound
	}
	if days <= 0 {
		days = 30
	}

	totals, err := a.svc.CampaignTotals(ctx, campaignID, days)
	if err != nil {
		return nil, fmt.Errorf("campaign totals: %w", err)
	}

	snap, err := a.ledger.Snapshot(ctx, campaignID)
	if err != nil && !errors.Is(err, ledger.ErrUnknownCampaign) {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}

	report := &Report{
		CampaignID: campaignID,
		Days:       days,
		Metrics:    Derive(totals),
		Budget:     snap,
		Progress:   Progress(c, snap, time.Now()),
	}

	if daily, err := a.svc.DailyMetrics(ctx, campaignID, days); err == nil {
		report.Daily = daily
	}
	return report, nil
}
