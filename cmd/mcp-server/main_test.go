package main

import (
	"context"
	"testing"
	"time"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

func newInsightServer(t *testing.T) (*InsightServer, *analytics.MockAnalytics) {
	t.Helper()
	store := models.NewTestCampaignStore()
	l := ledger.NewMemoryLedger()
	mock := analytics.NewMockAnalytics()

	logger, err := observability.InitLoggerWithService("adengine-mcp-test")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	campaigns := []models.Campaign{
		{ID: 1, ClientID: 10, Name: "summer push", Type: models.TypeBanner, PricingMode: models.PricingCPC,
			Status: models.StatusActive, BudgetTotal: 100,
			StartDate: now.AddDate(0, 0, -5), EndDate: now.AddDate(0, 0, 5)},
		{ID: 2, ClientID: 20, Name: "fall teaser", Type: models.TypeBanner, PricingMode: models.PricingCPM,
			Status: models.StatusPaused, BudgetTotal: 50,
			StartDate: now.AddDate(0, 0, -5), EndDate: now.AddDate(0, 0, 5)},
	}
	for i := range campaigns {
		if err := store.InsertCampaign(&campaigns[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.InsertPlacement(models.Placement{ID: "homepage", Multiplier: 2.0}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := l.Init(ctx, 1, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Debit(ctx, 1, 25); err != nil {
		t.Fatal(err)
	}
	if err := l.Init(ctx, 2, 50); err != nil {
		t.Fatal(err)
	}

	return &InsightServer{
		store:      store,
		ledger:     l,
		aggregator: analytics.NewAggregator(mock, l, store),
		logger:     logger,
	}, mock
}

func TestListCampaignsReportsBalances(t *testing.T) {
	s, _ := newInsightServer(t)

	_, out, err := s.ListCampaigns(context.Background(), nil, ListCampaignsInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Campaigns) != 2 {
		t.Fatalf("campaigns = %d, want 2", len(out.Campaigns))
	}
	var active *CampaignSummary
	for i := range out.Campaigns {
		if out.Campaigns[i].ID == 1 {
			active = &out.Campaigns[i]
		}
	}
	if active == nil {
		t.Fatal("campaign 1 missing from listing")
	}
	if active.Spent != 25 || active.Remaining != 75 {
		t.Fatalf("balances = spent %v remaining %v, want 25/75", active.Spent, active.Remaining)
	}
}

func TestListCampaignsFilters(t *testing.T) {
	s, _ := newInsightServer(t)
	ctx := context.Background()

	_, out, err := s.ListCampaigns(ctx, nil, ListCampaignsInput{Status: models.StatusPaused})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Campaigns) != 1 || out.Campaigns[0].ID != 2 {
		t.Fatalf("paused filter got %+v", out.Campaigns)
	}

	_, out, err = s.ListCampaigns(ctx, nil, ListCampaignsInput{ClientID: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Campaigns) != 1 || out.Campaigns[0].ID != 1 {
		t.Fatalf("client filter got %+v", out.Campaigns)
	}
}

func TestCampaignAnalyticsTool(t *testing.T) {
	s, mock := newInsightServer(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := mock.RecordEvent(ctx, models.Event{
			CampaignID: 1, Type: models.EventImpression, Timestamp: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := mock.RecordEvent(ctx, models.Event{
		CampaignID: 1, Type: models.EventClick, Cost: 0.40, Billable: true, Timestamp: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	_, out, err := s.CampaignAnalytics(ctx, nil, CampaignAnalyticsInput{CampaignID: 1, Days: 7})
	if err != nil {
		t.Fatal(err)
	}
	if out.Report.Metrics.Impressions != 4 || out.Report.Metrics.Clicks != 1 {
		t.Fatalf("metrics = %+v", out.Report.Metrics)
	}
	if out.Report.Metrics.CTR != 25 {
		t.Fatalf("ctr = %v, want 25", out.Report.Metrics.CTR)
	}
	if out.Report.Budget.Remaining != 75 {
		t.Fatalf("remaining = %v, want 75", out.Report.Budget.Remaining)
	}

	if _, _, err := s.CampaignAnalytics(ctx, nil, CampaignAnalyticsInput{CampaignID: 404}); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
}

func TestListPlacementsTool(t *testing.T) {
	s, _ := newInsightServer(t)

	_, out, err := s.ListPlacements(context.Background(), nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Placements) != 1 || out.Placements[0].ID != "homepage" {
		t.Fatalf("placements = %+v", out.Placements)
	}
}
