package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/pricing"
	"github.com/jobdeck/adengine/internal/recorder"
	"github.com/jobdeck/adengine/internal/selector"
)

type testEnv struct {
	server *Server
	store  models.CampaignStore
	ledger *ledger.MemoryLedger
	mock   *analytics.MockAnalytics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := models.NewTestCampaignStore()
	l := ledger.NewMemoryLedger()
	p := pricing.New(pricing.DefaultRateTable())
	lm := lifecycle.NewManager(store, l, p, nil, nil, nil)
	mock := analytics.NewMockAnalytics()

	cfg := config.Config{TokenSecret: "test-secret", TokenTTL: time.Minute}
	s := NewServer(zap.NewNop(), cfg)
	s.Store = store
	s.Ledger = l
	s.Pricing = p
	s.Lifecycle = lm
	s.Selector = selector.New(store, l, lm, nil, nil)
	s.Recorder = recorder.New(store, l, p, mock, nil, lm, nil, nil)
	s.Aggregator = analytics.NewAggregator(mock, l, store)

	if err := store.InsertPlacement(models.Placement{ID: "homepage", Multiplier: 2.0}); err != nil {
		t.Fatal(err)
	}
	return &testEnv{server: s, store: store, ledger: l, mock: mock}
}

// addActiveCampaign inserts an active CPC campaign with one creative and a
// funded ledger entry.
func (e *testEnv) addActiveCampaign(t *testing.T, id int, budget float64) {
	t.Helper()
	now := time.Now()
	c := models.Campaign{
		ID:          id,
		Name:        "promo",
		Type:        models.TypeBanner,
		PricingMode: models.PricingCPC,
		Status:      models.StatusActive,
		Currency:    "USD",
		BudgetTotal: budget,
		StartDate:   now.AddDate(0, 0, -1),
		EndDate:     now.AddDate(0, 0, 7),
		CreatedAt:   now,
	}
	if err := e.store.InsertCampaign(&c); err != nil {
		t.Fatal(err)
	}
	if err := e.store.InsertCreative(&models.Creative{
		ID: id * 100, CampaignID: id, Active: true, Primary: true,
		DestinationURL: "https://jobs.example.com/postings/42",
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.ledger.Init(context.Background(), id, budget); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAdsEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	e.addActiveCampaign(t, 1, 10)

	rec := e.do(http.MethodPost, "/api/v1/ads", models.AdRequest{PlacementID: "homepage", ViewerID: "v1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ads status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp AdsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Ads) != 1 {
		t.Fatalf("ads = %d, want 1", len(resp.Ads))
	}
	ad := resp.Ads[0]
	if !strings.HasPrefix(ad.ImpressionURL, "/impression?t=") || !strings.HasPrefix(ad.ClickURL, "/click?t=") {
		t.Fatalf("event urls not signed: %+v", ad)
	}

	// the impression pixel renders and the click redirects
	rec = e.do(http.MethodGet, ad.ImpressionURL, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/gif" {
		t.Fatalf("impression status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = e.do(http.MethodGet, ad.ClickURL, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("click status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://jobs.example.com/postings/42" {
		t.Fatalf("redirect = %s", loc)
	}

	// the click was billed under CPC
	snap, err := e.ledger.Snapshot(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Spent != 0.40 {
		t.Fatalf("spent = %v, want 0.40", snap.Spent)
	}
}

func TestAdsUnknownPlacement(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/v1/ads", models.AdRequest{PlacementID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdsEmptyResultIsOK(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/v1/ads", models.AdRequest{PlacementID: "homepage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp AdsResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Ads) != 0 {
		t.Fatalf("ads = %d, want none", len(resp.Ads))
	}
}

func TestEventCallbacksRequireValidToken(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(http.MethodGet, "/impression", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/click?t=not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	c := models.Campaign{
		ID: 1, Name: "launch", Type: models.TypeBanner, PricingMode: models.PricingFlat,
		Status: models.StatusDraft, Currency: "USD", BudgetTotal: 500,
		PlacementID: "homepage",
		StartDate:   now.AddDate(0, 0, -1), EndDate: now.AddDate(0, 0, 2),
		CreatedAt: now,
	}
	if err := e.store.InsertCampaign(&c); err != nil {
		t.Fatal(err)
	}

	if rec := e.do(http.MethodPost, "/api/v1/campaigns/1/transition", transitionBody{Action: "submit"}); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(http.MethodPost, "/api/v1/campaigns/1/transition", transitionBody{Action: "approve"}); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := e.store.GetCampaign(1).Status; got != models.StatusActive {
		t.Fatalf("status = %s, want active", got)
	}

	// flat package charged up front: 50 base * 2.0 multiplier * 3 days
	snap, _ := e.ledger.Snapshot(context.Background(), 1)
	if snap.Spent != 300 {
		t.Fatalf("spent = %v, want 300", snap.Spent)
	}

	// pausing a paused campaign is rejected
	if rec := e.do(http.MethodPost, "/api/v1/campaigns/1/transition", transitionBody{Action: "pause"}); rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/api/v1/campaigns/1/transition", transitionBody{Action: "pause"}); rec.Code != http.StatusConflict {
		t.Fatalf("double pause status = %d, want 409", rec.Code)
	}
}

func TestFundEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.addActiveCampaign(t, 1, 100)

	rec := e.do(http.MethodPost, "/api/v1/campaigns/1/fund", fundBody{Amount: 50, Currency: "USD"})
	if rec.Code != http.StatusOK {
		t.Fatalf("fund status = %d: %s", rec.Code, rec.Body.String())
	}
	var snap ledger.Snapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Total != 150 || snap.Remaining != 150 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := e.store.GetCampaign(1).BudgetTotal; got != 150 {
		t.Fatalf("campaign budget = %v, want 150", got)
	}

	// wrong currency is rejected without touching the ledger
	rec = e.do(http.MethodPost, "/api/v1/campaigns/1/fund", fundBody{Amount: 50, Currency: "EUR"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatch status = %d, want 422", rec.Code)
	}

	rec = e.do(http.MethodPost, "/api/v1/campaigns/404/fund", fundBody{Amount: 50})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d, want 404", rec.Code)
	}
}

func TestBudgetEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.addActiveCampaign(t, 1, 100)
	if _, err := e.ledger.Debit(context.Background(), 1, 25); err != nil {
		t.Fatal(err)
	}

	rec := e.do(http.MethodGet, "/api/v1/campaigns/1/budget", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap ledger.Snapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Spent != 25 || snap.Remaining != 75 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()

	// missing type
	rec := e.do(http.MethodPost, "/api/v1/campaigns", models.Campaign{
		Name: "x", PricingMode: models.PricingCPC, BudgetTotal: 10,
		StartDate: now, EndDate: now.AddDate(0, 0, 1),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	// a valid create lands in draft even when the payload claims active
	rec = e.do(http.MethodPost, "/api/v1/campaigns", models.Campaign{
		ID: 7, Name: "x", Type: models.TypeBanner, PricingMode: models.PricingCPC,
		Status: models.StatusActive, BudgetTotal: 10,
		StartDate: now, EndDate: now.AddDate(0, 0, 1),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Campaign
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Status != models.StatusDraft {
		t.Fatalf("status = %s, want draft", created.Status)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.addActiveCampaign(t, 1, 100)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		_ = e.mock.RecordEvent(ctx, models.Event{Type: models.EventImpression, CampaignID: 1, Billable: true, Cost: 0.01})
	}
	for i := 0; i < 10; i++ {
		_ = e.mock.RecordEvent(ctx, models.Event{Type: models.EventClick, CampaignID: 1})
	}

	rec := e.do(http.MethodGet, "/api/v1/campaigns/1/analytics?days=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report analytics.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Metrics.CTR != 5.0 {
		t.Fatalf("ctr = %v, want 5.0", report.Metrics.CTR)
	}
	if report.Days != 7 {
		t.Fatalf("days = %d, want 7", report.Days)
	}

	if rec := e.do(http.MethodGet, "/api/v1/campaigns/404/analytics", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d, want 404", rec.Code)
	}
}

func TestCreativeSwapOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.addActiveCampaign(t, 1, 100)

	body := models.Creative{AssetURL: "https://cdn.example.com/new.png", Active: true, Primary: true}
	rec := e.do(http.MethodPut, fmt.Sprintf("/api/v1/creatives/%d", 100), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	cr := e.store.GetCreative(100)
	if cr.AssetURL != "https://cdn.example.com/new.png" {
		t.Fatalf("asset url = %s", cr.AssetURL)
	}
	// campaign untouched by the swap
	snap, _ := e.ledger.Snapshot(context.Background(), 1)
	if snap.Spent != 0 {
		t.Fatalf("spent = %v, want 0", snap.Spent)
	}
}
