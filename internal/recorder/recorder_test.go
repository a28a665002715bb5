package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/pricing"
)

const botUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type env struct {
	store    models.CampaignStore
	ledger   *ledger.MemoryLedger
	mock     *analytics.MockAnalytics
	recorder *Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rs := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:    context.Background(),
	}

	store := models.NewTestCampaignStore()
	l := ledger.NewMemoryLedger()
	mock := analytics.NewMockAnalytics()
	p := pricing.New(pricing.DefaultRateTable())
	lm := lifecycle.NewManager(store, l, p, nil, nil, nil)
	return &env{
		store:    store,
		ledger:   l,
		mock:     mock,
		recorder: New(store, l, p, mock, rs, lm, nil, nil),
	}
}

// addCampaign inserts an active campaign with one creative and a funded
// ledger entry.
func (e *env) addCampaign(t *testing.T, id int, pricingMode string, budget float64) {
	t.Helper()
	now := time.Now()
	c := models.Campaign{
		ID:          id,
		Type:        models.TypeBanner,
		PricingMode: pricingMode,
		Status:      models.StatusActive,
		Currency:    "USD",
		BudgetTotal: budget,
		StartDate:   now.AddDate(0, 0, -1),
		EndDate:     now.AddDate(0, 0, 7),
	}
	if err := e.store.InsertCampaign(&c); err != nil {
		t.Fatal(err)
	}
	if err := e.store.InsertCreative(&models.Creative{ID: id * 100, CampaignID: id, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := e.ledger.Init(context.Background(), id, budget); err != nil {
		t.Fatal(err)
	}
}

func clickReq(campaignID int) EventRequest {
	return EventRequest{
		CampaignID:  campaignID,
		CreativeID:  campaignID * 100,
		PlacementID: "homepage",
		ViewerID:    "viewer-1",
	}
}

func TestClickBilledUnderCPC(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)

	res, err := e.recorder.RecordClick(context.Background(), clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Billable || res.Duplicate {
		t.Fatalf("result = %+v, want billable first click", res)
	}
	if res.Cost != 0.40 {
		t.Fatalf("cost = %v, want 0.40 for banner cpc", res.Cost)
	}

	snap, err := e.ledger.Snapshot(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Spent != 0.40 {
		t.Fatalf("spent = %v, want 0.40", snap.Spent)
	}
}

func TestDuplicateClickNeverDoubleCharges(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)
	ctx := context.Background()

	if _, err := e.recorder.RecordClick(ctx, clickReq(1)); err != nil {
		t.Fatal(err)
	}
	res, err := e.recorder.RecordClick(ctx, clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Billable || !res.Duplicate {
		t.Fatalf("result = %+v, want non-billable duplicate", res)
	}

	snap, _ := e.ledger.Snapshot(ctx, 1)
	if snap.Spent != 0.40 {
		t.Fatalf("spent = %v, duplicate must not charge", snap.Spent)
	}
	// both events are recorded
	if got := len(e.mock.EventsOfType(models.EventClick)); got != 2 {
		t.Fatalf("persisted clicks = %d, want 2", got)
	}
}

func TestImpressionBilledUnderCPM(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPM, 10)

	res, err := e.recorder.RecordImpression(context.Background(), clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Billable {
		t.Fatalf("result = %+v, want billable impression", res)
	}
	if res.Cost != 0.01 {
		t.Fatalf("cost = %v, want 0.01 per impression at 5 CPM", res.Cost)
	}

	// clicks on a CPM campaign cost nothing
	res, err = e.recorder.RecordClick(context.Background(), clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Billable || res.Cost != 0 {
		t.Fatalf("cpm click = %+v, want free", res)
	}
}

func TestClickNotDedupedAgainstImpression(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)
	ctx := context.Background()

	if _, err := e.recorder.RecordImpression(ctx, clickReq(1)); err != nil {
		t.Fatal(err)
	}
	res, err := e.recorder.RecordClick(ctx, clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Billable || res.Duplicate {
		t.Fatalf("click after impression = %+v, want billable", res)
	}
}

func TestInsufficientBudgetAutoCompletes(t *testing.T) {
	e := newEnv(t)
	// 0.30 left can never fund a 0.40 click
	e.addCampaign(t, 1, models.PricingCPC, 0.30)

	res, err := e.recorder.RecordClick(context.Background(), clickReq(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Billable || res.Duplicate {
		t.Fatalf("result = %+v, want non-billable non-duplicate", res)
	}
	if got := e.store.GetCampaign(1).Status; got != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	// the event itself is still recorded
	if got := len(e.mock.EventsOfType(models.EventClick)); got != 1 {
		t.Fatalf("persisted clicks = %d, want 1", got)
	}
}

func TestBotTrafficNotBilled(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)

	req := clickReq(1)
	req.UserAgent = botUA
	res, err := e.recorder.RecordClick(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Billable {
		t.Fatal("bot click must not bill")
	}
	snap, _ := e.ledger.Snapshot(context.Background(), 1)
	if snap.Spent != 0 {
		t.Fatalf("spent = %v, want 0", snap.Spent)
	}
}

func TestUnknownCampaignOrCreative(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)

	if _, err := e.recorder.RecordClick(context.Background(), clickReq(404)); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown campaign err = %v", err)
	}

	req := clickReq(1)
	req.CreativeID = 9999
	if _, err := e.recorder.RecordClick(context.Background(), req); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown creative err = %v", err)
	}
}

func TestConversionRecordedNotBilled(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPC, 10)

	res, err := e.recorder.RecordConversion(context.Background(), ConversionRequest{
		EventRequest:   clickReq(1),
		ConversionType: "application",
		Value:          120,
		Currency:       "USD",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Billable || res.Cost != 0 {
		t.Fatalf("conversion = %+v, want free", res)
	}
	events := e.mock.EventsOfType(models.EventConversion)
	if len(events) != 1 || events[0].ConversionValue != 120 {
		t.Fatalf("conversion events = %+v", events)
	}

	// wrong currency is rejected
	_, err = e.recorder.RecordConversion(context.Background(), ConversionRequest{
		EventRequest: clickReq(1),
		Value:        120,
		Currency:     "EUR",
	})
	if !errors.Is(err, pricing.ErrCurrencyMismatch) {
		t.Fatalf("currency err = %v", err)
	}
}

func TestDispatcherRecordsServes(t *testing.T) {
	e := newEnv(t)
	e.addCampaign(t, 1, models.PricingCPM, 10)
	e.addCampaign(t, 2, models.PricingCPM, 10)

	d := NewDispatcher(e.recorder, 4, 16, nil, nil)
	for i := 0; i < 10; i++ {
		id := 1 + i%2
		ad := models.SelectedAd{
			Campaign: e.store.GetCampaign(id),
			Creative: e.store.GetCreative(id * 100),
		}
		d.DispatchServe(ad, EventRequest{PlacementID: "homepage", ViewerID: "v"})
	}
	d.Close()

	if got := len(e.mock.EventsOfType(models.EventServe)); got != 10 {
		t.Fatalf("serve events = %d, want 10", got)
	}
	for _, ev := range e.mock.EventsOfType(models.EventServe) {
		if ev.Billable || ev.Cost != 0 {
			t.Fatalf("serve event billed: %+v", ev)
		}
	}
}
