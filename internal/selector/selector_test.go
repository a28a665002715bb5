package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobdeck/adengine/internal/content"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func init() {
	nowFn = func() time.Time { return testNow }
}

type fixture struct {
	store    models.CampaignStore
	ledger   *ledger.MemoryLedger
	selector *Selector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := models.NewTestCampaignStore()
	if err := store.InsertPlacement(models.Placement{ID: "homepage", Multiplier: 2.0}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertPlacement(models.Placement{
		ID: "sidebar", Multiplier: 1.0, Types: []string{models.TypeSidebar},
	}); err != nil {
		t.Fatal(err)
	}
	l := ledger.NewMemoryLedger()
	lm := lifecycle.NewManager(store, l, nil, nil, nil, nil)
	return &fixture{store: store, ledger: l, selector: New(store, l, lm, nil, nil)}
}

// addCampaign inserts an active, funded campaign with one active creative.
func (f *fixture) addCampaign(t *testing.T, id, priority int, createdAt time.Time) {
	t.Helper()
	c := models.Campaign{
		ID:          id,
		Name:        "c",
		Type:        models.TypeBanner,
		PricingMode: models.PricingCPM,
		Status:      models.StatusActive,
		Currency:    "USD",
		BudgetTotal: 100,
		StartDate:   testNow.AddDate(0, 0, -1),
		EndDate:     testNow.AddDate(0, 0, 7),
		Priority:    priority,
		CreatedAt:   createdAt,
	}
	if err := f.store.InsertCampaign(&c); err != nil {
		t.Fatal(err)
	}
	if err := f.store.InsertCreative(&models.Creative{
		ID: id * 100, CampaignID: id, ContentID: id, Active: true, Primary: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.Init(context.Background(), id, 100); err != nil {
		t.Fatal(err)
	}
}

func ids(ads []models.SelectedAd) []int {
	out := make([]int, len(ads))
	for i, ad := range ads {
		out[i] = ad.Campaign.ID
	}
	return out
}

func TestSelectOrdering(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))
	f.addCampaign(t, 2, 10, testNow.AddDate(0, 0, -3))
	f.addCampaign(t, 3, 10, testNow.AddDate(0, 0, -1)) // same priority, newer

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(ads)
	want := []int{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSelectUnknownPlacement(t *testing.T) {
	f := newFixture(t)
	if _, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "nope"}); !errors.Is(err, ErrUnknownPlacement) {
		t.Fatalf("err = %v, want ErrUnknownPlacement", err)
	}
}

func TestSelectEmptyIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 0 {
		t.Fatalf("expected empty result, got %d ads", len(ads))
	}
}

func TestSelectLimit(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 6; i++ {
		f.addCampaign(t, i, i, testNow.AddDate(0, 0, -i))
	}

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 2 {
		t.Fatalf("len = %d, want 2", len(ads))
	}
	if ads[0].Campaign.ID != 6 || ads[1].Campaign.ID != 5 {
		t.Fatalf("top two = %v", ids(ads))
	}

	// oversized limit is clamped
	f.selector.SetLimits(20, 4)
	ads, err = f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage", Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 4 {
		t.Fatalf("len = %d, want max 4", len(ads))
	}
}

func TestSelectSkipsUnservable(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))

	// paused
	f.addCampaign(t, 2, 50, testNow.AddDate(0, 0, -3))
	if err := f.store.UpdateCampaignStatus(2, models.StatusPaused); err != nil {
		t.Fatal(err)
	}

	// window over
	c3 := models.Campaign{
		ID: 3, Type: models.TypeBanner, Status: models.StatusActive, Priority: 50,
		StartDate: testNow.AddDate(0, 0, -10), EndDate: testNow.AddDate(0, 0, -2),
		BudgetTotal: 100,
	}
	if err := f.store.InsertCampaign(&c3); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.Init(context.Background(), 3, 100); err != nil {
		t.Fatal(err)
	}

	// budget exhausted
	f.addCampaign(t, 4, 50, testNow.AddDate(0, 0, -3))
	if _, err := f.ledger.Debit(context.Background(), 4, 100); err != nil {
		t.Fatal(err)
	}

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 || ads[0].Campaign.ID != 1 {
		t.Fatalf("got %v, want [1]", ids(ads))
	}
}

func TestSelectAutoCompletesExhausted(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))
	if _, err := f.ledger.Debit(context.Background(), 1, 100); err != nil {
		t.Fatal(err)
	}

	if _, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"}); err != nil {
		t.Fatal(err)
	}
	if got := f.store.GetCampaign(1).Status; got != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestSelectTargeting(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))

	c := *f.store.GetCampaign(1)
	c.Targeting = models.Targeting{Geo: []string{"DE", "AT"}}
	if err := f.store.UpdateCampaign(c); err != nil {
		t.Fatal(err)
	}

	req := models.AdRequest{PlacementID: "homepage", Attributes: models.ViewerAttributes{Geo: []string{"US"}}}
	ads, err := f.selector.Select(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 0 {
		t.Fatalf("US viewer should not match DE/AT targeting: %v", ids(ads))
	}

	req.Attributes.Geo = []string{"de"}
	ads, err = f.selector.Select(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 {
		t.Fatalf("de viewer should match: %v", ids(ads))
	}
}

func TestSelectPlacementCompatibility(t *testing.T) {
	f := newFixture(t)
	// banner type not allowed on the sidebar slot
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "sidebar"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 0 {
		t.Fatalf("banner campaign served on sidebar slot: %v", ids(ads))
	}

	// campaign pinned to another slot never serves here
	f.addCampaign(t, 2, 5, testNow.AddDate(0, 0, -3))
	c := *f.store.GetCampaign(2)
	c.PlacementID = "sidebar"
	if err := f.store.UpdateCampaign(c); err != nil {
		t.Fatal(err)
	}
	ads, err = f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"})
	if err != nil {
		t.Fatal(err)
	}
	for _, ad := range ads {
		if ad.Campaign.ID == 2 {
			t.Fatal("pinned campaign served on the wrong slot")
		}
	}
}

func TestSelectBackfill(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 10, testNow.AddDate(0, 0, -3)) // top ranked
	f.addCampaign(t, 2, 5, testNow.AddDate(0, 0, -3))
	f.addCampaign(t, 3, 1, testNow.AddDate(0, 0, -3))

	// deactivate the top campaign's only creative
	cr := *f.store.GetCreative(100)
	cr.Active = false
	if err := f.store.UpdateCreative(cr); err != nil {
		t.Fatal(err)
	}
	// campaign 2's promoted posting is gone
	f.selector.SetContentChecker(&content.StaticChecker{Inactive: map[int]bool{2: true}})

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 1 || ads[0].Campaign.ID != 3 {
		t.Fatalf("backfill got %v, want [3]", ids(ads))
	}
}

func TestSelectContentUnavailableExcludes(t *testing.T) {
	f := newFixture(t)
	f.addCampaign(t, 1, 5, testNow.AddDate(0, 0, -3))
	f.addCampaign(t, 2, 1, testNow.AddDate(0, 0, -3))

	f.selector.SetContentChecker(&content.StaticChecker{Err: content.ErrUnavailable})

	ads, err := f.selector.Select(context.Background(), models.AdRequest{PlacementID: "homepage"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ads) != 0 {
		t.Fatalf("unreachable content service should exclude, not fail: %v", ids(ads))
	}
}
