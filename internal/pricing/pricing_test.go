package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/jobdeck/adengine/internal/models"
)

func flatCampaign(typ string, days int) *models.Campaign {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.Campaign{
		ID:          1,
		Type:        typ,
		PricingMode: models.PricingFlat,
		Currency:    "USD",
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, days),
	}
}

func TestFlatCost(t *testing.T) {
	m := New(DefaultRateTable())
	homepage := &models.Placement{ID: "homepage", Multiplier: 2.0}

	// banner base rate 50, homepage multiplier 2.0, three days
	got := m.FlatCost(flatCampaign(models.TypeBanner, 3), homepage)
	if got != 300 {
		t.Fatalf("flat cost = %v, want 300", got)
	}

	// partial days round up
	c := flatCampaign(models.TypeBanner, 0)
	c.EndDate = c.StartDate.Add(36 * time.Hour)
	if got := m.FlatCost(c, homepage); got != 200 {
		t.Fatalf("flat cost for 1.5 days = %v, want 200", got)
	}

	// unknown type falls back to the default daily rate
	if got := m.FlatCost(flatCampaign("hologram", 1), homepage); got != 80 {
		t.Fatalf("flat cost unknown type = %v, want 80", got)
	}

	// missing placement uses the default multiplier
	if got := m.FlatCost(flatCampaign(models.TypeBanner, 2), nil); got != 100 {
		t.Fatalf("flat cost no placement = %v, want 100", got)
	}
}

func TestEventCost(t *testing.T) {
	m := New(DefaultRateTable())

	cpm := &models.Campaign{Type: models.TypeBanner, PricingMode: models.PricingCPM}
	if got := m.EventCost(cpm, models.EventImpression); got != 0.01 {
		t.Fatalf("cpm impression cost = %v, want 0.01", got)
	}
	if got := m.EventCost(cpm, models.EventClick); got != 0 {
		t.Fatalf("cpm click cost = %v, want 0", got)
	}

	cpc := &models.Campaign{Type: models.TypeVideo, PricingMode: models.PricingCPC}
	if got := m.EventCost(cpc, models.EventClick); got != 1.20 {
		t.Fatalf("cpc click cost = %v, want 1.20", got)
	}
	if got := m.EventCost(cpc, models.EventImpression); got != 0 {
		t.Fatalf("cpc impression cost = %v, want 0", got)
	}

	flat := &models.Campaign{Type: models.TypeBanner, PricingMode: models.PricingFlat}
	if got := m.EventCost(flat, models.EventImpression); got != 0 {
		t.Fatalf("flat event cost = %v, want 0", got)
	}

	// conversions are never charged
	if got := m.EventCost(cpc, models.EventConversion); got != 0 {
		t.Fatalf("conversion cost = %v, want 0", got)
	}

	// unknown type falls back to the default CPM
	odd := &models.Campaign{Type: "hologram", PricingMode: models.PricingCPM}
	if got := m.EventCost(odd, models.EventImpression); got != 0.01 {
		t.Fatalf("unknown type cpm cost = %v, want 0.01", got)
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.005, 1.01},
		{1.004, 1.00},
		{2.675, 2.68},
		{0.125, 0.13},
		{10, 10},
	}
	for _, tc := range cases {
		if got := RoundHalfUp(tc.in); got != tc.want {
			t.Errorf("RoundHalfUp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidateCurrency(t *testing.T) {
	c := &models.Campaign{ID: 9, Currency: "USD"}
	if err := ValidateCurrency(c, "USD"); err != nil {
		t.Fatalf("matching currency: %v", err)
	}
	if err := ValidateCurrency(c, ""); err != nil {
		t.Fatalf("empty currency should pass: %v", err)
	}
	if err := ValidateCurrency(c, "EUR"); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("err = %v, want ErrCurrencyMismatch", err)
	}
}

func TestWindowDays(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := WindowDays(start, start.AddDate(0, 0, 3)); got != 3 {
		t.Fatalf("WindowDays = %d, want 3", got)
	}
	if got := WindowDays(start, start.Add(time.Hour)); got != 1 {
		t.Fatalf("WindowDays = %d, want 1", got)
	}
}
