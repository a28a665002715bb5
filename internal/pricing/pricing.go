// Package pricing computes what a campaign pays, either once up front for a
// flat placement package or per billable event under CPM/CPC billing.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jobdeck/adengine/internal/models"
)

// ErrCurrencyMismatch is returned when an amount's currency differs from the
// campaign's configured currency.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// RateTable holds the configured rates. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type RateTable struct {
	// BaseDailyRates by campaign type, in currency units per day, used for
	// flat placement packages.
	BaseDailyRates map[string]float64
	// CPMRates by campaign type: price per thousand impressions.
	CPMRates map[string]float64
	// CPCRates by campaign type: price per click.
	CPCRates map[string]float64

	// Fallbacks applied when a type or placement is not in the tables.
	DefaultDailyRate  float64
	DefaultCPM        float64
	DefaultCPC        float64
	DefaultMultiplier float64
}

// DefaultRateTable returns the standard rate card.
func DefaultRateTable() RateTable {
	return RateTable{
		BaseDailyRates: map[string]float64{
			models.TypeBanner:       50,
			models.TypeSidebar:      30,
			models.TypeInterstitial: 80,
			models.TypeNative:       40,
			models.TypeVideo:        100,
		},
		CPMRates: map[string]float64{
			models.TypeBanner:       5,
			models.TypeSidebar:      3,
			models.TypeInterstitial: 12,
			models.TypeNative:       6,
			models.TypeVideo:        18,
		},
		CPCRates: map[string]float64{
			models.TypeBanner:       0.40,
			models.TypeSidebar:      0.25,
			models.TypeInterstitial: 0.90,
			models.TypeNative:       0.50,
			models.TypeVideo:        1.20,
		},
		DefaultDailyRate:  40,
		DefaultCPM:        5,
		DefaultCPC:        0.40,
		DefaultMultiplier: 1.0,
	}
}

// Model prices campaigns against one immutable rate table.
type Model struct {
	rates RateTable
}

// New creates a pricing model over the given rate table.
func New(rates RateTable) *Model {
	return &Model{rates: rates}
}

// RoundHalfUp rounds to two decimal places, half rounding upwards.
// Every monetary amount the model produces passes through here.
// The epsilon compensates for binary representation of values like 1.005,
// which lands at 100.4999... once scaled.
func RoundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}

// FlatCost computes the one-time charge for a flat placement package:
// base daily rate for the campaign type, scaled by the placement's
// multiplier, for the whole date window rounded up to full days.
func (m *Model) FlatCost(c *models.Campaign, p *models.Placement) float64 {
	base, ok := m.rates.BaseDailyRates[c.Type]
	if !ok {
		base = m.rates.DefaultDailyRate
	}
	mult := m.rates.DefaultMultiplier
	if p != nil && p.Multiplier > 0 {
		mult = p.Multiplier
	}
	days := math.Ceil(c.EndDate.Sub(c.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return RoundHalfUp(base * mult * days)
}

// EventCost returns the amount charged for a single event under the
// campaign's pricing mode. Flat campaigns pay nothing per event (they were
// charged up front); conversions are never charged.
func (m *Model) EventCost(c *models.Campaign, eventType string) float64 {
	switch c.PricingMode {
	case models.PricingCPM:
		if eventType == models.EventImpression {
			cpm, ok := m.rates.CPMRates[c.Type]
			if !ok {
				cpm = m.rates.DefaultCPM
			}
			return RoundHalfUp(cpm / 1000)
		}
	case models.PricingCPC:
		if eventType == models.EventClick {
			cpc, ok := m.rates.CPCRates[c.Type]
			if !ok {
				cpc = m.rates.DefaultCPC
			}
			return RoundHalfUp(cpc)
		}
	}
	return 0
}

// ValidateCurrency checks that an externally supplied currency matches the
// campaign's configured one.
func ValidateCurrency(c *models.Campaign, currency string) error {
	if currency != "" && currency != c.Currency {
		return fmt.Errorf("%w: campaign %d is %s, got %s", ErrCurrencyMismatch, c.ID, c.Currency, currency)
	}
	return nil
}

// WindowDays returns the billed length of the campaign window in days,
// rounded up, minimum one.
func WindowDays(start, end time.Time) int {
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}
