package models

import "time"

// Campaign status values. See the lifecycle package for the transition rules.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Campaign types determine base pricing rates and rendering treatment.
const (
	TypeBanner       = "banner"
	TypeSidebar      = "sidebar"
	TypeInterstitial = "interstitial"
	TypeNative       = "native"
	TypeVideo        = "video"
)

// Pricing modes. Flat campaigns are charged once up front for their whole
// date window; cpm and cpc campaigns are charged per billable event.
const (
	PricingFlat = "flat"
	PricingCPM  = "cpm"
	PricingCPC  = "cpc"
)

// Budget is a point-in-time view of a campaign's ledger state. The ledger
// is authoritative; this struct is a snapshot for read paths and must
// satisfy Spent+Remaining == Total.
type Budget struct {
	Total     float64 `json:"total"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
	Currency  string  `json:"currency"`
}

// Targeting holds optional set-membership filters. An empty set means the
// dimension is not constrained (match-all).
type Targeting struct {
	Demographics []string `json:"demographics,omitempty"`
	Geo          []string `json:"geo,omitempty"`
	Interests    []string `json:"interests,omitempty"`
	Behaviors    []string `json:"behaviors,omitempty"`
	Devices      []string `json:"devices,omitempty"`
}

// Empty reports whether no dimension is constrained.
func (t Targeting) Empty() bool {
	return len(t.Demographics) == 0 && len(t.Geo) == 0 && len(t.Interests) == 0 &&
		len(t.Behaviors) == 0 && len(t.Devices) == 0
}

// Campaign is a funded, time-boxed advertising effort promoting job
// postings. Budget totals live in the ledger; the struct carries the
// configured total and currency for bootstrapping and display.
type Campaign struct {
	ID          int       `json:"id"`
	ClientID    int       `json:"client_id"` // owning advertiser account
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	PricingMode string    `json:"pricing_mode"`
	Status      string    `json:"status"`
	Currency    string    `json:"currency"`
	// PlacementID pins the campaign to one slot. Required for flat-priced
	// placement packages; empty means any allowed slot.
	PlacementID string    `json:"placement_id,omitempty"`
	BudgetTotal float64   `json:"budget_total"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Priority    int       `json:"priority"` // higher wins at selection time
	Targeting   Targeting `json:"targeting"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InWindow reports whether now falls inside the campaign's date window,
// boundaries inclusive.
func (c *Campaign) InWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Terminal reports whether the campaign is in a terminal state.
func (c *Campaign) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}
