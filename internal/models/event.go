package models

import "time"

// Event types recorded by the engine.
const (
	EventImpression = "impression"
	EventClick      = "click"
	EventConversion = "conversion"
	EventServe      = "serve"
)

// Event is an immutable fact about a single ad interaction. Events are
// append-only; once written they are never mutated or deleted. Cost is the
// amount actually charged to the campaign (zero when Billable is false).
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CampaignID  int       `json:"campaign_id"`
	CreativeID  int       `json:"creative_id"`
	PlacementID string    `json:"placement_id"`
	ViewerID    string    `json:"viewer_id,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	DeviceType  string    `json:"device_type,omitempty"`
	Country     string    `json:"country,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Cost        float64   `json:"cost"`
	Currency    string    `json:"currency"`
	Billable    bool      `json:"billable"`

	// Conversion-only fields. ConversionValue is the advertiser-reported
	// value of the conversion, independent of the cost charged.
	ConversionType  string  `json:"conversion_type,omitempty"`
	ConversionValue float64 `json:"conversion_value,omitempty"`
}
