package models

import "time"

// Creative is the rendered ad asset belonging to exactly one campaign.
// ContentID references the promoted job posting; the content service is
// consulted at serve time so ads never point at deactivated postings.
type Creative struct {
	ID             int       `json:"id"`
	CampaignID     int       `json:"campaign_id"`
	ContentID      int       `json:"content_id"`
	AssetURL       string    `json:"asset_url"` // blob store reference
	DestinationURL string    `json:"destination_url"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Primary        bool      `json:"primary"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
