package models

// ViewerAttributes carries the optional targeting attributes of the viewer
// behind an ad request. Device and country may be resolved server-side from
// the User-Agent and IP when the caller does not supply them.
type ViewerAttributes struct {
	Demographics []string `json:"demographics,omitempty"`
	Geo          []string `json:"geo,omitempty"`
	Interests    []string `json:"interests,omitempty"`
	Behaviors    []string `json:"behaviors,omitempty"`
	Devices      []string `json:"devices,omitempty"`
}

// AdRequest is the ephemeral value object consumed by the selector. It is
// never persisted.
type AdRequest struct {
	PlacementID string           `json:"placement_id"`
	ViewerID    string           `json:"viewer_id,omitempty"`
	Attributes  ViewerAttributes `json:"attributes"`
	Limit       int              `json:"limit,omitempty"`
	PageURL     string           `json:"page_url,omitempty"`
}

// SelectedAd pairs a creative with its campaign in a selection result.
type SelectedAd struct {
	Campaign *Campaign `json:"campaign"`
	Creative *Creative `json:"creative"`
}
