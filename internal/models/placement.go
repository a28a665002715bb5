package models

// Placement represents a named ad slot in the portal UI (e.g., "homepage",
// "search-results", "job-detail-sidebar"). Its multiplier scales the base
// rate when pricing flat placement packages; its dimensions and allowed
// types constrain which creatives may render in the slot.
type Placement struct {
	// ID is the slot identifier used in ad requests (e.g., "homepage").
	ID   string `json:"id"`
	Name string `json:"name"`
	// Multiplier scales the base daily rate for flat-priced campaigns.
	Multiplier float64 `json:"multiplier"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	// Types lists the campaign types allowed to serve in this slot.
	// An empty list allows every type.
	Types []string `json:"types"`
}

// AllowsType reports whether the given campaign type may serve in this slot.
func (p *Placement) AllowsType(campaignType string) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, t := range p.Types {
		if t == campaignType {
			return true
		}
	}
	return false
}
