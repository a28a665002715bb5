package models

// NewTestCampaignStore creates a new in-memory campaign store for testing
func NewTestCampaignStore() CampaignStore {
	return NewInMemoryCampaignStore()
}
