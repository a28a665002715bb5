package models

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned when an entity is not found in the data store
var ErrNotFound = errors.New("entity not found")

// CampaignStore provides thread-safe access to campaign data without global
// variables. Reads serve the hot selection path off an immutable snapshot;
// writes swap in a new snapshot.
type CampaignStore interface {
	// Read operations (hot path)
	GetCampaign(campaignID int) *Campaign
	GetCreative(creativeID int) *Creative
	GetCreativesByCampaign(campaignID int) []Creative
	GetPrimaryCreative(campaignID int) *Creative
	GetPlacement(placementID string) *Placement

	// Iteration methods
	GetAllCampaigns() []Campaign
	GetAllPlacements() []Placement

	// Write operations (reload path)
	SetCampaigns(campaigns []Campaign) error
	SetCreatives(creatives []Creative) error
	SetPlacements(placements []Placement) error

	// Atomic bulk reload
	ReloadAll(campaigns []Campaign, creatives []Creative, placements []Placement) error

	// CRUD operations for real-time updates. Campaigns are never deleted,
	// only retired through status changes.
	InsertCampaign(campaign *Campaign) error
	UpdateCampaign(campaign Campaign) error
	UpdateCampaignStatus(campaignID int, status string) error

	InsertCreative(creative *Creative) error
	UpdateCreative(creative Creative) error

	InsertPlacement(placement Placement) error
	UpdatePlacement(placement Placement) error
}

// dataSnapshot is an immutable snapshot of all campaign data.
type dataSnapshot struct {
	campaigns      []Campaign
	campaignIndex  map[int]*Campaign
	creatives      []Creative
	creativeIndex  map[int]*Creative
	byCampaign     map[int][]Creative
	placements     []Placement
	placementIndex map[string]*Placement
}

// InMemoryCampaignStore implements CampaignStore with atomic snapshot swaps.
// Writers serialize on a mutex; readers never block.
type InMemoryCampaignStore struct {
	mu   sync.Mutex
	data atomic.Pointer[dataSnapshot]
}

// NewInMemoryCampaignStore creates an empty store.
func NewInMemoryCampaignStore() *InMemoryCampaignStore {
	store := &InMemoryCampaignStore{}
	store.data.Store(buildSnapshot(nil, nil, nil))
	return store
}

func buildSnapshot(campaigns []Campaign, creatives []Creative, placements []Placement) *dataSnapshot {
	snap := &dataSnapshot{
		campaigns:      campaigns,
		campaignIndex:  make(map[int]*Campaign, len(campaigns)),
		creatives:      creatives,
		creativeIndex:  make(map[int]*Creative, len(creatives)),
		byCampaign:     make(map[int][]Creative),
		placements:     placements,
		placementIndex: make(map[string]*Placement, len(placements)),
	}
	for i := range campaigns {
		snap.campaignIndex[campaigns[i].ID] = &campaigns[i]
	}
	for i := range creatives {
		snap.creativeIndex[creatives[i].ID] = &creatives[i]
		snap.byCampaign[creatives[i].CampaignID] = append(snap.byCampaign[creatives[i].CampaignID], creatives[i])
	}
	for i := range placements {
		snap.placementIndex[placements[i].ID] = &placements[i]
	}
	return snap
}

// GetCampaign retrieves a campaign by ID.
func (s *InMemoryCampaignStore) GetCampaign(campaignID int) *Campaign {
	data := s.data.Load()
	if c, ok := data.campaignIndex[campaignID]; ok {
		return c
	}
	return nil
}

// GetCreative retrieves a creative by ID.
func (s *InMemoryCampaignStore) GetCreative(creativeID int) *Creative {
	data := s.data.Load()
	if c, ok := data.creativeIndex[creativeID]; ok {
		return c
	}
	return nil
}

// GetCreativesByCampaign returns all creatives belonging to a campaign.
func (s *InMemoryCampaignStore) GetCreativesByCampaign(campaignID int) []Creative {
	data := s.data.Load()
	if items, ok := data.byCampaign[campaignID]; ok {
		// Return a copy to prevent external modification
		result := make([]Creative, len(items))
		copy(result, items)
		return result
	}
	return nil
}

// GetPrimaryCreative returns the campaign's primary creative, falling back
// to the first active creative when none is flagged primary.
func (s *InMemoryCampaignStore) GetPrimaryCreative(campaignID int) *Creative {
	data := s.data.Load()
	items := data.byCampaign[campaignID]
	var fallback *Creative
	for i := range items {
		if !items[i].Active {
			continue
		}
		if items[i].Primary {
			return &items[i]
		}
		if fallback == nil {
			fallback = &items[i]
		}
	}
	return fallback
}

// GetPlacement retrieves a placement by ID.
func (s *InMemoryCampaignStore) GetPlacement(placementID string) *Placement {
	data := s.data.Load()
	if p, ok := data.placementIndex[placementID]; ok {
		return p
	}
	return nil
}

// GetAllCampaigns returns a copy of all campaigns.
func (s *InMemoryCampaignStore) GetAllCampaigns() []Campaign {
	data := s.data.Load()
	result := make([]Campaign, len(data.campaigns))
	copy(result, data.campaigns)
	return result
}

// GetAllPlacements returns a copy of all placements.
func (s *InMemoryCampaignStore) GetAllPlacements() []Placement {
	data := s.data.Load()
	result := make([]Placement, len(data.placements))
	copy(result, data.placements)
	return result
}

// SetCampaigns replaces all campaigns and rebuilds indexes.
func (s *InMemoryCampaignStore) SetCampaigns(campaigns []Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	s.data.Store(buildSnapshot(campaigns, cur.creatives, cur.placements))
	return nil
}

// SetCreatives replaces all creatives and rebuilds indexes.
func (s *InMemoryCampaignStore) SetCreatives(creatives []Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	s.data.Store(buildSnapshot(cur.campaigns, creatives, cur.placements))
	return nil
}

// SetPlacements replaces all placements and rebuilds indexes.
func (s *InMemoryCampaignStore) SetPlacements(placements []Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	s.data.Store(buildSnapshot(cur.campaigns, cur.creatives, placements))
	return nil
}

// ReloadAll replaces campaigns, creatives and placements in a single
// snapshot swap so readers never observe a partial reload.
func (s *InMemoryCampaignStore) ReloadAll(campaigns []Campaign, creatives []Creative, placements []Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Store(buildSnapshot(campaigns, creatives, placements))
	return nil
}

// InsertCampaign adds a new campaign.
func (s *InMemoryCampaignStore) InsertCampaign(campaign *Campaign) error {
	if campaign == nil {
		return errors.New("campaign cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.campaignIndex[campaign.ID]; exists {
		return errors.New("campaign already exists")
	}
	campaigns := make([]Campaign, len(cur.campaigns), len(cur.campaigns)+1)
	copy(campaigns, cur.campaigns)
	campaigns = append(campaigns, *campaign)
	s.data.Store(buildSnapshot(campaigns, cur.creatives, cur.placements))
	return nil
}

// UpdateCampaign replaces an existing campaign.
func (s *InMemoryCampaignStore) UpdateCampaign(campaign Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.campaignIndex[campaign.ID]; !exists {
		return ErrNotFound
	}
	campaigns := make([]Campaign, len(cur.campaigns))
	copy(campaigns, cur.campaigns)
	for i := range campaigns {
		if campaigns[i].ID == campaign.ID {
			campaigns[i] = campaign
			break
		}
	}
	s.data.Store(buildSnapshot(campaigns, cur.creatives, cur.placements))
	return nil
}

// UpdateCampaignStatus updates only the status of a campaign.
func (s *InMemoryCampaignStore) UpdateCampaignStatus(campaignID int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.campaignIndex[campaignID]; !exists {
		return ErrNotFound
	}
	campaigns := make([]Campaign, len(cur.campaigns))
	copy(campaigns, cur.campaigns)
	for i := range campaigns {
		if campaigns[i].ID == campaignID {
			campaigns[i].Status = status
			break
		}
	}
	s.data.Store(buildSnapshot(campaigns, cur.creatives, cur.placements))
	return nil
}

// InsertCreative adds a new creative.
func (s *InMemoryCampaignStore) InsertCreative(creative *Creative) error {
	if creative == nil {
		return errors.New("creative cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.creativeIndex[creative.ID]; exists {
		return errors.New("creative already exists")
	}
	creatives := make([]Creative, len(cur.creatives), len(cur.creatives)+1)
	copy(creatives, cur.creatives)
	creatives = append(creatives, *creative)
	s.data.Store(buildSnapshot(cur.campaigns, creatives, cur.placements))
	return nil
}

// UpdateCreative replaces an existing creative. This is the creative-swap
// operation; it has no effect on the campaign's ledger.
func (s *InMemoryCampaignStore) UpdateCreative(creative Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.creativeIndex[creative.ID]; !exists {
		return ErrNotFound
	}
	creatives := make([]Creative, len(cur.creatives))
	copy(creatives, cur.creatives)
	for i := range creatives {
		if creatives[i].ID == creative.ID {
			creatives[i] = creative
			break
		}
	}
	s.data.Store(buildSnapshot(cur.campaigns, creatives, cur.placements))
	return nil
}

// InsertPlacement adds a new placement.
func (s *InMemoryCampaignStore) InsertPlacement(placement Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.placementIndex[placement.ID]; exists {
		return errors.New("placement already exists")
	}
	placements := make([]Placement, len(cur.placements), len(cur.placements)+1)
	copy(placements, cur.placements)
	placements = append(placements, placement)
	s.data.Store(buildSnapshot(cur.campaigns, cur.creatives, placements))
	return nil
}

// UpdatePlacement replaces an existing placement.
func (s *InMemoryCampaignStore) UpdatePlacement(placement Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data.Load()
	if _, exists := cur.placementIndex[placement.ID]; !exists {
		return ErrNotFound
	}
	placements := make([]Placement, len(cur.placements))
	copy(placements, cur.placements)
	for i := range placements {
		if placements[i].ID == placement.ID {
			placements[i] = placement
			break
		}
	}
	s.data.Store(buildSnapshot(cur.campaigns, cur.creatives, placements))
	return nil
}
