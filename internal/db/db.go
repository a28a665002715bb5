package db

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/models"
)

// LoadAll reads campaigns, creatives and placements from Postgres, validates
// their relationships and swaps them into the store in one snapshot. It runs
// at boot and on every reload tick.
func LoadAll(pg *Postgres, store models.CampaignStore) error {
	campaigns, err := pg.LoadCampaigns()
	if err != nil {
		return fmt.Errorf("load campaigns: %w", err)
	}
	placements, err := pg.LoadPlacements()
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}
	creatives, err := pg.LoadCreatives()
	if err != nil {
		return fmt.Errorf("load creatives: %w", err)
	}

	byCampaign := make(map[int]bool, len(campaigns))
	byPlacement := make(map[string]bool, len(placements))
	for i := range campaigns {
		byCampaign[campaigns[i].ID] = true
	}
	for i := range placements {
		byPlacement[placements[i].ID] = true
	}

	for i := range campaigns {
		c := &campaigns[i]
		if c.PlacementID != "" && !byPlacement[c.PlacementID] {
			return fmt.Errorf("campaign %d references undefined placement %s", c.ID, c.PlacementID)
		}
	}
	// A creative whose campaign vanished is dropped rather than failing the
	// whole reload; the row is orphaned, not corrupt.
	valid := creatives[:0]
	for i := range creatives {
		cr := &creatives[i]
		if !byCampaign[cr.CampaignID] {
			zap.L().Warn("dropping creative with undefined campaign",
				zap.Int("creative_id", cr.ID),
				zap.Int("campaign_id", cr.CampaignID))
			continue
		}
		valid = append(valid, *cr)
	}

	if err := store.ReloadAll(campaigns, valid, placements); err != nil {
		return fmt.Errorf("reload store: %w", err)
	}
	zap.L().Info("Campaign data loaded",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("creatives", len(valid)),
		zap.Int("placements", len(placements)))
	return nil
}
