// Package selector picks the ranked set of ads for a placement. Selection
// reads weakly consistent snapshots only; budget correctness is enforced at
// debit time, never here.
package selector

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/content"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
	"github.com/jobdeck/adengine/internal/targeting"
)

// ErrUnknownPlacement is returned for a placement ID not in the store.
var ErrUnknownPlacement = errors.New("unknown placement")

// nowFn allows tests to control the clock.
var nowFn = time.Now

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Selector filters, ranks and truncates campaigns for a placement.
type Selector struct {
	store     models.CampaignStore
	ledger    ledger.Ledger
	lifecycle *lifecycle.Manager
	checker   content.Checker
	metrics   observability.MetricsRegistry
	logger    *zap.Logger

	defaultLimit int
	maxLimit     int
}

// New constructs a selector. The content checker is optional; without one
// no posting-activity filtering happens.
func New(store models.CampaignStore, l ledger.Ledger, lm *lifecycle.Manager, metrics observability.MetricsRegistry, logger *zap.Logger) *Selector {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		store:        store,
		ledger:       l,
		lifecycle:    lm,
		metrics:      metrics,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// SetContentChecker configures job-posting activity filtering.
func (s *Selector) SetContentChecker(c content.Checker) {
	s.checker = c
}

// SetLimits overrides the default and maximum result sizes.
func (s *Selector) SetLimits(def, max int) {
	if def > 0 {
		s.defaultLimit = def
	}
	if max > 0 {
		s.maxLimit = max
	}
}

// Select returns the ranked ads for the request. An empty result is a
// normal outcome (the caller falls back to organic content), not an error.
func (s *Selector) Select(ctx context.Context, req models.AdRequest) ([]models.SelectedAd, error) {
	placement := s.store.GetPlacement(req.PlacementID)
	if placement == nil {
		return nil, ErrUnknownPlacement
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	// Candidate filter: status, placement compatibility, targeting.
	campaigns := s.store.GetAllCampaigns()
	candidates := make([]*models.Campaign, 0, len(campaigns))
	ids := make([]int, 0, len(campaigns))
	for i := range campaigns {
		c := &campaigns[i]
		if c.Status != models.StatusActive {
			continue
		}
		if c.PlacementID != "" && c.PlacementID != placement.ID {
			continue
		}
		if !placement.AllowsType(c.Type) {
			continue
		}
		if !targeting.Match(c.Targeting, req.Attributes) {
			continue
		}
		candidates = append(candidates, c)
		ids = append(ids, c.ID)
	}

	remaining, err := s.ledger.RemainingBatch(ctx, ids)
	if err != nil {
		// A ledger outage must not take down serving; without balances no
		// campaign can be proven servable, so the result is empty.
		s.logger.Error("ledger batch read failed", zap.Error(err))
		s.metrics.IncrementNoFills()
		return []models.SelectedAd{}, nil
	}

	now := nowFn()
	servable := candidates[:0]
	for _, c := range candidates {
		rem := remaining[c.ID]
		if !lifecycle.IsServable(c, now, rem) {
			if s.lifecycle != nil {
				s.lifecycle.CheckAutoComplete(ctx, c, now, rem)
			}
			continue
		}
		servable = append(servable, c)
	}

	// Priority descending, then recency descending.
	sort.SliceStable(servable, func(i, j int) bool {
		if servable[i].Priority != servable[j].Priority {
			return servable[i].Priority > servable[j].Priority
		}
		return servable[i].CreatedAt.After(servable[j].CreatedAt)
	})

	// Walk the ranked list and backfill past campaigns whose creative or
	// promoted posting is gone, so the result only shrinks below limit when
	// candidates run out.
	result := make([]models.SelectedAd, 0, limit)
	for _, c := range servable {
		if len(result) >= limit {
			break
		}
		creative := s.store.GetPrimaryCreative(c.ID)
		if creative == nil {
			continue
		}
		if !s.contentActive(ctx, c, creative) {
			continue
		}
		result = append(result, models.SelectedAd{Campaign: c, Creative: creative})
	}

	if len(result) == 0 {
		s.metrics.IncrementNoFills()
	} else {
		s.metrics.IncrementSelections(placement.ID)
	}
	return result, nil
}

// contentActive reports whether the promoted posting may still be served.
// An unreachable content service excludes the campaign from this response
// rather than failing the whole request.
func (s *Selector) contentActive(ctx context.Context, c *models.Campaign, creative *models.Creative) bool {
	if s.checker == nil || creative.ContentID == 0 {
		return true
	}
	active, err := s.checker.IsActive(ctx, creative.ContentID)
	if err != nil {
		s.logger.Warn("content check unavailable, excluding campaign",
			zap.Int("campaign_id", c.ID),
			zap.Int("content_id", creative.ContentID),
			zap.Error(err),
		)
		return false
	}
	return active
}
