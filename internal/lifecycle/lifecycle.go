// Package lifecycle implements the campaign state machine and the
// serve-time eligibility predicate. Completed and cancelled are terminal;
// every other transition is validated here before any state changes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
	"github.com/jobdeck/adengine/internal/pricing"
)

// nowFn allows tests to control the clock.
var nowFn = time.Now

// ErrInvalidTransition is returned for illegal lifecycle actions. The
// campaign state is left unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

// Explicit lifecycle actions.
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
)

// Auto-complete reasons, used as metric labels.
const (
	ReasonWindowExpired   = "window_expired"
	ReasonBudgetExhausted = "budget_exhausted"
)

// StatusWriter persists status changes to durable storage. The in-memory
// store is updated regardless; a nil writer skips persistence (tests).
type StatusWriter interface {
	UpdateCampaignStatus(ctx context.Context, campaignID int, status string) error
}

// Manager owns all campaign status transitions.
type Manager struct {
	store   models.CampaignStore
	ledger  ledger.Ledger
	pricing *pricing.Model
	writer  StatusWriter
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// NewManager wires a lifecycle manager.
func NewManager(store models.CampaignStore, l ledger.Ledger, p *pricing.Model, writer StatusWriter, metrics observability.MetricsRegistry, logger *zap.Logger) *Manager {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, ledger: l, pricing: p, writer: writer, metrics: metrics, logger: logger}
}

// IsServable is the authoritative eligibility predicate, evaluated on every
// serve decision rather than cached.
func IsServable(c *models.Campaign, now time.Time, remaining float64) bool {
	return c != nil && c.Status == models.StatusActive && c.InWindow(now) && remaining > 0
}

// Transition applies an explicit lifecycle action to a campaign.
func (m *Manager) Transition(ctx context.Context, campaignID int, action string) error {
	c := m.store.GetCampaign(campaignID)
	if c == nil {
		return models.ErrNotFound
	}
	now := nowFn()

	switch action {
	case ActionSubmit:
		if c.Status != models.StatusDraft {
			return m.reject(c, action)
		}
		return m.setStatus(ctx, c, models.StatusPending)

	case ActionApprove:
		if c.Status != models.StatusPending {
			return m.reject(c, action)
		}
		return m.activate(ctx, c, now, true)

	case ActionPause:
		if c.Status != models.StatusActive {
			return m.reject(c, action)
		}
		return m.setStatus(ctx, c, models.StatusPaused)

	case ActionResume:
		if c.Status != models.StatusPaused {
			return m.reject(c, action)
		}
		return m.activate(ctx, c, now, false)

	case ActionCancel:
		if c.Terminal() {
			return m.reject(c, action)
		}
		return m.setStatus(ctx, c, models.StatusCancelled)

	case ActionComplete:
		if c.Status != models.StatusActive {
			return m.reject(c, action)
		}
		return m.setStatus(ctx, c, models.StatusCompleted)
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
}

// activate moves a campaign to active after re-validating the date window
// and remaining budget. On first approval a flat-priced campaign is charged
// its whole package cost as a single debit; resume never re-charges.
func (m *Manager) activate(ctx context.Context, c *models.Campaign, now time.Time, charge bool) error {
	if !c.InWindow(now) {
		return fmt.Errorf("%w: campaign %d outside date window", ErrInvalidTransition, c.ID)
	}
	if err := m.ledger.Init(ctx, c.ID, c.BudgetTotal); err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	snap, err := m.ledger.Snapshot(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("ledger snapshot: %w", err)
	}
	if snap.Remaining <= 0 {
		return fmt.Errorf("%w: campaign %d has no remaining budget", ErrInvalidTransition, c.ID)
	}

	if charge && c.PricingMode == models.PricingFlat {
		var placement *models.Placement
		if c.PlacementID != "" {
			placement = m.store.GetPlacement(c.PlacementID)
		}
		cost := m.pricing.FlatCost(c, placement)
		remaining, err := m.ledger.Debit(ctx, c.ID, cost)
		if err != nil {
			m.metrics.IncrementDebit("insufficient")
			return err
		}
		m.metrics.IncrementDebit("ok")
		m.logger.Info("flat package charged",
			zap.Int("campaign_id", c.ID),
			zap.Float64("cost", cost),
			zap.Float64("remaining", remaining),
		)
	}
	return m.setStatus(ctx, c, models.StatusActive)
}

// CheckAutoComplete applies the automatic active -> completed transition
// when the window has passed or the budget is exhausted. It reports whether
// the campaign was completed.
func (m *Manager) CheckAutoComplete(ctx context.Context, c *models.Campaign, now time.Time, remaining float64) bool {
	if c == nil || c.Status != models.StatusActive {
		return false
	}
	var reason string
	switch {
	case now.After(c.EndDate):
		reason = ReasonWindowExpired
	case remaining <= 0:
		reason = ReasonBudgetExhausted
	default:
		return false
	}
	if err := m.setStatus(ctx, c, models.StatusCompleted); err != nil {
		m.logger.Error("auto-complete failed", zap.Int("campaign_id", c.ID), zap.Error(err))
		return false
	}
	m.metrics.IncrementAutoComplete(reason)
	m.logger.Info("campaign auto-completed",
		zap.Int("campaign_id", c.ID),
		zap.String("reason", reason),
	)
	return true
}

// Reconcile sweeps all active campaigns and applies auto-complete to any
// whose window passed or budget ran out while no traffic was arriving.
// Serve-time checks remain authoritative; this only catches idle campaigns.
func (m *Manager) Reconcile(ctx context.Context) error {
	campaigns := m.store.GetAllCampaigns()
	var activeIDs []int
	for i := range campaigns {
		if campaigns[i].Status == models.StatusActive {
			activeIDs = append(activeIDs, campaigns[i].ID)
		}
	}
	if len(activeIDs) == 0 {
		return nil
	}
	remaining, err := m.ledger.RemainingBatch(ctx, activeIDs)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	now := nowFn()
	for i := range campaigns {
		c := &campaigns[i]
		if c.Status != models.StatusActive {
			continue
		}
		rem, ok := remaining[c.ID]
		if !ok {
			continue
		}
		m.CheckAutoComplete(ctx, c, now, rem)
	}
	return nil
}

func (m *Manager) reject(c *models.Campaign, action string) error {
	return fmt.Errorf("%w: cannot %s campaign %d in status %s", ErrInvalidTransition, action, c.ID, c.Status)
}

func (m *Manager) setStatus(ctx context.Context, c *models.Campaign, status string) error {
	if err := m.store.UpdateCampaignStatus(c.ID, status); err != nil {
		return err
	}
	if m.writer != nil {
		if err := m.writer.UpdateCampaignStatus(ctx, c.ID, status); err != nil {
			// In-memory state already moved; persistence catches up on the
			// next reload.
			m.logger.Error("persist status failed",
				zap.Int("campaign_id", c.ID),
				zap.String("status", status),
				zap.Error(err),
			)
		}
	}
	return nil
}
