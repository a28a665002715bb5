package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/middleware"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/pricing"
)

// CreateCampaignHandler handles POST /api/v1/campaigns. New campaigns always
// start in draft regardless of what the payload claims.
func (s *Server) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "campaign_create"
	const method = "POST"

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateCampaign(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.Status = models.StatusDraft
	if c.Currency == "" {
		c.Currency = "USD"
	}

	if s.PG != nil {
		if err := s.PG.InsertCampaign(&c); err != nil {
			logger.Error("insert campaign", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "insert failed", http.StatusInternalServerError)
			return
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
		c.UpdatedAt = c.CreatedAt
	}
	if err := s.Store.InsertCampaign(&c); err != nil {
		logger.Error("store campaign", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "insert failed", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusCreated, c)
}

// GetCampaignHandler handles GET /api/v1/campaigns/{id}.
func (s *Server) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "campaign_get"
	const method = "GET"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	c := s.Store.GetCampaign(id)
	if c == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound))
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, c)
}

// UpdateCampaignHandler handles PUT /api/v1/campaigns/{id}. Status is not
// editable here; transitions go through their own endpoint.
func (s *Server) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "campaign_update"
	const method = "PUT"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	existing := s.Store.GetCampaign(id)
	if existing == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound))
		return
	}

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c.ID = id
	c.Status = existing.Status
	c.CreatedAt = existing.CreatedAt
	if err := validateCampaign(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.PG != nil {
		if err := s.PG.UpdateCampaign(c); err != nil {
			logger.Error("update campaign", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
	}
	if err := s.Store.UpdateCampaign(c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, c)
}

// transitionBody is the POST transition payload.
type transitionBody struct {
	Action string `json:"action"`
}

// TransitionHandler handles POST /api/v1/campaigns/{id}/transition.
func (s *Server) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "campaign_transition"
	const method = "POST"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	var body transitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "action required", http.StatusBadRequest)
		return
	}

	if err := s.Lifecycle.Transition(r.Context(), id, body.Action); err != nil {
		logger.Warn("transition rejected",
			zap.Int("campaign_id", id),
			zap.String("action", body.Action),
			zap.Error(err),
		)
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, s.Store.GetCampaign(id))
}

// fundBody is the POST fund payload.
type fundBody struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// FundHandler handles POST /api/v1/campaigns/{id}/fund: raise the budget
// total after an external payment settles.
func (s *Server) FundHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "campaign_fund"
	const method = "POST"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	c := s.Store.GetCampaign(id)
	if c == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound))
		return
	}

	var body fundBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount <= 0 {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "positive amount required", http.StatusBadRequest)
		return
	}
	if err := pricing.ValidateCurrency(c, body.Currency); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "422")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	snap, err := s.Ledger.Fund(r.Context(), id, body.Amount)
	if err != nil {
		logger.Error("fund failed", zap.Int("campaign_id", id), zap.Error(err))
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	// Mirror the raised total onto the campaign record.
	updated := *c
	updated.BudgetTotal = snap.Total
	if err := s.Store.UpdateCampaign(updated); err != nil {
		logger.Error("store budget total", zap.Error(err))
	}
	if s.PG != nil {
		if err := s.PG.UpdateBudgetTotal(r.Context(), id, snap.Total); err != nil {
			logger.Error("persist budget total", zap.Error(err))
		}
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, snap)
}

// BudgetHandler handles GET /api/v1/campaigns/{id}/budget.
func (s *Server) BudgetHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "campaign_budget"
	const method = "GET"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	if s.Store.GetCampaign(id) == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("campaign %d: %w", id, models.ErrNotFound))
		return
	}

	snap, err := s.Ledger.Snapshot(r.Context(), id)
	if err != nil {
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, snap)
}

// AnalyticsHandler handles GET /api/v1/campaigns/{id}/analytics?days=N.
func (s *Server) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "campaign_analytics"
	const method = "GET"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}

	report, err := s.Aggregator.CampaignReport(r.Context(), id, days)
	if err != nil {
		logger.Warn("campaign report", zap.Int("campaign_id", id), zap.Error(err))
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, report)
}

func validateCampaign(c *models.Campaign) error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	switch c.Type {
	case models.TypeBanner, models.TypeSidebar, models.TypeInterstitial, models.TypeNative, models.TypeVideo:
	default:
		return fmt.Errorf("unknown campaign type %q", c.Type)
	}
	switch c.PricingMode {
	case models.PricingFlat, models.PricingCPM, models.PricingCPC:
	default:
		return fmt.Errorf("unknown pricing mode %q", c.PricingMode)
	}
	if c.BudgetTotal <= 0 {
		return fmt.Errorf("budget_total must be positive")
	}
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end_date must be after start_date")
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
