package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/middleware"
	"github.com/jobdeck/adengine/internal/models"
)

// CreateCreativeHandler handles POST /api/v1/creatives.
func (s *Server) CreateCreativeHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "creative_create"
	const method = "POST"

	var c models.Creative
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.Store.GetCampaign(c.CampaignID) == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("campaign %d: %w", c.CampaignID, models.ErrNotFound))
		return
	}

	if s.PG != nil {
		if err := s.PG.InsertCreative(&c); err != nil {
			logger.Error("insert creative", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "insert failed", http.StatusInternalServerError)
			return
		}
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if err := s.Store.InsertCreative(&c); err != nil {
		logger.Error("store creative", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "insert failed", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCreativeHandler handles PUT /api/v1/creatives/{id}. This is the
// creative-swap path; it never touches the campaign's budget or schedule.
func (s *Server) UpdateCreativeHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "creative_update"
	const method = "PUT"

	id, ok := pathID(w, r)
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	existing := s.Store.GetCreative(id)
	if existing == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, fmt.Errorf("creative %d: %w", id, models.ErrNotFound))
		return
	}

	var c models.Creative
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c.ID = id
	c.CampaignID = existing.CampaignID
	c.CreatedAt = existing.CreatedAt

	if s.PG != nil {
		if err := s.PG.UpdateCreative(c); err != nil {
			logger.Error("update creative", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
	}
	if err := s.Store.UpdateCreative(c); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, c)
}

// CreatePlacementHandler handles POST /api/v1/placements.
func (s *Server) CreatePlacementHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "placement_create"
	const method = "POST"

	var p models.Placement
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ID == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "placement id required", http.StatusBadRequest)
		return
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1.0
	}

	if s.PG != nil {
		if err := s.PG.InsertPlacement(p); err != nil {
			logger.Error("insert placement", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "insert failed", http.StatusInternalServerError)
			return
		}
	}
	if err := s.Store.InsertPlacement(p); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "insert failed", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusCreated, p)
}

// ListPlacementsHandler handles GET /api/v1/placements.
func (s *Server) ListPlacementsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "placement_list"
	const method = "GET"

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, s.Store.GetAllPlacements())
}
