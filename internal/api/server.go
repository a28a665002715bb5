// Package api exposes the HTTP surface: ad selection, event callbacks,
// campaign management and analytics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/lifecycle"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
	"github.com/jobdeck/adengine/internal/pricing"
	"github.com/jobdeck/adengine/internal/recorder"
	"github.com/jobdeck/adengine/internal/selector"
	"github.com/jobdeck/adengine/internal/targeting"
)

var tracer = otel.Tracer("adengine")

// pixelGIF is the 1x1 transparent GIF served to impression pixels.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger     *zap.Logger
	Store      models.CampaignStore
	PG         *db.Postgres
	Redis      *db.RedisStore
	Ledger     ledger.Ledger
	Pricing    *pricing.Model
	Lifecycle  *lifecycle.Manager
	Selector   *selector.Selector
	Recorder   *recorder.Recorder
	Dispatcher *recorder.Dispatcher
	Aggregator *analytics.Aggregator
	Resolver   *targeting.Resolver
	Metrics    observability.MetricsRegistry
	Config     config.Config

	TokenSecret []byte
	TokenTTL    time.Duration

	reloadMu sync.Mutex
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Logger:      logger,
		Metrics:     observability.NewNoOpRegistry(),
		Config:      cfg,
		TokenSecret: []byte(cfg.TokenSecret),
		TokenTTL:    cfg.TokenTTL,
	}
}

// Routes registers every handler on a mux router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/ads", s.AdsHandler).Methods(http.MethodPost)
	r.HandleFunc("/impression", s.ImpressionHandler).Methods(http.MethodGet)
	r.HandleFunc("/click", s.ClickHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/conversions", s.ConversionHandler).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/campaigns", s.CreateCampaignHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/campaigns/{id}", s.GetCampaignHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/campaigns/{id}", s.UpdateCampaignHandler).Methods(http.MethodPut)
	r.HandleFunc("/api/v1/campaigns/{id}/transition", s.TransitionHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/campaigns/{id}/fund", s.FundHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/campaigns/{id}/budget", s.BudgetHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/campaigns/{id}/analytics", s.AnalyticsHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/creatives", s.CreateCreativeHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/creatives/{id}", s.UpdateCreativeHandler).Methods(http.MethodPut)

	r.HandleFunc("/api/v1/placements", s.CreatePlacementHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/placements", s.ListPlacementsHandler).Methods(http.MethodGet)

	r.HandleFunc("/reload", s.ReloadHandler).Methods(http.MethodPost)

	return r
}

// Reload refreshes campaigns, creatives and placements from Postgres.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.PG == nil {
		return errors.New("postgres unavailable")
	}
	return db.LoadAll(s.PG, s.Store)
}

// ReloadHandler triggers a data reload on demand.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "reload"
	const method = "POST"

	if err := s.Reload(); err != nil {
		s.Logger.Error("reload failed", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "reload failed", http.StatusInternalServerError)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInsufficientBudget):
		return http.StatusConflict
	case errors.Is(err, selector.ErrUnknownPlacement):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}
