package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/middleware"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/recorder"
	"github.com/jobdeck/adengine/internal/selector"
	"github.com/jobdeck/adengine/internal/token"
)

// AdResponse is one served ad with its signed event URLs.
type AdResponse struct {
	CampaignID     int    `json:"campaign_id"`
	CreativeID     int    `json:"creative_id"`
	Type           string `json:"type"`
	AssetURL       string `json:"asset_url"`
	DestinationURL string `json:"destination_url"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	ImpressionURL  string `json:"impression_url"`
	ClickURL       string `json:"click_url"`
}

// AdsResponse wraps the selection result.
type AdsResponse struct {
	RequestID string       `json:"request_id"`
	Ads       []AdResponse `json:"ads"`
}

// AdsHandler handles POST /api/v1/ads: select ads for a placement and
// return them with signed impression and click URLs.
func (s *Server) AdsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AdsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/api/v1/ads"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "ads"
	const method = "POST"

	var req models.AdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode ad request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlacementID == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "placement_id required", http.StatusBadRequest)
		return
	}

	deviceType, country := "", ""
	if s.Resolver != nil {
		deviceType, country = s.Resolver.Enrich(r, &req.Attributes)
	}
	span.SetAttributes(
		attribute.String("placement_id", req.PlacementID),
		attribute.String("device_type", deviceType),
	)

	ads, err := s.Selector.Select(ctx, req)
	if err != nil {
		if errors.Is(err, selector.ErrUnknownPlacement) {
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			writeError(w, err)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		logger.Error("selection failed", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "selection failed", http.StatusInternalServerError)
		return
	}

	requestID := uuid.NewString()
	resp := AdsResponse{RequestID: requestID, Ads: make([]AdResponse, 0, len(ads))}
	for _, ad := range ads {
		out, err := s.buildAdResponse(requestID, ad, req)
		if err != nil {
			logger.Error("build ad response", zap.Error(err), zap.Int("campaign_id", ad.Campaign.ID))
			continue
		}
		resp.Ads = append(resp.Ads, out)

		if s.Dispatcher != nil {
			s.Dispatcher.DispatchServe(ad, recorder.EventRequest{
				PlacementID: req.PlacementID,
				ViewerID:    req.ViewerID,
				PageURL:     req.PageURL,
				DeviceType:  deviceType,
				Country:     country,
			})
		}
	}

	span.SetAttributes(attribute.Int("ads_returned", len(resp.Ads)))
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// buildAdResponse signs the event callback URLs for one selected ad.
func (s *Server) buildAdResponse(requestID string, ad models.SelectedAd, req models.AdRequest) (AdResponse, error) {
	claims := token.Claims{
		RequestID:   requestID,
		CampaignID:  ad.Campaign.ID,
		CreativeID:  ad.Creative.ID,
		PlacementID: req.PlacementID,
		ViewerID:    req.ViewerID,
	}
	tok, err := token.Generate(claims, s.TokenSecret)
	if err != nil {
		return AdResponse{}, fmt.Errorf("sign event token: %w", err)
	}
	q := url.Values{"t": {tok}}.Encode()
	return AdResponse{
		CampaignID:     ad.Campaign.ID,
		CreativeID:     ad.Creative.ID,
		Type:           ad.Campaign.Type,
		AssetURL:       ad.Creative.AssetURL,
		DestinationURL: ad.Creative.DestinationURL,
		Width:          ad.Creative.Width,
		Height:         ad.Creative.Height,
		ImpressionURL:  "/impression?" + q,
		ClickURL:       "/click?" + q,
	}, nil
}
