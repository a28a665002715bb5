package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/middleware"
	"github.com/jobdeck/adengine/internal/recorder"
	"github.com/jobdeck/adengine/internal/token"
)

// ImpressionHandler handles GET /impression pixel requests.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ImpressionHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/impression"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "impression"
	const method = "GET"

	claims, ok := s.verifyEventToken(w, r, endpoint, method, start, logger, span)
	if !ok {
		return
	}

	req := s.eventRequest(r, claims)
	res, err := s.Recorder.RecordImpression(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record impression")
		logger.Error("record impression", zap.Error(err), zap.Int("campaign_id", claims.CampaignID))
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "record failed", status)
		return
	}

	span.SetAttributes(
		attribute.String("event_id", res.EventID),
		attribute.Bool("billable", res.Billable),
		attribute.Bool("duplicate", res.Duplicate),
	)

	// The pixel always renders; billing outcome is internal.
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// ClickHandler handles GET /click: record the click and redirect the viewer
// to the creative's destination.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/click"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "click"
	const method = "GET"

	claims, ok := s.verifyEventToken(w, r, endpoint, method, start, logger, span)
	if !ok {
		return
	}

	req := s.eventRequest(r, claims)
	res, err := s.Recorder.RecordClick(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record click")
		logger.Error("record click", zap.Error(err), zap.Int("campaign_id", claims.CampaignID))
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "record failed", status)
		return
	}
	span.SetAttributes(
		attribute.String("event_id", res.EventID),
		attribute.Bool("billable", res.Billable),
	)

	dest := ""
	if cr := s.Store.GetCreative(claims.CreativeID); cr != nil {
		dest = cr.DestinationURL
	}
	if dest == "" {
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		w.WriteHeader(http.StatusOK)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "302")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	http.Redirect(w, r, dest, http.StatusFound)
}

// conversionBody is the POST /api/v1/conversions payload.
type conversionBody struct {
	CampaignID     int     `json:"campaign_id"`
	CreativeID     int     `json:"creative_id"`
	PlacementID    string  `json:"placement_id"`
	ViewerID       string  `json:"viewer_id"`
	ConversionType string  `json:"conversion_type"`
	Value          float64 `json:"value"`
	Currency       string  `json:"currency"`
}

// ConversionHandler handles POST /api/v1/conversions. Conversions arrive
// from the portal backend, not the browser, so they carry no token.
func (s *Server) ConversionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ConversionHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/api/v1/conversions"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "conversion"
	const method = "POST"

	var body conversionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.Recorder.RecordConversion(ctx, recorder.ConversionRequest{
		EventRequest: recorder.EventRequest{
			CampaignID:  body.CampaignID,
			CreativeID:  body.CreativeID,
			PlacementID: body.PlacementID,
			ViewerID:    body.ViewerID,
		},
		ConversionType: body.ConversionType,
		Value:          body.Value,
		Currency:       body.Currency,
	})
	if err != nil {
		span.RecordError(err)
		logger.Warn("record conversion", zap.Error(err), zap.Int("campaign_id", body.CampaignID))
		status := errorStatus(err)
		s.Metrics.IncrementRequests(endpoint, method, httpStatusLabel(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

// verifyEventToken validates the signed token on pixel and click callbacks.
func (s *Server) verifyEventToken(w http.ResponseWriter, r *http.Request, endpoint, method string, start time.Time, logger *zap.Logger, span trace.Span) (token.Claims, bool) {
	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "token required", http.StatusUnauthorized)
		return token.Claims{}, false
	}
	claims, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return token.Claims{}, false
	}
	span.SetAttributes(
		attribute.String("request_id", claims.RequestID),
		attribute.Int("campaign_id", claims.CampaignID),
		attribute.Int("creative_id", claims.CreativeID),
	)
	return claims, true
}

// eventRequest assembles a recorder request from verified claims plus
// device and geo attributes resolved from the callback itself.
func (s *Server) eventRequest(r *http.Request, claims token.Claims) recorder.EventRequest {
	req := recorder.EventRequest{
		CampaignID:  claims.CampaignID,
		CreativeID:  claims.CreativeID,
		PlacementID: claims.PlacementID,
		ViewerID:    claims.ViewerID,
		UserAgent:   r.Header.Get("User-Agent"),
	}
	if s.Resolver != nil {
		req.DeviceType, req.Country = s.Resolver.Enrich(r, nil)
	}
	return req
}

func httpStatusLabel(status int) string {
	switch status {
	case http.StatusNotFound:
		return "404"
	case http.StatusConflict:
		return "409"
	case http.StatusUnprocessableEntity:
		return "422"
	default:
		return "500"
	}
}
