// Package api is the HTTP façade: parameter parsing, timeouts, and status
// mapping around the query service and alert pipeline. No detection logic
// lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afrostorm/hazardwatch/pkg/alerts"
	"github.com/afrostorm/hazardwatch/pkg/geo"
	"github.com/afrostorm/hazardwatch/pkg/hazard"
	"github.com/afrostorm/hazardwatch/pkg/query"
	"github.com/afrostorm/hazardwatch/pkg/store"
	"github.com/afrostorm/hazardwatch/pkg/validation"
)

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Server wires the HTTP surface.
type Server struct {
	addr      string
	query     *query.Service
	pipeline  *alerts.Pipeline
	ledger    *validation.Ledger
	store     *store.Store
	detectors []string
	log       zerolog.Logger
}

// New builds the server. detectors names the wired adapters for the health
// endpoint.
func New(addr string, qs *query.Service, pipeline *alerts.Pipeline,
	ledger *validation.Ledger, st *store.Store, detectors []string, log zerolog.Logger) *Server {
	return &Server{
		addr:      addr,
		query:     qs,
		pipeline:  pipeline,
		ledger:    ledger,
		store:     st,
		detectors: detectors,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/hazards", func(r chi.Router) {
		r.Get("/realtime", s.handleRealtime)
		r.Get("/cyclones", s.handleCyclones)
		r.Get("/floods", s.handleFloods)
		r.Get("/landslides", s.handleLandslides)
		r.Get("/convergences", s.handleConvergences)
		r.Get("/summary", s.handleSummary)
		r.Get("/by-region/{region}", s.handleByRegion)
		r.Get("/health", s.handleHealth)
	})
	r.Route("/alerts", func(r chi.Router) {
		r.Post("/test", s.handleAlertTest)
		r.Post("/send", s.handleAlertSend)
		r.Get("/history", s.handleAlertHistory)
		r.Get("/preview/{alertType}", s.handleAlertPreview)
		r.Post("/validate", s.handleValidate)
		r.Get("/validation/stats", s.handleValidationStats)
	})
	r.Get("/track/{trackingID}.png", s.handleTrackingPixel)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe runs until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", s.addr).Msg("api listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the uniform failure body. Fabricated fallback data is
// never returned; callers get the envelope and may retry.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Source  string `json:"source"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: msg, Source: "unavailable"})
}

// queryStatus maps a query-layer failure: 503 because neither fresh data
// nor cache could serve.
func (s *Server) queryError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("query failed")
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func parseHours(r *http.Request, def time.Duration) (time.Duration, error) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return def, nil
	}
	h, err := strconv.Atoi(v)
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("invalid hours parameter %q", v)
	}
	return time.Duration(h) * time.Hour, nil
}

// parseBBox reads bbox=minLon,minLat,maxLon,maxLat.
func parseBBox(r *http.Request) (*geo.BBox, error) {
	v := r.URL.Query().Get("bbox")
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox wants 4 comma-separated values, got %d", len(parts))
	}
	var f [4]float64
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox component %q: %w", p, err)
		}
		f[i] = x
	}
	box := &geo.BBox{MinLon: f[0], MinLat: f[1], MaxLon: f[2], MaxLat: f[3]}
	if err := box.Validate(); err != nil {
		return nil, err
	}
	return box, nil
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	window, err := parseHours(r, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	box, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	feed, err := s.query.Realtime(r.Context(), window, box)
	if err != nil {
		s.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleCyclones(w http.ResponseWriter, r *http.Request) {
	window, err := parseHours(r, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cyclones, err := s.query.Cyclones(r.Context(), window)
	if err != nil {
		s.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(cyclones), "cyclones": cyclones,
	})
}

func (s *Server) handleFloods(w http.ResponseWriter, r *http.Request) {
	window := time.Duration(0)
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid days parameter %q", v))
			return
		}
		window = time.Duration(d) * 24 * time.Hour
	}
	box, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	floods, err := s.query.Floods(r.Context(), window)
	if err != nil {
		s.queryError(w, err)
		return
	}
	if box != nil {
		kept := floods[:0:0]
		for _, f := range floods {
			if box.Contains(f.Location) {
				kept = append(kept, f)
			}
		}
		floods = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(floods), "floods": floods})
}

func (s *Server) handleLandslides(w http.ResponseWriter, r *http.Request) {
	box, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slides, err := s.query.Landslides(r.Context())
	if err != nil {
		s.queryError(w, err)
		return
	}
	if box != nil {
		kept := slides[:0:0]
		for _, z := range slides {
			if box.Contains(z.Location) {
				kept = append(kept, z)
			}
		}
		slides = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(slides), "landslides": slides})
}

func (s *Server) handleConvergences(w http.ResponseWriter, r *http.Request) {
	window, err := parseHours(r, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	convs, err := s.query.Convergences(r.Context(), window)
	if err != nil {
		s.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"convergences": convs})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	feed, err := s.query.Realtime(r.Context(), 24*time.Hour, nil)
	if err != nil {
		s.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed.Summary)
}

func (s *Server) handleByRegion(w http.ResponseWriter, r *http.Request) {
	region := strings.ToLower(chi.URLParam(r, "region"))
	box, ok := alerts.BoxFor(region)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown region %q", region))
		return
	}
	feed, err := s.query.Realtime(r.Context(), 24*time.Hour, &box)
	if err != nil {
		s.queryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"detectors_available": s.detectors,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	})
}

var alertNoticeBuilders = map[string]func() alerts.Notice{
	"cyclone": func() alerts.Notice {
		c := hazard.Cyclone{
			ID: "preview", ThreatLevel: hazard.ThreatCAT2,
			Location:  hazard.Location{Lat: -19.8, Lon: 34.9},
			MaxWindKt: 88, MaxWindMS: 45.3, MinPressureHPa: 955,
			Confidence:    0.9,
			DetectionTime: time.Now().UTC(),
		}
		return alerts.NoticeFromCyclone(&c, "")
	},
	"flood": func() alerts.Notice {
		f := hazard.Flood{
			ID: "preview", Severity: hazard.FloodMajor,
			Location:      hazard.Location{Lat: -19.8, Lon: 34.9},
			AreaKm2:       120, WaterFraction: 0.8,
			DetectionTime: time.Now().UTC(),
		}
		return alerts.NoticeFromFlood(&f, "")
	},
	"landslide": func() alerts.Notice {
		z := hazard.LandslideRisk{
			ID: "preview", RiskLevel: hazard.RiskHigh, RiskScore: 0.5,
			Location:          hazard.Location{Lat: -18.9, Lon: 47.5},
			SlopeDeg:          22, RainfallMM: 180,
			Reason:            "22 deg slope with 180 mm rainfall in 24h",
			RecommendedAction: "Pre-position response teams and warn communities on steep slopes",
			DetectionTime:     time.Now().UTC(),
		}
		return alerts.NoticeFromLandslide(&z, "")
	},
	"convergence": func() alerts.Notice {
		c := hazard.Convergence{
			ID: "preview", CycloneID: "preview-cyc", OutbreakID: "preview-ob",
			Location:      hazard.Location{Lat: -18.9, Lon: 47.5},
			Disease:       "cholera", ThreatLevel: hazard.ThreatTS,
			DistanceKm:    71.4, RiskScore: 0.85,
			AlertPriority: hazard.PriorityHigh,
			DetectedAt:    time.Now().UTC(),
		}
		return alerts.NoticeFromConvergence(&c, "")
	},
}

func (s *Server) handleAlertTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Language    string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n := alertNoticeBuilders["cyclone"]()
	n.Language = req.Language
	msg, err := s.pipeline.Preview(n, req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "preview": msg})
}

func (s *Server) handleAlertSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AlertType  string             `json:"alert_type"`
		HazardID   string             `json:"hazard_id"`
		Country    string             `json:"country"`
		Headline   string             `json:"headline"`
		Lines      []string           `json:"lines"`
		Language   string             `json:"language"`
		Recipients []alerts.Recipient `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AlertType == "" || req.HazardID == "" || req.Headline == "" {
		writeError(w, http.StatusBadRequest, "alert_type, hazard_id and headline are required")
		return
	}
	country := req.Country
	if country == "" {
		country = alerts.RegionalRoute
	}
	rcpts := req.Recipients
	if len(rcpts) == 0 {
		rcpts = alerts.RecipientsFor(country)
	}
	if len(rcpts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no recipients for country %q", country))
		return
	}

	n := alerts.Notice{
		HazardType: req.AlertType,
		HazardID:   req.HazardID,
		Country:    country,
		Headline:   req.Headline,
		Lines:      req.Lines,
		Language:   req.Language,
		IssuedAt:   time.Now().UTC(),
	}
	preview, err := s.pipeline.Preview(n, req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pipeline.SendTo(r.Context(), n, country, rcpts); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// read back the persisted outcome counts
	history, err := s.store.ListAlerts(r.Context(), 1)
	if err != nil || len(history) == 0 {
		writeError(w, http.StatusInternalServerError, "alert persisted state unavailable")
		return
	}
	sent, failed := 0, 0
	for _, o := range history[0].Recipients {
		if o.Outcome == "sent" {
			sent++
		} else {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alert_id": history[0].AlertID,
		"sent":     sent,
		"failed":   failed,
		"preview":  preview,
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.ListAlerts(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_alerts": len(history), "alerts": history,
	})
}

func (s *Server) handleAlertPreview(w http.ResponseWriter, r *http.Request) {
	alertType := chi.URLParam(r, "alertType")
	build, ok := alertNoticeBuilders[alertType]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown alert type %q", alertType))
		return
	}
	n := build()
	lang := r.URL.Query().Get("language")
	msg, err := s.pipeline.Preview(n, lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleTrackingPixel(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	if err := s.store.RecordOpen(r.Context(), trackingID, time.Now().UTC(),
		r.RemoteAddr, r.UserAgent()); err != nil {
		// the pixel must render regardless
		s.log.Warn().Err(err).Str("tracking_id", trackingID).Msg("open not recorded")
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trackingPixel)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AlertID      string    `json:"alert_id"`
		EventType    string    `json:"event_type"`
		EventTime    time.Time `json:"event_time"`
		ActualImpact string    `json:"actual_impact"`
		Notes        string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AlertID == "" || req.EventType == "" || req.EventTime.IsZero() {
		writeError(w, http.StatusBadRequest, "alert_id, event_type and event_time are required")
		return
	}
	ev, err := s.ledger.Reconcile(r.Context(), req.AlertID, req.EventType,
		req.EventTime, req.ActualImpact, req.Notes)
	if errors.Is(err, store.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "lead_time_hours": ev.LeadTimeHours,
	})
}

func (s *Server) handleValidationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
