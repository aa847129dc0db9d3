package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatwatch/internal/collab"
	"threatwatch/internal/hub"
	"threatwatch/internal/ingest"
	"threatwatch/internal/predict"
	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

const recentLimit = 50

// Server exposes the dashboard API and the live feed.
type Server struct {
	store    store.EventStore
	pipeline *ingest.Pipeline
	cache    *predict.Cache
	hub      *hub.Hub
	collab   *collab.Manager
	cfg      *Config
	router   *mux.Router
}

func New(st store.EventStore, pipeline *ingest.Pipeline, cache *predict.Cache, h *hub.Hub, cm *collab.Manager, cfg *Config) *Server {
	s := &Server{store: st, pipeline: pipeline, cache: cache, hub: h, collab: cm, cfg: cfg, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/threats", s.handleSubmitThreat).Methods(http.MethodPost)
	s.router.HandleFunc("/api/threats", s.handleRecentThreats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/threats/predictions", s.handlePredictions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/threats/feed", s.handleFeed).Methods(http.MethodGet)
	s.router.HandleFunc("/api/threats/{id:[0-9]+}/prediction", s.handlePrediction).Methods(http.MethodGet)
	s.router.HandleFunc("/api/intelligence", s.handleShare).Methods(http.MethodPost)
	s.router.HandleFunc("/api/intelligence", s.handleListIntelligence).Methods(http.MethodGet)
	s.router.HandleFunc("/api/intelligence/{id}/verify", s.handleVerify).Methods(http.MethodPost)
	s.router.HandleFunc("/api/intelligence/{id}/endorse", s.handleEndorse).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Router() http.Handler { return s.router }

// StartMetrics serves Prometheus metrics on its own listener.
func (s *Server) StartMetrics(addr string) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var verr *collab.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, predict.ErrNoPrediction):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no prediction available"})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": s.hub.Subscribers()})
}

func (s *Server) handleSubmitThreat(w http.ResponseWriter, r *http.Request) {
	var t threat.Threat
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed threat"})
		return
	}
	if t.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
		return
	}
	id, err := s.pipeline.Submit(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRecentThreats(w http.ResponseWriter, r *http.Request) {
	threats, err := s.store.Recent(r.Context(), r.URL.Query().Get("type"), recentLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if threats == nil {
		threats = []threat.Threat{}
	}
	writeJSON(w, http.StatusOK, threats)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.cache.Predictions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if preds == nil {
		preds = []threat.Prediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad threat id"})
		return
	}
	p, err := s.cache.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type shareRequest struct {
	UserID   string            `json:"user_id"`
	ThreatID int64             `json:"threat_id"`
	Insights string            `json:"insights"`
	Tags     []string          `json:"tags"`
	Scope    threat.ShareScope `json:"share_scope"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}
	rec, err := s.collab.Share(r.Context(), req.UserID, req.ThreatID, req.Insights, req.Tags, req.Scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListIntelligence(w http.ResponseWriter, r *http.Request) {
	recs, err := s.collab.ByScope(r.Context(), threat.ShareScope(r.URL.Query().Get("scope")))
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []threat.IntelligenceRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string                    `json:"user_id"`
		Status threat.VerificationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}
	rec, err := s.collab.Verify(r.Context(), mux.Vars(r)["id"], req.UserID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEndorse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request"})
		return
	}
	rec, err := s.collab.Endorse(r.Context(), mux.Vars(r)["id"], req.UserID, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
