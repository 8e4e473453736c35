package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/engine"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

// Analyzer runs one consensus analysis. Satisfied by engine.Engine.
type Analyzer interface {
	Run(ctx context.Context, req engine.Request) *engine.Result
}

// WeightSource resolves the current dynamic weight set. Satisfied by
// benchmark.Resolver.
type WeightSource interface {
	Resolve(ctx context.Context, now time.Time) (model.DynamicWeightSet, error)
}

// Server exposes the analysis engine and benchmark data over HTTP.
type Server struct {
	engine  Analyzer
	store   store.Store
	weights WeightSource
}

func NewServer(eng Analyzer, st store.Store, weights WeightSource) *Server {
	return &Server{engine: eng, store: st, weights: weights}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
		r.Put("/analyses/{id}/truth", s.handleAttachTruth)
		r.Get("/weights", s.handleWeights)
		r.Get("/rankings/{metric}", s.handleRanking)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"` // base64-encoded
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	images := make([][]byte, 0, len(req.Images))
	for _, enc := range req.Images {
		img, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			respondError(w, http.StatusBadRequest, "images must be base64-encoded")
			return
		}
		images = append(images, img)
	}

	// Best-effort: an unreadable calibration history must not block analysis.
	weights, err := s.weights.Resolve(r.Context(), time.Now())
	if err != nil {
		zap.L().Warn("dynamic weight resolution failed, using base weights", zap.Error(err))
		weights = nil
	}

	result := s.engine.Run(r.Context(), engine.Request{
		Prompt:         req.Prompt,
		Images:         images,
		DynamicWeights: weights,
	})
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type truthRequest struct {
	Price      float64    `json:"price"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (s *Server) handleAttachTruth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req truthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Price < 0 {
		respondError(w, http.StatusBadRequest, "price must be non-negative")
		return
	}
	resolvedAt := time.Now().UTC()
	if req.ResolvedAt != nil {
		resolvedAt = req.ResolvedAt.UTC()
	}

	if err := s.store.AttachGroundTruth(r.Context(), id, req.Price, resolvedAt); err != nil {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := s.weights.Resolve(r.Context(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "weight resolution failed")
		return
	}
	if weights == nil {
		weights = model.DynamicWeightSet{}
	}
	respondJSON(w, http.StatusOK, weights)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	metric := model.RankingMetric(chi.URLParam(r, "metric"))
	switch metric {
	case model.RankingOverall, model.RankingPriceAccuracy, model.RankingSpeed:
	default:
		respondError(w, http.StatusBadRequest, "unknown ranking metric")
		return
	}

	weekStart, err := parseWeekStart(r.URL.Query().Get("week"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "week must be YYYY-MM-DD")
		return
	}

	ranking, err := s.store.GetRanking(r.Context(), metric, weekStart)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ranking lookup failed")
		return
	}
	if ranking == nil {
		respondError(w, http.StatusNotFound, "no ranking for that week")
		return
	}
	respondJSON(w, http.StatusOK, ranking)
}

// parseWeekStart parses an explicit week, defaulting to the start of the
// current ISO week (Monday, UTC).
func parseWeekStart(raw string) (time.Time, error) {
	if raw != "" {
		return time.Parse("2006-01-02", raw)
	}
	now := time.Now().UTC()
	offset := (int(now.Weekday()) + 6) % 7
	return now.Truncate(24 * time.Hour).AddDate(0, 0, -offset), nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
