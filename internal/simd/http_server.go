package simd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoSim-25-26J-441/habituation-core/internal/policy"
	"github.com/GoSim-25-26J-441/habituation-core/internal/store"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

type HTTPServer struct {
	router   *chi.Mux
	store    *RunStore
	Executor *RunExecutor
	limiter  policy.RateLimitingPolicy
	log      *slog.Logger
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		router:   chi.NewRouter(),
		store:    store,
		Executor: executor,
		log:      logger.Component("http"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/v1/metrics", s.handleMetrics)
	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Post("/{id}", s.handleRunAction)
		r.Get("/{id}/peaks", s.handleGetPeaks)
	})
	return s
}

// WithSubmitLimit rate limits run creation per client address.
func (s *HTTPServer) WithSubmitLimit(p policy.RateLimitingPolicy) *HTTPServer {
	s.limiter = p
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCreateRun handles POST /v1/runs. The run starts immediately.
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientKey(r), time.Now()) {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "too many run submissions")
		return
	}
	var req struct {
		RunID string   `json:"run_id,omitempty"`
		Input RunInput `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Input.CallbackSecret = r.Header.Get("X-Habsim-Callback-Secret")

	rec, err := s.Executor.Submit(req.RunID, req.Input)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.log.Info("run created", "run_id", rec.Run.ID)
	s.writeJSON(w, http.StatusCreated, map[string]any{"run": runJSON(rec.Run)})
}

// handleMetrics handles GET /v1/metrics.
func (s *HTTPServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	c := s.Executor.Metrics()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": c.Uptime().Seconds(),
		"series":         c.Snapshot(),
	})
}

// handleListRuns handles GET /v1/runs?limit=&status=&source=archive.
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}

	var runs []*models.Run
	if q.Get("source") == "archive" {
		archive := s.Executor.Archive()
		if archive == nil {
			s.writeError(w, http.StatusPreconditionFailed, "no archive configured")
			return
		}
		archived, err := archive.List(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		runs = archived
	} else {
		for _, rec := range s.store.List(limit, models.RunStatus(strings.ToLower(q.Get("status")))) {
			runs = append(runs, rec.Run)
		}
	}

	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON(run))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  out,
		"count": len(out),
		"limit": limit,
	})
}

// handleGetRun handles GET /v1/runs/{id}, falling back to the archive.
func (s *HTTPServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.lookup(r, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": runJSON(run)})
}

// handleRunAction handles POST /v1/runs/{id}:stop.
func (s *HTTPServer) handleRunAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := strings.Cut(chi.URLParam(r, "id"), ":")
	if !ok || action != "stop" {
		s.writeError(w, http.StatusNotFound, "unknown run action")
		return
	}
	updated, err := s.Executor.Stop(id)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": runJSON(updated.Run)})
}

// handleGetPeaks handles GET /v1/runs/{id}/peaks.
func (s *HTTPServer) handleGetPeaks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp := map[string]any{"run_id": id}

	if rec, ok := s.store.Get(id); ok {
		if rec.Result == nil {
			s.writeError(w, http.StatusPreconditionFailed, "peaks not available")
			return
		}
		resp["peaks"] = levels(rec.Result.Peaks)
		resp["troughs"] = levels(rec.Result.Troughs)
		resp["habituation"] = rec.Result.Habituation
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	run, err := s.lookup(r, id)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	if run.Summary == nil {
		s.writeError(w, http.StatusPreconditionFailed, "peaks not available")
		return
	}
	resp["peaks"] = levels(run.Summary.Peaks)
	resp["habituation"] = models.HabituationResult{Steps: run.Summary.HabituationSteps, Time: run.Summary.HabituationTime}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) lookup(r *http.Request, id string) (*models.Run, error) {
	if rec, ok := s.store.Get(id); ok {
		return rec.Run, nil
	}
	if archive := s.Executor.Archive(); archive != nil {
		return archive.Get(r.Context(), id)
	}
	return nil, ErrRunNotFound
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRunID), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// levels encodes extrema with NaN levels as null.
func levels(ex []models.Extremum) []map[string]any {
	out := make([]map[string]any, len(ex))
	for i, e := range ex {
		out[i] = map[string]any{"step": e.Step, "level": jsonFloat(e.Level)}
	}
	return out
}

func runJSON(run *models.Run) map[string]any {
	out := map[string]any{
		"id":         run.ID,
		"status":     run.Status,
		"model":      run.Model,
		"created_at": run.CreatedAt,
		"error":      run.Error,
	}
	if run.Model != "" {
		out["params"] = map[string]any{
			"period":      jsonFloat(run.Params.Period),
			"on_duration": jsonFloat(run.Params.OnDuration),
			"amin":        jsonFloat(run.Params.Amin),
			"amax":        jsonFloat(run.Params.Amax),
			"rates":       run.Params.Rates,
		}
	}
	if !run.StartedAt.IsZero() {
		out["started_at"] = run.StartedAt
	}
	if !run.EndedAt.IsZero() {
		out["ended_at"] = run.EndedAt
		out["duration_ms"] = run.Duration.Milliseconds()
	}
	if sum := run.Summary; sum != nil {
		out["summary"] = map[string]any{
			"habituation_time":  jsonFloat(sum.HabituationTime),
			"habituation_steps": sum.HabituationSteps,
			"recovery_time":     jsonFloat(sum.RecoveryTime),
			"outcome":           sum.Outcome,
			"periods":           sum.Periods,
			"degraded_periods":  sum.DegradedPeriods,
		}
	}
	return out
}
