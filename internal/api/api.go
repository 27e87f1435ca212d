// Package api exposes the inquiry and SOP graphs over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/internal/inquiry"
	"github.com/deepakparameswar/csflow/internal/sop"
	"github.com/deepakparameswar/csflow/internal/support"
	"github.com/deepakparameswar/csflow/pkg/lifecycle"
)

// Config holds the Handler's collaborators. Events, Readiness and Metrics
// are optional.
type Config struct {
	Inquiry   *graph.Engine[inquiry.State]
	SOP       *graph.Engine[sop.State]
	Directory *support.Directory

	// Events serves the run timeline. It should be one of the engines' emitters.
	Events *emit.BufferedEmitter

	Readiness lifecycle.ReadinessChecker
	Metrics   http.Handler
	Logger    zerolog.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	inquiry   *graph.Engine[inquiry.State]
	sop       *graph.Engine[sop.State]
	dir       *support.Directory
	events    *emit.BufferedEmitter
	readiness lifecycle.ReadinessChecker
	metrics   http.Handler
	logger    zerolog.Logger
	newID     func() string
}

// New validates cfg and returns a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Inquiry == nil || cfg.SOP == nil {
		return nil, errors.New("api: inquiry and sop engines are required")
	}
	dir := cfg.Directory
	if dir == nil {
		dir = support.DefaultDirectory()
	}
	return &Handler{
		inquiry:   cfg.Inquiry,
		sop:       cfg.SOP,
		dir:       dir,
		events:    cfg.Events,
		readiness: cfg.Readiness,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("system", "http").Logger(),
		newID:     uuid.NewString,
	}, nil
}

// Routes returns the API mux wrapped in request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /inquiries", h.StartInquiry)
	mux.HandleFunc("POST /inquiries/{runID}/resume", h.ResumeInquiry)

	mux.HandleFunc("POST /sop-runs", h.StartSOP)
	mux.HandleFunc("POST /sop-runs/{runID}/approve", h.ApproveSOP)

	mux.HandleFunc("GET /runs/{graph}/{runID}", h.GetRun)
	mux.HandleFunc("DELETE /runs/{graph}/{runID}", h.DeleteRun)
	mux.HandleFunc("GET /runs/{graph}/{runID}/events", h.RunEvents)

	mux.HandleFunc("GET /payments/{userID}", h.GetPayment)
	mux.HandleFunc("GET /transactions/{userID}", h.GetTransaction)
	mux.HandleFunc("GET /issues", h.ListIssues)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return h.logRequests(mux)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether startup has finished.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	if h.readiness != nil && !h.readiness.Ready() {
		RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
