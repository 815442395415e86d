package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/internal/models"
	"github.com/compounding/growth-backend/internal/simulation"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// maxConfigBodyBytes bounds PUT /v1/simulation/config bodies.
const maxConfigBodyBytes = 4 << 10

// Handler holds all HTTP handlers
type Handler struct {
	sim     *simulation.Controller
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewHandler creates a new handler. m may be nil, in which case /metrics is
// not served.
func NewHandler(sim *simulation.Controller, m *metrics.Collector, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		sim:     sim,
		metrics: m,
		logger:  log,
	}
}

// Routes sets up all routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/simulation", func(r chi.Router) {
			r.Get("/", h.GetSimulation)
			r.Get("/events", h.StreamSimulation)
			r.Post("/start", h.StartSimulation)
			r.Post("/pause", h.PauseSimulation)
			r.Post("/reset", h.ResetSimulation)
			r.Put("/config", h.ConfigureSimulation)
		})
		r.Get("/projection", h.GetProjection)
	})

	return r
}

// Health handles health check requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// GetSimulation handles GET /v1/simulation
func (h *Handler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.sim.Snapshot())
}

// StartSimulation handles POST /v1/simulation/start
func (h *Handler) StartSimulation(w http.ResponseWriter, r *http.Request) {
	h.sim.Start()
	h.respondJSON(w, http.StatusOK, h.sim.Snapshot())
}

// PauseSimulation handles POST /v1/simulation/pause
func (h *Handler) PauseSimulation(w http.ResponseWriter, r *http.Request) {
	h.sim.Pause()
	h.respondJSON(w, http.StatusOK, h.sim.Snapshot())
}

// ResetSimulation handles POST /v1/simulation/reset
func (h *Handler) ResetSimulation(w http.ResponseWriter, r *http.Request) {
	h.sim.Reset()
	h.respondJSON(w, http.StatusOK, h.sim.Snapshot())
}

// ConfigureSimulation handles PUT /v1/simulation/config
func (h *Handler) ConfigureSimulation(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigRequest
	body := http.MaxBytesReader(w, r.Body, maxConfigBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large",
				fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := models.Validate(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid config", err.Error())
		return
	}

	requestID := RequestID(r.Context())
	if err := h.sim.Configure(req.TotalDays, req.DailyRate); err != nil {
		h.logger.Warn("Failed to configure simulation", logger.F("error", err.Error()), logger.F("request_id", requestID))
		switch {
		case errors.Is(err, simulation.ErrRunning):
			h.respondError(w, http.StatusConflict, "simulation is running", "pause or reset the simulation before changing its config")
		case errors.Is(err, growth.ErrInvalidConfig):
			h.respondError(w, http.StatusBadRequest, "invalid config", err.Error())
		default:
			h.respondError(w, http.StatusInternalServerError, "failed to configure simulation", err.Error())
		}
		return
	}

	h.respondJSON(w, http.StatusOK, h.sim.Snapshot())
}

// GetProjection handles GET /v1/projection
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	req, err := parseProjectionRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	if err := models.Validate(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	cfg := growth.Config{
		TotalDays:  req.TotalDays,
		DailyRate:  req.DailyRate,
		StartValue: req.StartValue,
	}
	points, err := growth.Project(cfg)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	final := points[len(points)-1].Value
	h.respondJSON(w, http.StatusOK, models.ProjectionResponse{
		Config:        cfg,
		FinalValue:    final,
		GrowthPercent: growth.GrowthPercent(cfg, final),
		Points:        points,
	})
}

// StreamSimulation handles GET /v1/simulation/events as Server-Sent Events.
// Each event carries the latest snapshot; intermediate snapshots may be
// skipped for slow clients.
func (h *Handler) StreamSimulation(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming unsupported", "response writer cannot flush")
		return
	}

	updates, unsubscribe := h.sim.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := RequestID(r.Context())
	h.logger.Debug("Event stream opened", logger.F("request_id", requestID))

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Event stream closed", logger.F("request_id", requestID))
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("Failed to encode snapshot", logger.F("error", err.Error()), logger.F("request_id", requestID))
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseProjectionRequest(r *http.Request) (models.ProjectionRequest, error) {
	req := models.ProjectionRequest{
		TotalDays:  growth.DefaultTotalDays,
		DailyRate:  growth.DefaultDailyRate,
		StartValue: growth.DefaultStartValue,
	}
	q := r.URL.Query()

	if v := q.Get("total_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("total_days must be an integer")
		}
		req.TotalDays = days
	}
	if v := q.Get("daily_rate"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.New("daily_rate must be a number")
		}
		req.DailyRate = rate
	}
	if v := q.Get("start_value"); v != "" {
		start, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, errors.New("start_value must be a number")
		}
		req.StartValue = start
	}

	return req, nil
}

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", logger.F("error", err.Error()))
	}
}

// respondError sends an error response
func (h *Handler) respondError(w http.ResponseWriter, status int, errorMsg, message string) {
	h.respondJSON(w, status, models.ErrorResponse{
		Error:   errorMsg,
		Message: message,
	})
}
