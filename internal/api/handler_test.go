package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/internal/models"
	"github.com/compounding/growth-backend/internal/simulation"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestHandler returns a handler over a controller whose ticks never fire
// during a test, so every response reflects only the requested transition.
func newTestHandler(t *testing.T) (*Handler, *simulation.Controller) {
	t.Helper()
	m := metrics.NewCollector("test")
	sim, err := simulation.NewController(
		growth.Config{TotalDays: 365, DailyRate: 0.01, StartValue: 1},
		simulation.WithTickInterval(time.Hour),
		simulation.WithMetrics(m),
	)
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	return NewHandler(sim, m, logger.Nop()), sim
}

func serve(handler *Handler, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router := chi.NewRouter()
	router.Mount("/", handler.Routes())
	router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) simulation.Snapshot {
	t.Helper()
	var snap simulation.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap), "body: %s", w.Body.String())
	return snap
}

func TestHandler_Health(t *testing.T) {
	handler, _ := newTestHandler(t)

	w := serve(handler, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandler_GetSimulation(t *testing.T) {
	handler, _ := newTestHandler(t)

	w := serve(handler, http.MethodGet, "/v1/simulation", nil)

	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, simulation.StatusIdle, snap.Status)
	assert.Equal(t, 0, snap.CurrentDay)
	assert.Equal(t, 1.0, snap.CurrentValue)
	assert.Len(t, snap.Series, 1)
	assert.Equal(t, 365, snap.Config.TotalDays)
}

func TestHandler_Transitions(t *testing.T) {
	handler, _ := newTestHandler(t)

	tests := []struct {
		name       string
		path       string
		wantStatus simulation.Status
	}{
		{name: "start", path: "/v1/simulation/start", wantStatus: simulation.StatusRunning},
		{name: "start again is a no-op", path: "/v1/simulation/start", wantStatus: simulation.StatusRunning},
		{name: "pause", path: "/v1/simulation/pause", wantStatus: simulation.StatusPaused},
		{name: "pause again is a no-op", path: "/v1/simulation/pause", wantStatus: simulation.StatusPaused},
		{name: "resume", path: "/v1/simulation/start", wantStatus: simulation.StatusRunning},
		{name: "reset", path: "/v1/simulation/reset", wantStatus: simulation.StatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler, http.MethodPost, tt.path, nil)

			require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
			assert.Equal(t, tt.wantStatus, decodeSnapshot(t, w).Status)
		})
	}
}

func TestHandler_ConfigureSimulation(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		running        bool
		expectedStatus int
		validate       func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "valid config",
			body:           `{"total_days": 100, "daily_rate": 0.02}`,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				snap := decodeSnapshot(t, w)
				assert.Equal(t, 100, snap.Config.TotalDays)
				assert.Equal(t, 0.02, snap.Config.DailyRate)
				assert.Equal(t, simulation.StatusIdle, snap.Status)
			},
		},
		{
			name:           "lower bounds",
			body:           `{"total_days": 30, "daily_rate": 0.001}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "upper bounds",
			body:           `{"total_days": 730, "daily_rate": 0.05}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "too few days",
			body:           `{"total_days": 29, "daily_rate": 0.01}`,
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "invalid config", resp.Error)
				assert.Contains(t, resp.Message, "total_days")
			},
		},
		{
			name:           "rate too high",
			body:           `{"total_days": 365, "daily_rate": 0.06}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative rate",
			body:           `{"total_days": 365, "daily_rate": -0.01}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			body:           "not json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "oversized body",
			body:           `{"total_days": 100, "daily_rate": 0.02, "note": "` + strings.Repeat("x", maxConfigBodyBytes) + `"}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "request body too large", resp.Error)
			},
		},
		{
			name:           "while running",
			body:           `{"total_days": 100, "daily_rate": 0.02}`,
			running:        true,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, sim := newTestHandler(t)
			if tt.running {
				sim.Start()
			}

			w := serve(handler, http.MethodPut, "/v1/simulation/config", []byte(tt.body))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				assert.Equal(t, 365, sim.Config().TotalDays, "rejected config must not change the run")
			}
			if tt.validate != nil {
				tt.validate(t, w)
			}
		})
	}
}

func TestHandler_GetProjection(t *testing.T) {
	handler, _ := newTestHandler(t)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		validate       func(*testing.T, models.ProjectionResponse)
	}{
		{
			name:           "defaults",
			query:          "",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp models.ProjectionResponse) {
				assert.Len(t, resp.Points, 366)
				assert.InDelta(t, 37.78, resp.FinalValue, 0.01)
				assert.InDelta(t, 3678.34, resp.GrowthPercent, 0.01)
			},
		},
		{
			name:           "custom start value",
			query:          "?total_days=30&daily_rate=0.05&start_value=10",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp models.ProjectionResponse) {
				assert.Len(t, resp.Points, 31)
				assert.Equal(t, 10.0, resp.Points[0].Value)
				assert.Equal(t, 10.0, resp.Points[30].Baseline)
				assert.InDelta(t, 43.219, resp.FinalValue, 0.001)
			},
		},
		{
			name:           "days out of range",
			query:          "?total_days=1000",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-numeric rate",
			query:          "?daily_rate=lots",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero start value",
			query:          "?start_value=0",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler, http.MethodGet, "/v1/projection"+tt.query, nil)

			require.Equal(t, tt.expectedStatus, w.Code, "body: %s", w.Body.String())
			if tt.validate != nil {
				var resp models.ProjectionResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				tt.validate(t, resp)
			}
		})
	}
}

func TestHandler_Metrics(t *testing.T) {
	handler, _ := newTestHandler(t)
	serve(handler, http.MethodPost, "/v1/simulation/start", nil)

	w := serve(handler, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_simulation_runs_started_total 1")
}

func TestHandler_StreamSimulation(t *testing.T) {
	handler, sim := newTestHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/simulation/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan simulation.Snapshot)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap simulation.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				return
			}
			select {
			case events <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	first := <-events
	assert.Equal(t, simulation.StatusIdle, first.Status)

	sim.Start()
	for snap := range events {
		if snap.Status == simulation.StatusRunning {
			return
		}
	}
	t.Fatal("stream ended before the running snapshot arrived")
}

func TestMiddleware_RequestID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-123", seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	long := strings.Repeat("a", maxRequestIDLen+1)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", long)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, long, seen)
	assert.LessOrEqual(t, len(seen), maxRequestIDLen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	assert.Empty(t, RequestID(context.Background()))
}

func TestMiddleware_Logging(t *testing.T) {
	handler, _ := newTestHandler(t)
	core, logs := observer.New(zap.DebugLevel)

	router := chi.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(LoggingMiddleware(logger.FromZap(zap.New(core))))
	router.Mount("/", handler.Routes())

	tests := []struct {
		path  string
		route string
		level zapcore.Level
		code  string
	}{
		{path: "/healthz", route: "/healthz", level: zapcore.DebugLevel, code: "200"},
		{path: "/v1/projection?total_days=30", route: "/v1/projection", level: zapcore.InfoLevel, code: "200"},
		{path: "/v1/projection?total_days=1", route: "/v1/projection", level: zapcore.WarnLevel, code: "400"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "log-test")
			router.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			e := entries[0]
			assert.Equal(t, tt.level, e.Level)
			fields := e.ContextMap()
			assert.Equal(t, tt.route, fields["route"])
			assert.Equal(t, tt.code, fields["status"])
			assert.Equal(t, "log-test", fields["request_id"])
		})
	}
}

func TestMiddleware_MetricsUsesRoutePattern(t *testing.T) {
	handler, _ := newTestHandler(t)
	m := metrics.NewCollector("mw")

	router := chi.NewRouter()
	router.Use(MetricsMiddleware(m))
	router.Mount("/", handler.Routes())

	for _, path := range []string{"/v1/projection?total_days=30", "/v1/projection?total_days=40", "/v1/projection?total_days=1"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/v1/projection", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/v1/projection", "400")))
}
