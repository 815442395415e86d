package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	// maxRequestIDLen caps caller-supplied IDs before they reach logs.
	maxRequestIDLen = 64
)

type requestIDKey struct{}

// quietRoutes are logged at debug level when they succeed.
var quietRoutes = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// RequestIDMiddleware tags each request with an ID, reusing the caller's
// X-Request-ID when it is short enough, and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// LoggingMiddleware writes one line per request, keyed by route pattern.
// Server errors log at error level and client errors at warn; successful
// health and metrics scrapes drop to debug.
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			route := routePattern(r)
			log.Log(requestLevel(route, status), "HTTP request",
				logger.F("method", r.Method),
				logger.F("route", route),
				logger.F("path", r.URL.Path),
				logger.F("status", strconv.Itoa(status)),
				logger.F("bytes", strconv.Itoa(ww.BytesWritten())),
				logger.F("duration_ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10)),
				logger.F("request_id", RequestID(r.Context())),
			)
		})
	}
}

func requestLevel(route string, status int) logger.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.LevelError
	case status >= http.StatusBadRequest:
		return logger.LevelWarn
	case quietRoutes[route]:
		return logger.LevelDebug
	default:
		return logger.LevelInfo
	}
}

// MetricsMiddleware records request counts and latencies per route pattern
func MetricsMiddleware(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.RecordHTTP(r.Method, routePattern(r), ww.Status(), time.Since(start))
		})
	}
}

// routePattern is only complete once the router has served the request.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// RequestID returns the ID set by RequestIDMiddleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
