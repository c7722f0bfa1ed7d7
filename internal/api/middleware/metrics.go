// metrics.go — Prometheus HTTP метрики Data Dispatcher.
// Регистрирует метрики: dd_http_requests_total, dd_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dd_http_requests_total",
			Help: "Общее количество HTTP-запросов к Data Dispatcher",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Data Dispatcher в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			// Лейбл пути — шаблон маршрута chi; без маршрута путь
			// нормализуется, чтобы идентификаторы не раздували кардинальность
			normalizedPath := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				normalizedPath = rctx.RoutePattern()
			}
			if normalizedPath == "" {
				normalizedPath = normalizePath(r.URL.Path)
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

const projectsPrefix = "/api/v1/projects/"

// projectActions — допустимые суффиксы после идентификатора проекта.
var projectActions = map[string]bool{
	"":             true,
	"/log":         true,
	"/handles":     true,
	"/handles/log": true,
	"/reserve":     true,
	"/release":     true,
	"/restart":     true,
	"/hold":        true,
	"/activate":    true,
	"/cancel":      true,
}

// normalizePath заменяет идентификатор проекта на {id} для предотвращения
// взрывного роста кардинальности метрик. Неизвестные пути сводятся к "other".
// /api/v1/projects/42/reserve → /api/v1/projects/{id}/reserve
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/projects", "/api/v1/projects/", "/api/v1/rses":
		return strings.TrimSuffix(path, "/")
	}

	if name, ok := strings.CutPrefix(path, "/api/v1/rses/"); ok {
		if n, found := strings.CutSuffix(name, "/availability"); found && n != "" && !strings.Contains(n, "/") {
			return "/api/v1/rses/{name}/availability"
		}
		return "other"
	}

	rest, ok := strings.CutPrefix(path, projectsPrefix)
	if !ok {
		return "other"
	}
	id, suffix, _ := strings.Cut(rest, "/")
	if id == "" {
		return "other"
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "other"
	}
	if suffix != "" {
		suffix = "/" + strings.TrimSuffix(suffix, "/")
	}
	if !projectActions[suffix] {
		return "other"
	}
	return projectsPrefix + "{id}" + suffix
}
