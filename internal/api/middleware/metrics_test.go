package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/projects", "/api/v1/projects"},
		{"/api/v1/projects/", "/api/v1/projects"},
		{"/api/v1/projects/42", "/api/v1/projects/{id}"},
		{"/api/v1/projects/42/", "/api/v1/projects/{id}"},
		{"/api/v1/projects/42/reserve", "/api/v1/projects/{id}/reserve"},
		{"/api/v1/projects/7/handles/log", "/api/v1/projects/{id}/handles/log"},
		{"/api/v1/projects/abc/reserve", "other"},
		{"/api/v1/projects/42/unknown", "other"},
		{"/random/path", "other"},
		{"/api/v1/rses", "/api/v1/rses"},
		{"/api/v1/rses/FNAL_TAPE/availability", "/api/v1/rses/{name}/availability"},
		{"/api/v1/rses/FNAL_TAPE", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.expected)
		}
	}
}

func TestMetricsMiddleware_StatusCode(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects/1", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("статус = %d, ожидалось %d", rec.Code, http.StatusTeapot)
	}
}

func TestRequestLogger_Level(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	// Служебный путь логируется на DEBUG и не попадает в вывод
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Errorf("/health/live не должен логироваться на уровне INFO: %s", buf.String())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status=500") {
		t.Errorf("ожидалась запись уровня ERROR со status=500: %s", buf.String())
	}
}

func TestRequestLogger_RouteAttrs(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.Post("/api/v1/projects/{id}/reserve", func(w http.ResponseWriter, r *http.Request) {})
	router.Post("/api/v1/rses/{name}/availability", func(w http.ResponseWriter, r *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/projects/42/reserve", nil))
	out := buf.String()
	if !strings.Contains(out, "route=/api/v1/projects/{id}/reserve") || !strings.Contains(out, "project_id=42") {
		t.Errorf("ожидались route и project_id: %s", out)
	}

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/rses/FNAL_TAPE/availability", nil))
	if !strings.Contains(buf.String(), "rse=FNAL_TAPE") {
		t.Errorf("ожидалось имя RSE: %s", buf.String())
	}
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(MetricsMiddleware())
	router.Get("/api/v1/projects/{id}/handles", func(w http.ResponseWriter, r *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/projects/9/handles", nil))

	var m dto.Metric
	if err := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/projects/{id}/handles", "200").Write(&m); err != nil {
		t.Fatalf("ошибка чтения счётчика: %v", err)
	}
	if got := m.GetCounter().GetValue(); got < 1 {
		t.Errorf("счётчик для шаблона маршрута = %v, ожидалось >= 1", got)
	}
}
