// health.go — обработчики health endpoints Data Dispatcher.
// /health/live — процесс жив
// /health/ready — готовность (PostgreSQL + каталог реплик)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "data-dispatcher"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker      ReadinessChecker
	catalogChecker ReadinessChecker
	promHandler    http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker — проверка PostgreSQL, catalogChecker — проверка каталога реплик.
// Оба могут быть nil (readiness вернёт "fail" для nil зависимостей).
func NewHealthHandler(pgChecker, catalogChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:      pgChecker,
		catalogChecker: catalogChecker,
		promHandler:    promhttp.Handler(),
	}
}

// HealthLive — GET /health/live. Возвращает 200, пока процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generated.HealthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — GET /health/ready. Проверяет PostgreSQL и каталог реплик.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := generated.HealthReadyResponse{
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Version:   config.Version,
		Service:   serviceName,
	}

	resp.Checks.Postgresql = check(h.pgChecker)
	resp.Checks.Catalog = check(h.catalogChecker)

	resp.Status = generated.HealthReadyResponseStatus(overallStatus(
		string(resp.Checks.Postgresql.Status),
		string(resp.Checks.Catalog.Status),
	))

	status := http.StatusOK
	if resp.Status == generated.HealthReadyResponseStatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func check(c ReadinessChecker) generated.HealthCheckResult {
	if c == nil {
		return generated.HealthCheckResult{Status: generated.HealthCheckResultStatusFail, Message: ptrIfSet("не инициализирован")}
	}
	status, msg := c.CheckReady()
	return generated.HealthCheckResult{Status: generated.HealthCheckResultStatus(status), Message: ptrIfSet(msg)}
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
