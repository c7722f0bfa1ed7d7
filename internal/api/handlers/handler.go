// handler.go — основной обработчик API Data Dispatcher.
// Реализует generated.ServerInterface: параметры пути и запроса уже
// привязаны обёрткой oapi-codegen, обработчики разбирают тело и вызывают
// сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/datadispatcher/internal/api/errors"
	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/service"
)

// Dispatcher — операции сервисного слоя, доступные через API.
// Реализуется *service.Dispatcher.
type Dispatcher interface {
	CreateProject(ctx context.Context, np model.NewProject) (*model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error)
	Hold(ctx context.Context, id int64) (*model.Project, error)
	Activate(ctx context.Context, id int64) (*model.Project, error)
	Cancel(ctx context.Context, id int64) (*model.Project, error)
	ProjectLog(ctx context.Context, id int64) ([]model.LogRecord, error)
	Handles(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error)
	HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error)
	Reserve(ctx context.Context, projectID int64, workerID, cpuSite string) (*service.Reservation, error)
	Release(ctx context.Context, projectID int64, did model.DID, failed, retry bool) (*model.FileHandle, error)
	Restart(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) (int, error)
	ListRSEs(ctx context.Context) ([]*model.RSE, error)
	SetRSEAvailability(ctx context.Context, name string, available bool) (*model.RSE, error)
}

// APIHandler — основной обработчик API Data Dispatcher.
type APIHandler struct {
	health     *HealthHandler
	dispatcher Dispatcher
	logger     *slog.Logger
}

var _ generated.ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, dispatcher Dispatcher, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:     health,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive делегируется в HealthHandler.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady делегируется в HealthHandler.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody разбирает JSON-тело запроса в dst. При optional пустое тело
// допустимо. При ошибке пишет 400 и возвращает false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	apierrors.Validation(w, "Некорректный JSON: "+err.Error())
	return false
}

// paginationDefaults нормализует параметры пагинации:
// limit по умолчанию 100 и не больше 1000, offset не меньше 0.
func paginationDefaults(limit, offset *int) (int, int) {
	l, o := 100, 0
	if limit != nil {
		l = min(max(*limit, 1), 1000)
	}
	if offset != nil {
		o = max(*offset, 0)
	}
	return l, o
}

// serviceError отображает ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) serviceError(w http.ResponseWriter, err error, msg string) {
	apierrors.Service(w, h.logger, err, msg)
}

// deref возвращает значение указателя или нулевое значение.
func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ptrIfSet возвращает указатель на непустое значение.
func ptrIfSet[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
