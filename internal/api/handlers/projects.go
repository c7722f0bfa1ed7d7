// projects.go — обработчики /api/v1/projects endpoints.
// Создание, просмотр, журнал и смена состояния проекта.
package handlers

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/datadispatcher/internal/api/errors"
	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// CreateProject — POST /api/v1/projects.
// Создаёт проект и file handle для всех файлов.
func (h *APIHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req generated.CreateProjectJSONRequestBody
	if !decodeBody(w, r, &req, false) {
		return
	}

	np := model.NewProject{
		Owner:      req.Owner,
		Query:      deref(req.Query),
		Attributes: deref(req.Attributes),
		Users:      deref(req.Users),
		Files:      make([]model.NewFile, len(req.Files)),
	}
	var err error
	if np.WorkerTimeout, err = parseTimeout(req.WorkerTimeout); err != nil {
		apierrors.Validation(w, "worker_timeout: "+err.Error())
		return
	}
	if np.IdleTimeout, err = parseTimeout(req.IdleTimeout); err != nil {
		apierrors.Validation(w, "idle_timeout: "+err.Error())
		return
	}
	for i, f := range req.Files {
		np.Files[i] = model.NewFile{
			DID:        model.DID{Namespace: f.Namespace, Name: f.Name},
			Attributes: deref(f.Attributes),
		}
	}

	p, err := h.dispatcher.CreateProject(r.Context(), np)
	if err != nil {
		h.serviceError(w, err, "Ошибка создания проекта")
		return
	}

	writeJSON(w, http.StatusCreated, mapProject(p))
}

// ListProjects — GET /api/v1/projects?state=&limit=&offset=.
func (h *APIHandler) ListProjects(w http.ResponseWriter, r *http.Request, params generated.ListProjectsParams) {
	limit, offset := paginationDefaults(params.Limit, params.Offset)

	var state *model.ProjectState
	if params.State != nil {
		ps := model.ProjectState(*params.State)
		state = &ps
	}

	projects, err := h.dispatcher.ListProjects(r.Context(), state, limit, offset)
	if err != nil {
		h.serviceError(w, err, "Ошибка получения списка проектов")
		return
	}

	items := make([]generated.Project, len(projects))
	for i, p := range projects {
		items[i] = mapProject(p)
	}
	writeJSON(w, http.StatusOK, generated.ProjectListResponse{Items: items, Limit: limit, Offset: offset})
}

// GetProject — GET /api/v1/projects/{id}.
func (h *APIHandler) GetProject(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	p, err := h.dispatcher.GetProject(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "Ошибка получения проекта")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(p))
}

// GetProjectLog — GET /api/v1/projects/{id}/log.
func (h *APIHandler) GetProjectLog(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	records, err := h.dispatcher.ProjectLog(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "Ошибка получения журнала проекта")
		return
	}

	resp := make([]generated.LogRecord, len(records))
	for i, rec := range records {
		resp[i] = generated.LogRecord{Type: rec.Type, T: rec.T, Data: attrsPtr(rec.Data)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HoldProject — POST /api/v1/projects/{id}/hold.
func (h *APIHandler) HoldProject(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	h.changeState(w, r, id, h.dispatcher.Hold)
}

// ActivateProject — POST /api/v1/projects/{id}/activate.
func (h *APIHandler) ActivateProject(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	h.changeState(w, r, id, h.dispatcher.Activate)
}

// CancelProject — POST /api/v1/projects/{id}/cancel.
func (h *APIHandler) CancelProject(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	h.changeState(w, r, id, h.dispatcher.Cancel)
}

func (h *APIHandler) changeState(w http.ResponseWriter, r *http.Request, id int64, op func(context.Context, int64) (*model.Project, error)) {
	p, err := op(r.Context(), id)
	if err != nil {
		h.serviceError(w, err, "Ошибка изменения состояния проекта")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(p))
}

// parseTimeout разбирает необязательный таймаут; пустое значение — не задан.
func parseTimeout(s *string) (*time.Duration, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// mapProject преобразует доменную модель в представление API.
func mapProject(p *model.Project) generated.Project {
	resp := generated.Project{
		ProjectId:  p.ID,
		Owner:      p.Owner,
		State:      generated.ProjectState(p.State),
		CreatedAt:  p.CreatedAt,
		EndedAt:    p.EndedAt,
		Attributes: p.Attributes,
		Query:      ptrIfSet(p.Query),
	}
	if resp.Attributes == nil {
		resp.Attributes = generated.Attributes{}
	}
	if len(p.Users) > 0 {
		resp.Users = &p.Users
	}
	if p.WorkerTimeout != nil {
		resp.WorkerTimeout = ptrIfSet(p.WorkerTimeout.String())
	}
	if p.IdleTimeout != nil {
		resp.IdleTimeout = ptrIfSet(p.IdleTimeout.String())
	}
	return resp
}

// attrsPtr возвращает атрибуты для необязательного поля ответа.
func attrsPtr(m map[string]any) *generated.Attributes {
	if len(m) == 0 {
		return nil
	}
	a := generated.Attributes(m)
	return &a
}
