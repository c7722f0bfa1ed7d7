// handles.go — обработчики file handle проекта: резервирование, завершение,
// перезапуск, список и журнал.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/datadispatcher/internal/api/errors"
	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// ReserveHandle — POST /api/v1/projects/{id}/reserve. Тело необязательно.
// Ответ всегда 200: status reserved, retry или ended.
func (h *APIHandler) ReserveHandle(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	var req generated.ReserveHandleJSONRequestBody
	if !decodeBody(w, r, &req, true) {
		return
	}

	res, err := h.dispatcher.Reserve(r.Context(), id, deref(req.WorkerId), deref(req.CpuSite))
	if err != nil {
		h.serviceError(w, err, "Ошибка резервирования файла")
		return
	}

	resp := generated.ReserveResponse{
		Status:   generated.ReserveStatus(res.Status),
		WorkerId: ptrIfSet(res.WorkerID),
	}
	if res.Handle != nil {
		fh := mapHandle(res.Handle)
		resp.Handle = &fh
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReleaseHandle — POST /api/v1/projects/{id}/release.
// failed=false — файл обработан; failed=true, retry=true — вернуть в очередь;
// failed=true, retry=false — окончательная ошибка.
func (h *APIHandler) ReleaseHandle(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	var req generated.ReleaseHandleJSONRequestBody
	if !decodeBody(w, r, &req, false) {
		return
	}
	did, err := model.ParseDID(req.Did)
	if err != nil {
		apierrors.Validation(w, err.Error())
		return
	}

	fh, err := h.dispatcher.Release(r.Context(), id, did, deref(req.Failed), deref(req.Retry))
	if err != nil {
		h.serviceError(w, err, "Ошибка завершения резервирования")
		return
	}
	writeJSON(w, http.StatusOK, mapHandle(fh))
}

// RestartHandles — POST /api/v1/projects/{id}/restart.
// Без фильтров перезапускаются failed handle.
func (h *APIHandler) RestartHandles(w http.ResponseWriter, r *http.Request, id generated.ProjectId) {
	var req generated.RestartHandlesJSONRequestBody
	if !decodeBody(w, r, &req, true) {
		return
	}

	rawDIDs := deref(req.Dids)
	dids := make([]model.DID, 0, len(rawDIDs))
	for _, s := range rawDIDs {
		did, err := model.ParseDID(s)
		if err != nil {
			apierrors.Validation(w, err.Error())
			return
		}
		dids = append(dids, did)
	}
	var states []model.HandleState
	for _, s := range deref(req.States) {
		states = append(states, model.HandleState(s))
	}

	n, err := h.dispatcher.Restart(r.Context(), id, states, dids)
	if err != nil {
		h.serviceError(w, err, "Ошибка перезапуска handle")
		return
	}
	writeJSON(w, http.StatusOK, generated.RestartResponse{Restarted: n})
}

// ListHandles — GET /api/v1/projects/{id}/handles?state=.
func (h *APIHandler) ListHandles(w http.ResponseWriter, r *http.Request, id generated.ProjectId, params generated.ListHandlesParams) {
	var state *model.HandleState
	if params.State != nil {
		hs := model.HandleState(*params.State)
		state = &hs
	}

	handles, err := h.dispatcher.Handles(r.Context(), id, state)
	if err != nil {
		h.serviceError(w, err, "Ошибка получения handle проекта")
		return
	}

	items := make([]generated.FileHandle, len(handles))
	for i, fh := range handles {
		items[i] = mapHandle(fh)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetHandleLog — GET /api/v1/projects/{id}/handles/log?did=namespace:name.
// Без did возвращается журнал всех handle проекта.
func (h *APIHandler) GetHandleLog(w http.ResponseWriter, r *http.Request, id generated.ProjectId, params generated.GetHandleLogParams) {
	var did *model.DID
	if s := deref(params.Did); s != "" {
		d, err := model.ParseDID(s)
		if err != nil {
			apierrors.Validation(w, err.Error())
			return
		}
		did = &d
	}

	records, err := h.dispatcher.HandleLog(r.Context(), id, did)
	if err != nil {
		h.serviceError(w, err, "Ошибка получения журнала handle")
		return
	}

	resp := make([]generated.HandleLogRecord, len(records))
	for i, rec := range records {
		resp[i] = generated.HandleLogRecord{
			Namespace: rec.Namespace,
			Name:      rec.Name,
			Type:      rec.Type,
			T:         rec.T,
			Data:      attrsPtr(rec.Data),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// mapHandle преобразует доменную модель в представление API.
func mapHandle(fh *model.FileHandle) generated.FileHandle {
	resp := generated.FileHandle{
		ProjectId:     fh.ProjectID,
		Did:           fh.DID().String(),
		Namespace:     fh.Namespace,
		Name:          fh.Name,
		State:         generated.HandleState(fh.State),
		DerivedState:  fh.DerivedState(),
		WorkerId:      fh.WorkerID,
		Attempts:      fh.Attempts,
		ReservedSince: fh.ReservedSince,
		Attributes:    fh.Attributes,
		Replicas:      make([]generated.Replica, len(fh.Replicas)),
	}
	if resp.Attributes == nil {
		resp.Attributes = generated.Attributes{}
	}
	for i, rep := range fh.Replicas {
		resp.Replicas[i] = generated.Replica{
			Namespace:    rep.Namespace,
			Name:         rep.Name,
			Rse:          rep.RSE,
			Path:         rep.Path,
			Url:          rep.URL,
			Preference:   rep.Preference,
			Available:    rep.Available,
			RseAvailable: rep.RSEAvailable,
		}
	}
	return resp
}
