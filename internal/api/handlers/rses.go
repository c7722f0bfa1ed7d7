// rses.go — обработчики /api/v1/rses: список RSE и ручное включение или
// выключение RSE (например, на время обслуживания ленточной библиотеки).
package handlers

import (
	"net/http"

	"github.com/bigkaa/datadispatcher/internal/api/generated"
	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// ListRSEs — GET /api/v1/rses.
func (h *APIHandler) ListRSEs(w http.ResponseWriter, r *http.Request) {
	rses, err := h.dispatcher.ListRSEs(r.Context())
	if err != nil {
		h.serviceError(w, err, "Ошибка получения списка RSE")
		return
	}

	items := make([]generated.RSE, len(rses))
	for i, rse := range rses {
		items[i] = mapRSE(rse)
	}
	writeJSON(w, http.StatusOK, items)
}

// SetRSEAvailability — POST /api/v1/rses/{name}/availability.
// Реплики недоступного RSE не выдаются воркерам и не считаются usable.
func (h *APIHandler) SetRSEAvailability(w http.ResponseWriter, r *http.Request, name string) {
	var req generated.SetRSEAvailabilityJSONRequestBody
	if !decodeBody(w, r, &req, false) {
		return
	}

	rse, err := h.dispatcher.SetRSEAvailability(r.Context(), name, req.Available)
	if err != nil {
		h.serviceError(w, err, "Ошибка изменения доступности RSE")
		return
	}
	writeJSON(w, http.StatusOK, mapRSE(rse))
}

func mapRSE(rse *model.RSE) generated.RSE {
	return generated.RSE{
		Name:         rse.Name,
		Description:  ptrIfSet(rse.Description),
		IsEnabled:    rse.IsEnabled,
		IsAvailable:  rse.IsAvailable,
		IsTape:       rse.IsTape,
		Type:         ptrIfSet(rse.Type),
		PinUrl:       ptrIfSet(rse.PinURL),
		PollUrl:      ptrIfSet(rse.PollURL),
		RemovePrefix: ptrIfSet(rse.RemovePrefix),
		AddPrefix:    ptrIfSet(rse.AddPrefix),
		PinPrefix:    ptrIfSet(rse.PinPrefix),
		Preference:   rse.Preference,
		MaxPollBurst: ptrIfSet(rse.MaxPollBurst),
	}
}
