// config.go — GET/POST /api/admin/config: таблица ставок и настройки обуви.
package handlers

import (
	"net/http"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
)

// configJSON — сохранённая конфигурация; null — запись отсутствует.
type configJSON struct {
	Rates    calculator.RateTable       `json:"rates"`
	Footwear *calculator.FootwearConfig `json:"footwear"`
}

// GetConfig — GET /api/admin/config.
func (h *APIHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	stored, err := h.config.Stored(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, configJSON{Rates: stored.Rates, Footwear: stored.Footwear})
}

// SaveConfig — POST /api/admin/config {rates?, footwear?}.
// Каждый переданный блок перезаписывается целиком.
func (h *APIHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req configJSON
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.config.Save(r.Context(), req.Rates, req.Footwear, actor(r)); err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
