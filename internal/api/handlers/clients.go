// clients.go — обработчики белого списка клиентов:
// публичная проверка DNI и CRUD /api/admin/clients.
package handlers

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/dhsimulator/internal/api/errors"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/service"
)

const msgClientNotFound = "Cliente no encontrado"

// clientJSON — клиент в ответах администратора.
type clientJSON struct {
	ID        string    `json:"id"`
	DNI       string    `json:"dni"`
	FullName  string    `json:"fullName"`
	MinAmount float64   `json:"minAmount"`
	MaxAmount float64   `json:"maxAmount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func mapClient(c *model.ClientLimit) clientJSON {
	return clientJSON{
		ID:        c.ID,
		DNI:       c.DNI,
		FullName:  c.FullName,
		MinAmount: c.MinAmount,
		MaxAmount: c.MaxAmount,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// publicClientJSON — данные клиента, видимые на публичной странице.
type publicClientJSON struct {
	FullName  string  `json:"fullName"`
	MinAmount float64 `json:"minAmount"`
	MaxAmount float64 `json:"maxAmount"`
}

type checkRequest struct {
	DNI string `json:"dni"`
}

type checkResponse struct {
	Found      bool              `json:"found"`
	Client     *publicClientJSON `json:"client,omitempty"`
	ContactURL string            `json:"contactUrl,omitempty"`
}

// CheckClient — POST /api/clients/check.
// Неизвестный DNI — 200 {found:false} со ссылкой для связи через WhatsApp.
func (h *APIHandler) CheckClient(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.clients.Check(r.Context(), req.DNI)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeJSON(w, http.StatusOK, checkResponse{Found: false, ContactURL: h.simulator.ContactURL(req.DNI)})
			return
		}
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Found:  true,
		Client: &publicClientJSON{FullName: c.FullName, MinAmount: c.MinAmount, MaxAmount: c.MaxAmount},
	})
}

// ListClients — GET /api/admin/clients.
func (h *APIHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}

	items := make([]clientJSON, len(clients))
	for i, c := range clients {
		items[i] = mapClient(c)
	}
	writeJSON(w, http.StatusOK, items)
}

type upsertClientRequest struct {
	DNI       string   `json:"dni"`
	FullName  string   `json:"fullName"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
}

// UpsertClient — POST /api/admin/clients. Создание или обновление по DNI.
func (h *APIHandler) UpsertClient(w http.ResponseWriter, r *http.Request) {
	var req upsertClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.clients.Upsert(r.Context(), service.ClientInput{
		DNI:       req.DNI,
		FullName:  req.FullName,
		MinAmount: req.MinAmount,
		MaxAmount: req.MaxAmount,
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mapClient(c))
}

type updateClientRequest struct {
	ID        string   `json:"id"`
	DNI       *string  `json:"dni"`
	FullName  *string  `json:"fullName"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
}

// UpdateClient — PUT /api/admin/clients. Частичное обновление по id.
func (h *APIHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		apierrors.ValidationError(w, "ID requerido")
		return
	}

	c, err := h.clients.Update(r.Context(), req.ID, model.ClientPatch{
		DNI:       req.DNI,
		FullName:  req.FullName,
		MinAmount: req.MinAmount,
		MaxAmount: req.MaxAmount,
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mapClient(c))
}

// DeleteClient — DELETE /api/admin/clients?id=
func (h *APIHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		apierrors.ValidationError(w, "ID requerido")
		return
	}

	if err := h.clients.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type bulkRequest struct {
	IDs       []string `json:"ids"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
}

type bulkFailureJSON struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type bulkResponse struct {
	Mode    string            `json:"mode"`
	Updated int               `json:"updated"`
	Failed  []bulkFailureJSON `json:"failed"`
	Error   string            `json:"error,omitempty"`
}

// BulkUpdateClients — POST /api/admin/clients/bulk.
// Частичная неудача — 500 с отчётом по строкам.
func (h *APIHandler) BulkUpdateClients(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MinAmount == nil || req.MaxAmount == nil {
		apierrors.ValidationError(w, "Monto mínimo y máximo requeridos")
		return
	}

	result, err := h.clients.BulkUpdate(r.Context(), req.IDs, *req.MinAmount, *req.MaxAmount)
	if err != nil && result == nil {
		h.writeServiceError(w, r, err, msgClientNotFound)
		return
	}

	resp := bulkResponse{Mode: result.Mode, Updated: result.Updated, Failed: make([]bulkFailureJSON, len(result.Failed))}
	for i, f := range result.Failed {
		resp.Failed[i] = bulkFailureJSON{ID: f.ID, Error: f.Error}
	}

	if err != nil {
		h.logger.Warn("Массовое обновление выполнено частично",
			"updated", result.Updated,
			"failed", len(result.Failed),
			"error", err,
		)
		resp.Error = "Error en la actualización masiva"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
