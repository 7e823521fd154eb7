package handlers

import (
	"log/slog"
	"net/http"
)

// MsgLogsReset — ответ на сброс журнала симуляций.
const MsgLogsReset = "CONTADOR RESETEADO A CERO. Todos los logs borrados."

type topUserJSON struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Count int    `json:"count"`
}

type statsResponse struct {
	Users            int           `json:"users"`
	Simulations      int           `json:"simulations"`
	TodaySimulations int           `json:"todaySimulations"`
	TopUsers         []topUserJSON `json:"topUsers"`
}

// GetStats — GET /api/admin/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}

	resp := statsResponse{
		Users:            stats.Users,
		Simulations:      stats.Simulations,
		TodaySimulations: stats.TodaySimulations,
		TopUsers:         make([]topUserJSON, len(stats.TopUsers)),
	}
	for i, u := range stats.TopUsers {
		resp.TopUsers[i] = topUserJSON{ID: u.ID, Email: u.Email, Count: u.Count}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetLogs — GET|POST /api/admin/reset-logs. Удаляет все записи журнала.
func (h *APIHandler) ResetLogs(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.stats.ResetLogs(r.Context(), actor(r))
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}

	h.logger.Info("Журнал симуляций сброшен через API",
		slog.Int64("deleted", deleted),
		slog.String("requested_by", actor(r)),
	)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: MsgLogsReset})
}
