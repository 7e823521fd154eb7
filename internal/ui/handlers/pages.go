package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apimw "github.com/bigkaa/dhsimulator/internal/api/middleware"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	"github.com/bigkaa/dhsimulator/internal/ui/pages"
)

// StatsProvider — статистика для панели администратора (StatsService).
type StatsProvider interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// PageHandler — обработчик HTML-страниц симулятора и панели администратора.
// Данные таблиц страницы загружают сами через JSON API.
type PageHandler struct {
	renderer *pages.Renderer
	stats    StatsProvider
	version  string
	logger   *slog.Logger
}

// NewPageHandler создаёт новый PageHandler.
func NewPageHandler(renderer *pages.Renderer, stats StatsProvider, version string, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		renderer: renderer,
		stats:    stats,
		version:  version,
		logger:   logger.With(slog.String("component", "ui.pages")),
	}
}

// HandleRoot — GET / → домашняя страница роли, без входа — публичный симулятор.
func (h *PageHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	p := apimw.PrincipalFromContext(r.Context())
	if p == nil {
		http.Redirect(w, r, "/publico", http.StatusFound)
		return
	}
	http.Redirect(w, r, rbac.HomePath(p.Role), http.StatusFound)
}

// HandlePublic — GET /publico
func (h *PageHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pages.Public, pages.Data{Title: "Simulador"})
}

// HandleSimulator — GET /simulador
func (h *PageHandler) HandleSimulator(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pages.Simulator, pages.Data{Title: "Simulador"})
}

// HandleDashboard — GET /admin
// Ошибка получения статистики не мешает показать страницу.
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := pages.Data{Title: "Panel"}
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения статистики", slog.String("error", err.Error()))
		data.Error = "No se pudieron cargar las estadísticas"
	} else {
		data.Stats = stats
	}
	h.render(w, r, pages.Dashboard, data)
}

// HandleClients — GET /admin/clients
func (h *PageHandler) HandleClients(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pages.Clients, pages.Data{Title: "Clientes"})
}

// HandleConfig — GET /admin/config
func (h *PageHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pages.Config, pages.Data{Title: "Tasas"})
}

// HandleUsers — GET /admin/users
func (h *PageHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, pages.Users, pages.Data{Title: "Usuarios"})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, page string, data pages.Data) {
	data.Version = h.version
	if p := apimw.PrincipalFromContext(r.Context()); p != nil {
		data.User = &pages.User{ID: p.UserID, Email: p.DisplayName(), Role: p.Role, IsAdmin: p.IsAdmin()}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, page, data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Error al mostrar la página", http.StatusInternalServerError)
	}
}
