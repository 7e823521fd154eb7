// Пакет handlers — обработчики JSON API симулятора.
// handler.go — общий обработчик API, делегирующий запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/dhsimulator/internal/api/errors"
	"github.com/bigkaa/dhsimulator/internal/api/middleware"
	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/service"
)

// ClientManager — белый список клиентов (service.ClientService).
type ClientManager interface {
	Check(ctx context.Context, dni string) (*model.ClientLimit, error)
	List(ctx context.Context) ([]*model.ClientLimit, error)
	Upsert(ctx context.Context, in service.ClientInput) (*model.ClientLimit, error)
	Update(ctx context.Context, id string, patch model.ClientPatch) (*model.ClientLimit, error)
	Delete(ctx context.Context, id string) error
	BulkUpdate(ctx context.Context, ids []string, minAmount, maxAmount float64) (*model.BulkUpdateResult, error)
}

// ConfigManager — конфигурация калькулятора (service.ConfigService).
type ConfigManager interface {
	Stored(ctx context.Context) (*service.StoredConfig, error)
	Save(ctx context.Context, rates calculator.RateTable, footwear *calculator.FootwearConfig, updatedBy string) error
}

// Simulator — сценарии симулятора (service.SimulatorService).
type Simulator interface {
	Quote(ctx context.Context, mode calculator.Mode, amount float64, dni string) (*service.QuoteResult, error)
	ContactURL(dni string) string
	Request(ctx context.Context, in service.SimulationInput) (*service.HandoffResult, error)
	Flyer(ctx context.Context, in service.SimulationInput) (*service.FlyerResult, error)
}

// ActionLogger — журнал действий из UI (service.SimulationLogger).
type ActionLogger interface {
	Log(req service.LogRequest) error
}

// StatsReporter — статистика и сброс журнала (service.StatsService).
type StatsReporter interface {
	Stats(ctx context.Context) (*model.Stats, error)
	ResetLogs(ctx context.Context, requestedBy string) (int64, error)
}

// UserManager — управление пользователями (service.UserService).
type UserManager interface {
	List(ctx context.Context, search string) ([]*model.AppUser, error)
	Create(ctx context.Context, in model.NewUser) (*model.AppUser, error)
	Delete(ctx context.Context, id string) error
	ChangePassword(ctx context.Context, id, password string) error
}

// APIHandler — обработчик JSON API симулятора.
type APIHandler struct {
	clients   ClientManager
	config    ConfigManager
	simulator Simulator
	actions   ActionLogger
	stats     StatsReporter
	users     UserManager
	logger    *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(
	clients ClientManager,
	config ConfigManager,
	simulator Simulator,
	actions ActionLogger,
	stats StatsReporter,
	users UserManager,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		clients:   clients,
		config:    config,
		simulator: simulator,
		actions:   actions,
		stats:     stats,
		users:     users,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// successResponse — ответ операций без данных.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса. При ошибке отвечает 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "JSON inválido")
		return false
	}
	return true
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-статус.
// notFound — сообщение для ErrNotFound.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, service.Message(err))
	case errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, "Rol inválido: admin o agent")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, notFound)
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, service.Message(err))
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, service.Message(err))
	}
}

// actor — кто выполняет операцию (для аудита в логах и updated_by).
func actor(r *http.Request) string {
	if p := middleware.PrincipalFromContext(r.Context()); p != nil {
		return p.DisplayName()
	}
	return model.UserAdmin
}

// userID — ID пользователя запроса, пустой для анонимного.
func userID(r *http.Request) string {
	if p := middleware.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return ""
}
