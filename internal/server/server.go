// Пакет server — HTTP-сервер симулятора с graceful shutdown.
// Без TLS: TLS termination выполняется на reverse proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/dhsimulator/internal/api/handlers"
	"github.com/bigkaa/dhsimulator/internal/api/middleware"
	"github.com/bigkaa/dhsimulator/internal/config"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	uihandlers "github.com/bigkaa/dhsimulator/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/dhsimulator/internal/ui/middleware"
	"github.com/bigkaa/dhsimulator/internal/ui/static"
)

// Handlers — обработчики, из которых собирается роутер.
type Handlers struct {
	API     *handlers.APIHandler
	Health  *handlers.HealthHandler
	Auth    *uihandlers.AuthHandler
	Pages   *uihandlers.PageHandler
	Gateway *uimiddleware.Gateway
}

// Server — HTTP-сервер симулятора.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер. Доступ к маршрутам определяет Gateway,
// /api/admin/* дополнительно требует роль admin.
func NewRouter(logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(h.Gateway.Middleware)

	// Health и metrics проверяются Kubernetes напрямую
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	// Страницы
	router.Get("/", h.Pages.HandleRoot)
	router.Get("/login", h.Auth.HandleLogin)
	router.Get("/callback", h.Auth.HandleCallback)
	router.Post("/logout", h.Auth.HandleLogout)
	router.Get("/logout", h.Auth.HandleLogout)
	router.Get("/publico", h.Pages.HandlePublic)
	router.Get("/simulador", h.Pages.HandleSimulator)
	router.Get("/admin", h.Pages.HandleDashboard)
	router.Get("/admin/clients", h.Pages.HandleClients)
	router.Get("/admin/config", h.Pages.HandleConfig)
	router.Get("/admin/users", h.Pages.HandleUsers)

	// Публичное API симулятора
	router.Post("/api/clients/check", h.API.CheckClient)
	router.Post("/api/simulation/log", h.API.LogSimulation)
	router.Get("/api/simulation/quote", h.API.GetQuote)
	router.Post("/api/simulation/request", h.API.RequestHandoff)
	router.Get("/api/flyer", h.API.DownloadFlyer)

	// API администратора
	router.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(rbac.RoleAdmin))

		r.Get("/clients", h.API.ListClients)
		r.Post("/clients", h.API.UpsertClient)
		r.Put("/clients", h.API.UpdateClient)
		r.Delete("/clients", h.API.DeleteClient)
		r.Post("/clients/bulk", h.API.BulkUpdateClients)

		r.Get("/config", h.API.GetConfig)
		r.Post("/config", h.API.SaveConfig)

		r.Get("/stats", h.API.GetStats)
		r.Get("/reset-logs", h.API.ResetLogs)
		r.Post("/reset-logs", h.API.ResetLogs)

		r.Get("/users", h.API.ListUsers)
		r.Post("/users", h.API.CreateUser)
		r.Delete("/users/{id}", h.API.DeleteUser)
		r.Post("/users/{id}/password", h.API.ChangePassword)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
