package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/dhsimulator/internal/api/handlers"
	"github.com/bigkaa/dhsimulator/internal/api/middleware"
	"github.com/bigkaa/dhsimulator/internal/config"
	"github.com/bigkaa/dhsimulator/internal/database"
	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/flyer"
	"github.com/bigkaa/dhsimulator/internal/keycloak"
	"github.com/bigkaa/dhsimulator/internal/repository"
	"github.com/bigkaa/dhsimulator/internal/server"
	"github.com/bigkaa/dhsimulator/internal/service"
	"github.com/bigkaa/dhsimulator/internal/ui/auth"
	uihandlers "github.com/bigkaa/dhsimulator/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/dhsimulator/internal/ui/middleware"
	"github.com/bigkaa/dhsimulator/internal/ui/pages"
)

// jwksClientTimeout — таймаут HTTP-запросов за JWKS.
const jwksClientTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP-сервер",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Конфигурация и логирование
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	logger.Info("DH Simulator запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("DH_DEPHEALTH_GROUP") == "" {
		logger.Warn("DH_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("DH_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	// 2. Миграции БД
	logger.Info("Применение миграций БД...")
	schema, err := database.Migrate(cfg, logger)
	if err != nil {
		return fmt.Errorf("ошибка миграций БД: %w", err)
	}
	logger.Info("Схема БД", slog.Uint64("version", uint64(schema.Version)))

	// 3. PostgreSQL (pgxpool) и адаптер *sql.DB для topologymetrics
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}
	defer pool.Close()

	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Keycloak Admin API
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		nil,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 5. Repositories
	configRepo := repository.NewAppConfigRepository(pool)
	clientRepo := repository.NewClientLimitRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	logRepo := repository.NewSimulationLogRepository(pool)

	// 6. Services
	configSvc := service.NewConfigService(configRepo, cfg.ConfigCacheSize, cfg.ConfigCacheTTL, logger)
	clientSvc := service.NewClientService(
		clientRepo, repository.NewTxRunner(pool),
		cfg.BulkUpdateMode, cfg.BulkUpdateConcurrency, cfg.DefaultMinAmount,
		logger,
	)
	simLogger := service.NewSimulationLogger(logRepo, cfg.LogQueueSize, logger)

	flyerRenderer, err := flyer.NewRenderer()
	if err != nil {
		return fmt.Errorf("ошибка инициализации флаеров: %w", err)
	}
	simulatorSvc := service.NewSimulatorService(
		configSvc, clientSvc,
		calculator.New(calculator.MissingRatePolicy(cfg.MissingRatePolicy), cfg.FallbackRate),
		simLogger, flyerRenderer,
		service.Phones{Loans: cfg.WhatsAppLoansPhone, Footwear: cfg.WhatsAppFootwearPhone},
		logger,
	)
	statsSvc := service.NewStatsService(profileRepo, logRepo, simLogger, logger)
	userSvc := service.NewUserService(kcClient, profileRepo, cfg.RoleAdminGroups, cfg.RoleAgentGroups, logger)

	// 7. Фоновая запись журнала симуляций
	simLogger.Start(ctx)

	// 8. Проверка JWT (Bearer и токены сессии)
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		userSvc,
		jwksClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		simLogger.Stop()
		return fmt.Errorf("ошибка создания JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 9. topologymetrics — мониторинг PostgreSQL и Keycloak
	var deps handlers.DependencyHealth
	dephealthSvc, dephealthErr := service.NewDephealthService(cfg.DephealthGroup, service.DependencyTargets{
		DB:            pgDB,
		DatabaseURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		Interval:      cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.DephealthTLSSkipVerify,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. Веб-интерфейс: сессии, OIDC, страницы
	secureCookie := strings.HasPrefix(cfg.PublicURL, "https")
	sessions, err := auth.NewSessionManager(cfg.SessionSecret, secureCookie)
	if err != nil {
		simLogger.Stop()
		return fmt.Errorf("ошибка создания Session Manager: %w", err)
	}
	oidcClient := auth.NewOIDCClient(auth.OIDCConfig{
		KeycloakURL:        cfg.KeycloakURL,
		BrowserKeycloakURL: cfg.KeycloakBrowserURL,
		Realm:              cfg.KeycloakRealm,
		ClientID:           cfg.OIDCClientID,
	})
	renderer, err := pages.New()
	if err != nil {
		simLogger.Stop()
		return fmt.Errorf("ошибка загрузки шаблонов: %w", err)
	}

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, server.Handlers{
		API: handlers.NewAPIHandler(
			clientSvc, configSvc, simulatorSvc, simLogger, statsSvc, userSvc,
			logger,
		),
		Health: handlers.NewHealthHandler([]handlers.ReadinessCheck{
			{Name: "postgresql", Checker: database.NewReadinessChecker(pool), Critical: true},
			{Name: "keycloak", Checker: kcClient},
		}, deps),
		Auth:    uihandlers.NewAuthHandler(oidcClient, sessions, jwtAuth, userSvc, renderer, cfg.PublicURL, config.Version, logger),
		Pages:   uihandlers.NewPageHandler(renderer, statsSvc, config.Version, logger),
		Gateway: uimiddleware.NewGateway(sessions, oidcClient, jwtAuth, logger),
	})
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	simLogger.Stop()

	if runErr != nil {
		return fmt.Errorf("ошибка сервера: %w", runErr)
	}
	logger.Info("DH Simulator остановлен")
	return nil
}
