// dephealth.go — граф зависимостей симулятора для topologymetrics.
//
// Вершина dh-simulator зависит от PostgreSQL (лимиты клиентов, конфигурация,
// журнал симуляций) и от JWKS Keycloak (проверка токенов агентов).
// Обе зависимости критичные. Метрики app_dependency_* отдаются через /metrics.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ServiceID — имя вершины симулятора в графе зависимостей.
const ServiceID = "dh-simulator"

// Имена зависимостей в метриках.
const (
	depPostgres = "postgresql"
	depJWKS     = "keycloak-jwks"
)

// DependencyTargets — что и как часто проверять.
type DependencyTargets struct {
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool): проверка идёт
	// через пул приложения и видит его исчерпание.
	DB *sql.DB
	// DatabaseURL — URL без пароля, только для лейблов.
	DatabaseURL string
	// JWKSURL — JWKS endpoint realm; /health Keycloak слушает management-порт.
	JWKSURL       string
	Interval      time.Duration
	TLSSkipVerify bool
}

// DephealthOption настраивает DephealthService.
type DephealthOption func(*[]dephealth.Option)

// WithMetricsRegisterer регистрирует метрики в r вместо глобального registry.
func WithMetricsRegisterer(r prometheus.Registerer) DephealthOption {
	return func(opts *[]dephealth.Option) {
		*opts = append(*opts, dephealth.WithRegisterer(r))
	}
}

// DephealthService периодически проверяет зависимости.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует PostgreSQL и JWKS в группе group.
func NewDephealthService(group string, targets DependencyTargets, logger *slog.Logger, options ...DephealthOption) (*DephealthService, error) {
	if targets.DB == nil {
		return nil, errors.New("dephealth: не передан *sql.DB")
	}
	logger = logger.With(slog.String("component", "dephealth"))

	jwksPath := jwksHealthPath(targets.JWKSURL)
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(depPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.DatabaseURL),
			dephealth.CheckInterval(targets.Interval),
			dephealth.Critical(true),
		),
		dephealth.HTTP(depJWKS,
			dephealth.FromURL(targets.JWKSURL),
			dephealth.WithHTTPHealthPath(jwksPath),
			dephealth.CheckInterval(targets.Interval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(targets.TLSSkipVerify),
		),
	}
	for _, apply := range options {
		apply(&opts)
	}

	dh, err := dephealth.New(ServiceID, group, opts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("Зависимости зарегистрированы",
		slog.String("group", group),
		slog.String("jwks_path", jwksPath),
		slog.Duration("interval", targets.Interval),
	)
	return &DephealthService{dh: dh, logger: logger}, nil
}

// Start запускает проверки в фоне.
func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Мониторинг зависимостей запущен")
	return nil
}

// Stop останавливает проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — последние результаты: ключ "<зависимость>:<host>:<port>", true — доступна.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// jwksHealthPath — path JWKS URL; без path проверяется "/health".
func jwksHealthPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/health"
	}
	return u.Path
}
