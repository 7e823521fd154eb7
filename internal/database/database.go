// Пакет database — пул PostgreSQL (pgx), схема симулятора (golang-migrate)
// и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/dhsimulator/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Параметры пула. Симулятор держит немного соединений: запросы короткие,
// журнал симуляций пишется пачками одним воркером.
const (
	maxConns          = 10
	minConns          = 1
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	applicationName   = "dh-simulator"
)

// ErrDirtySchema — предыдущая миграция прервалась, нужна ручная правка schema_migrations.
var ErrDirtySchema = errors.New("схема БД в состоянии dirty")

// SchemaVersion — состояние схемы после Migrate.
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// Connect открывает пул. Сессии работают в UTC: дневные лимиты клиентов
// считаются от полуночи UTC.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("Пул PostgreSQL открыт",
		slog.String("database", cfg.DatabaseURL()),
		slog.Int("max_conns", maxConns),
	)
	return pool, nil
}

// Migrate доводит схему до последней версии из встроенных миграций.
// Схема в состоянии dirty не трогается: возвращается ErrDirtySchema.
func Migrate(cfg *config.Config, logger *slog.Logger) (SchemaVersion, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("ошибка инициализации migrate: %w", err)
	}
	defer m.Close()

	before, err := schemaVersion(m)
	if err != nil {
		return SchemaVersion{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("%w: версия %d", ErrDirtySchema, before.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	after, err := schemaVersion(m)
	if err != nil {
		return before, err
	}
	if after.Version != before.Version {
		logger.Info("Схема БД обновлена",
			slog.Uint64("from", uint64(before.Version)),
			slog.Uint64("to", uint64(after.Version)),
		)
	} else {
		logger.Debug("Схема БД актуальна", slog.Uint64("version", uint64(after.Version)))
	}
	return after, nil
}

// schemaVersion — версия схемы; пустая БД даёт версию 0.
func schemaVersion(m *migrate.Migrate) (SchemaVersion, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	return SchemaVersion{Version: version, Dirty: dirty}, nil
}

// ReadinessChecker проверяет пул для /health/ready.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady: ping не прошёл — fail; все соединения пула заняты — degraded.
func (c *ReadinessChecker) CheckReady(ctx context.Context) (string, string) {
	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("ping: %v", err)
	}
	stat := c.pool.Stat()
	msg := fmt.Sprintf("соединений занято %d из %d", stat.AcquiredConns(), stat.MaxConns())
	if stat.AcquiredConns() >= stat.MaxConns() {
		return "degraded", msg
	}
	return "ok", msg
}
