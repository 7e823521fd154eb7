// Пакет config — загрузка и валидация конфигурации симулятора
// из переменных окружения (с опциональным .env файлом).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Политики обработки отсутствующего коэффициента в таблице ставок.
const (
	MissingRateFallback = "fallback"
	MissingRateStrict   = "strict"
)

// Режимы массового обновления лимитов клиентов.
const (
	BulkModeFanout = "fanout"
	BulkModeAtomic = "atomic"
)

// Config содержит все параметры конфигурации симулятора.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Внешний базовый URL (для redirect URI OIDC), пустой — из заголовков запроса
	PublicURL string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (без trailing slash)
	KeycloakURL string
	// URL Keycloak для браузера (authorize/logout), пустой — KeycloakURL
	KeycloakBrowserURL string
	// Имя realm
	KeycloakRealm string
	// Client ID / Secret для Admin REST API (Client Credentials)
	KeycloakClientID     string
	KeycloakClientSecret string
	// Public OIDC client для входа в интерфейс (PKCE)
	OIDCClientID string

	// --- JWT ---

	JWTIssuer  string
	JWTJWKSURL string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- Роли ---

	// Группы Keycloak, дающие роль admin
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль agent
	RoleAgentGroups []string

	// --- Сессии ---

	// Ключ шифрования cookie (пустой — случайный на время жизни процесса)
	SessionSecret string

	// --- Бизнес-правила ---

	// Политика для количества платежей без коэффициента (fallback, strict)
	MissingRatePolicy string
	// Коэффициент, применяемый при политике fallback
	FallbackRate float64
	// Режим массового обновления лимитов (fanout, atomic)
	BulkUpdateMode string
	// Параллелизм fanout-обновления
	BulkUpdateConcurrency int
	// Минимальная сумма по умолчанию при быстром добавлении клиента
	DefaultMinAmount float64

	// --- Кэш и журнал ---

	// Размер и TTL кэша конфигурации ставок
	ConfigCacheSize int
	ConfigCacheTTL  time.Duration
	// Ёмкость очереди журнала симуляций
	LogQueueSize int

	// --- WhatsApp ---

	// Телефон для заявок на займ (публичный симулятор)
	WhatsAppLoansPhone string
	// Телефон для заявок по обуви
	WhatsAppFootwearPhone string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	// Не проверять сертификат Keycloak (self-signed в dev-стендах)
	DephealthTLSSkipVerify bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// LoadDotEnv загружает переменные из файла .env, если он существует.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DH_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DH_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DH_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DH_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.PublicURL = strings.TrimRight(getEnvDefault("DH_PUBLIC_URL", ""), "/")

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DH_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DH_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DH_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DH_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DH_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DH_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DH_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DH_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("DH_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.KeycloakBrowserURL = strings.TrimRight(getEnvDefault("DH_KEYCLOAK_BROWSER_URL", ""), "/")
	cfg.KeycloakRealm = getEnvDefault("DH_KEYCLOAK_REALM", "dh")

	if cfg.KeycloakClientID, err = getEnvRequired("DH_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("DH_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	cfg.OIDCClientID = getEnvDefault("DH_OIDC_CLIENT_ID", "dh-simulator-ui")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("DH_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("DH_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWTLeeway, err = getEnvDuration("DH_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DH_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("DH_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DH_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Роли ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("DH_ROLE_ADMIN_GROUPS", "dh-admins"))
	cfg.RoleAgentGroups = parseCSV(getEnvDefault("DH_ROLE_AGENT_GROUPS", "dh-agents"))

	cfg.SessionSecret = getEnvDefault("DH_SESSION_SECRET", "")

	// --- Бизнес-правила ---

	cfg.MissingRatePolicy = getEnvDefault("DH_MISSING_RATE_POLICY", MissingRateFallback)
	if cfg.MissingRatePolicy != MissingRateFallback && cfg.MissingRatePolicy != MissingRateStrict {
		return nil, fmt.Errorf("DH_MISSING_RATE_POLICY: недопустимое значение %q, допустимые: fallback, strict", cfg.MissingRatePolicy)
	}

	cfg.FallbackRate, err = getEnvFloat("DH_FALLBACK_RATE", 0.50)
	if err != nil {
		return nil, fmt.Errorf("DH_FALLBACK_RATE: %w", err)
	}
	if cfg.FallbackRate < 0 {
		return nil, fmt.Errorf("DH_FALLBACK_RATE: коэффициент не может быть отрицательным: %v", cfg.FallbackRate)
	}

	cfg.BulkUpdateMode = getEnvDefault("DH_BULK_UPDATE_MODE", BulkModeFanout)
	if cfg.BulkUpdateMode != BulkModeFanout && cfg.BulkUpdateMode != BulkModeAtomic {
		return nil, fmt.Errorf("DH_BULK_UPDATE_MODE: недопустимое значение %q, допустимые: fanout, atomic", cfg.BulkUpdateMode)
	}

	cfg.BulkUpdateConcurrency, err = getEnvInt("DH_BULK_UPDATE_CONCURRENCY", 8)
	if err != nil {
		return nil, fmt.Errorf("DH_BULK_UPDATE_CONCURRENCY: %w", err)
	}
	if cfg.BulkUpdateConcurrency < 1 || cfg.BulkUpdateConcurrency > 64 {
		return nil, fmt.Errorf("DH_BULK_UPDATE_CONCURRENCY: значение %d вне допустимого диапазона 1-64", cfg.BulkUpdateConcurrency)
	}

	cfg.DefaultMinAmount, err = getEnvFloat("DH_DEFAULT_MIN_AMOUNT", 50000)
	if err != nil {
		return nil, fmt.Errorf("DH_DEFAULT_MIN_AMOUNT: %w", err)
	}

	// --- Кэш и журнал ---

	cfg.ConfigCacheSize, err = getEnvInt("DH_CONFIG_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("DH_CONFIG_CACHE_SIZE: %w", err)
	}
	if cfg.ConfigCacheSize < 1 {
		return nil, fmt.Errorf("DH_CONFIG_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.ConfigCacheTTL, err = getEnvDuration("DH_CONFIG_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DH_CONFIG_CACHE_TTL: %w", err)
	}

	cfg.LogQueueSize, err = getEnvInt("DH_LOG_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DH_LOG_QUEUE_SIZE: %w", err)
	}
	if cfg.LogQueueSize < 1 || cfg.LogQueueSize > 100000 {
		return nil, fmt.Errorf("DH_LOG_QUEUE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.LogQueueSize)
	}

	// --- WhatsApp ---

	cfg.WhatsAppLoansPhone = getEnvDefault("DH_WHATSAPP_LOANS_PHONE", "5492615163475")
	cfg.WhatsAppFootwearPhone = getEnvDefault("DH_WHATSAPP_FOOTWEAR_PHONE", "5492614194014")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("DH_DEPHEALTH_GROUP", "dh")
	cfg.DephealthCheckInterval, err = getEnvDuration("DH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthTLSSkipVerify, err = getEnvBool("DH_DEPHEALTH_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("DH_DEPHEALTH_TLS_SKIP_VERIFY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("DH_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DH_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("ожидается true или false: %q", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
