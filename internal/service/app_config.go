// app_config.go — сервис конфигурации калькулятора (таблица ставок, настройки обуви).
// Снимок конфигурации кэшируется в expirable LRU; сохранение сбрасывает кэш.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// Prometheus-метрики кэша конфигурации.
var (
	configCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dh_config_cache_hits_total",
		Help: "Количество попаданий в кэш конфигурации",
	})
	configCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dh_config_cache_misses_total",
		Help: "Количество промахов кэша конфигурации",
	})
)

// configKeys — ключи app_config, из которых собирается снимок.
var configKeys = []string{repository.ConfigKeyRates, repository.ConfigKeyFootwear}

// cachedBlob — значение ключа в кэше. found=false — ключ в БД отсутствует.
type cachedBlob struct {
	raw   json.RawMessage
	found bool
}

// StoredConfig — сохранённая конфигурация как есть. nil — запись отсутствует.
type StoredConfig struct {
	Rates    calculator.RateTable
	Footwear *calculator.FootwearConfig
}

// ConfigService — чтение и сохранение конфигурации калькулятора.
type ConfigService struct {
	repo   repository.AppConfigRepository
	cache  *expirable.LRU[string, cachedBlob]
	logger *slog.Logger
}

// NewConfigService создаёт сервис конфигурации.
// cacheSize — ёмкость LRU, ttl — время жизни записи.
func NewConfigService(repo repository.AppConfigRepository, cacheSize int, ttl time.Duration, logger *slog.Logger) *ConfigService {
	return &ConfigService{
		repo:   repo,
		cache:  expirable.NewLRU[string, cachedBlob](cacheSize, nil, ttl),
		logger: logger.With(slog.String("component", "config_service")),
	}
}

// load возвращает сырые значения ключей, используя кэш.
func (s *ConfigService) load(ctx context.Context) (map[string]cachedBlob, error) {
	result := make(map[string]cachedBlob, len(configKeys))
	var missing []string
	for _, key := range configKeys {
		if blob, ok := s.cache.Get(key); ok {
			configCacheHits.Inc()
			result[key] = blob
			continue
		}
		configCacheMisses.Inc()
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return result, nil
	}

	entries, err := s.repo.GetMany(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	for _, key := range missing {
		blob := cachedBlob{}
		if e, ok := entries[key]; ok {
			blob = cachedBlob{raw: e.Value, found: true}
		}
		s.cache.Add(key, blob)
		result[key] = blob
	}
	return result, nil
}

// Stored возвращает сохранённую конфигурацию без подстановки значений по умолчанию.
func (s *ConfigService) Stored(ctx context.Context) (*StoredConfig, error) {
	blobs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	stored := &StoredConfig{}
	if b := blobs[repository.ConfigKeyRates]; b.found {
		var rates calculator.RateTable
		if err := json.Unmarshal(b.raw, &rates); err != nil {
			s.logger.Warn("Некорректная таблица ставок в БД", slog.String("error", err.Error()))
		} else {
			stored.Rates = rates
		}
	}
	if b := blobs[repository.ConfigKeyFootwear]; b.found {
		var fw calculator.FootwearConfig
		if err := json.Unmarshal(b.raw, &fw); err != nil {
			s.logger.Warn("Некорректные настройки обуви в БД", slog.String("error", err.Error()))
		} else {
			stored.Footwear = &fw
		}
	}
	return stored, nil
}

// Snapshot возвращает действующую конфигурацию: сохранённые значения,
// а для отсутствующих или некорректных — значения по умолчанию.
func (s *ConfigService) Snapshot(ctx context.Context) (calculator.Snapshot, error) {
	stored, err := s.Stored(ctx)
	if err != nil {
		return calculator.Snapshot{}, err
	}

	snap := calculator.DefaultSnapshot()
	if stored.Rates != nil && stored.Rates.Validate() == nil {
		snap.Rates = stored.Rates
	}
	if stored.Footwear != nil && stored.Footwear.Validate() == nil {
		snap.Footwear = stored.Footwear.Normalized()
	}
	return snap, nil
}

// Save валидирует и перезаписывает переданные блоки целиком.
// nil-блок не изменяется. Конкурентные сохранения — последняя запись побеждает.
func (s *ConfigService) Save(ctx context.Context, rates calculator.RateTable, footwear *calculator.FootwearConfig, updatedBy string) error {
	if rates == nil && footwear == nil {
		return nil
	}

	if rates != nil {
		if err := rates.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	if footwear != nil {
		if err := footwear.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		normalized := footwear.Normalized()
		footwear = &normalized
	}

	// Кэш сбрасывается и при ошибке второй записи
	defer s.cache.Purge()

	if rates != nil {
		if err := s.set(ctx, repository.ConfigKeyRates, rates, updatedBy); err != nil {
			return err
		}
	}
	if footwear != nil {
		if err := s.set(ctx, repository.ConfigKeyFootwear, footwear, updatedBy); err != nil {
			return err
		}
	}

	s.logger.Info("Конфигурация калькулятора обновлена",
		slog.Bool("rates", rates != nil),
		slog.Bool("footwear", footwear != nil),
		slog.String("updated_by", updatedBy),
	)
	return nil
}

func (s *ConfigService) set(ctx context.Context, key string, value any, updatedBy string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", key, err)
	}
	if err := s.repo.Set(ctx, key, raw, updatedBy); err != nil {
		return fmt.Errorf("ошибка сохранения %s: %w", key, err)
	}
	return nil
}
