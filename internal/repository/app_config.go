package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ключи конфигурации в таблице app_config.
const (
	ConfigKeyRates    = "rates_config"
	ConfigKeyFootwear = "footwear_config"
)

// AppConfigEntry — запись таблицы app_config (JSON-документ по ключу).
type AppConfigEntry struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
	UpdatedBy string
}

// AppConfigRepository — интерфейс для таблицы app_config.
type AppConfigRepository interface {
	// Get возвращает запись по ключу. Если не найдена — ErrNotFound.
	Get(ctx context.Context, key string) (*AppConfigEntry, error)
	// GetMany возвращает записи по набору ключей. Отсутствующие ключи пропускаются.
	GetMany(ctx context.Context, keys []string) (map[string]AppConfigEntry, error)
	// Set перезаписывает значение целиком (upsert, последняя запись побеждает).
	Set(ctx context.Context, key string, value json.RawMessage, updatedBy string) error
}

type appConfigRepo struct {
	db DBTX
}

// NewAppConfigRepository создаёт репозиторий конфигурации.
func NewAppConfigRepository(db DBTX) AppConfigRepository {
	return &appConfigRepo{db: db}
}

func (r *appConfigRepo) Get(ctx context.Context, key string) (*AppConfigEntry, error) {
	query := `
		SELECT key, value, updated_at, updated_by
		FROM app_config
		WHERE key = $1`

	e := &AppConfigEntry{}
	err := r.db.QueryRow(ctx, query, key).Scan(&e.Key, &e.Value, &e.UpdatedAt, &e.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения app_config[%s]: %w", key, err)
	}
	return e, nil
}

func (r *appConfigRepo) GetMany(ctx context.Context, keys []string) (map[string]AppConfigEntry, error) {
	query := `
		SELECT key, value, updated_at, updated_by
		FROM app_config
		WHERE key = ANY($1)`

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения app_config: %w", err)
	}
	defer rows.Close()

	result := make(map[string]AppConfigEntry, len(keys))
	for rows.Next() {
		var e AppConfigEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt, &e.UpdatedBy); err != nil {
			return nil, fmt.Errorf("ошибка сканирования app_config: %w", err)
		}
		result[e.Key] = e
	}
	return result, rows.Err()
}

func (r *appConfigRepo) Set(ctx context.Context, key string, value json.RawMessage, updatedBy string) error {
	query := `
		INSERT INTO app_config (key, value, updated_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, key, value, updatedBy); err != nil {
		return fmt.Errorf("ошибка сохранения app_config[%s]: %w", key, err)
	}
	return nil
}
