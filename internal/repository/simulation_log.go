package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
)

// SimulationLogRepository — интерфейс для таблицы simulations_log.
type SimulationLogRepository interface {
	// Insert добавляет запись. ID и CreatedAt должны быть заполнены.
	Insert(ctx context.Context, e *model.SimulationLogEntry) error
	// Count возвращает общее количество записей.
	Count(ctx context.Context) (int, error)
	// CountSince возвращает количество записей начиная с since.
	CountSince(ctx context.Context, since time.Time) (int, error)
	// TopUsers возвращает пользователей по убыванию количества записей.
	// Email — из profiles, "Unknown" при отсутствии профиля.
	TopUsers(ctx context.Context, limit int) ([]model.TopUser, error)
	// DeleteAll удаляет все записи. Возвращает количество удалённых.
	DeleteAll(ctx context.Context) (int64, error)
}

type simulationLogRepo struct {
	db DBTX
}

// NewSimulationLogRepository создаёт репозиторий журнала симуляций.
func NewSimulationLogRepository(db DBTX) SimulationLogRepository {
	return &simulationLogRepo{db: db}
}

func (r *simulationLogRepo) Insert(ctx context.Context, e *model.SimulationLogEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("ошибка сериализации metadata: %w", err)
	}

	query := `
		INSERT INTO simulations_log (id, user_id, amount, installments_selected, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query, e.ID, e.UserID, e.Amount, e.InstallmentsSelected, raw, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал симуляций: %w", err)
	}
	return nil
}

func (r *simulationLogRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM simulations_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта симуляций: %w", err)
	}
	return count, nil
}

func (r *simulationLogRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM simulations_log WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта симуляций с %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

func (r *simulationLogRepo) TopUsers(ctx context.Context, limit int) ([]model.TopUser, error) {
	query := `
		SELECT l.user_id, COALESCE(NULLIF(p.email, ''), 'Unknown') AS email, COUNT(*) AS cnt
		FROM simulations_log l
		LEFT JOIN profiles p ON p.id = l.user_id
		GROUP BY l.user_id, p.email
		ORDER BY cnt DESC, l.user_id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения топа пользователей: %w", err)
	}
	defer rows.Close()

	users := []model.TopUser{}
	for rows.Next() {
		var u model.TopUser
		if err := rows.Scan(&u.ID, &u.Email, &u.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования топа пользователей: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *simulationLogRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM simulations_log`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки журнала симуляций: %w", err)
	}
	return tag.RowsAffected(), nil
}
