// stats.go — статистика использования симулятора и сброс журнала.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// topUsersLimit — сколько пользователей показывать в рейтинге.
const topUsersLimit = 50

// LogFlusher дописывает записи, ещё стоящие в очереди журнала.
type LogFlusher interface {
	Flush(ctx context.Context) error
}

// StatsService — агрегаты для панели администратора.
type StatsService struct {
	profiles repository.ProfileRepository
	logs     repository.SimulationLogRepository
	pending  LogFlusher
	now      func() time.Time
	logger   *slog.Logger
}

// NewStatsService создаёт сервис статистики. pending может быть nil.
func NewStatsService(profiles repository.ProfileRepository, logs repository.SimulationLogRepository, pending LogFlusher, logger *slog.Logger) *StatsService {
	return &StatsService{
		profiles: profiles,
		logs:     logs,
		pending:  pending,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "stats_service")),
	}
}

// Stats возвращает количество пользователей, симуляций (всего и с полуночи UTC)
// и рейтинг пользователей по убыванию количества симуляций.
func (s *StatsService) Stats(ctx context.Context) (*model.Stats, error) {
	users, err := s.profiles.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт пользователей: %w", err)
	}

	total, err := s.logs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт симуляций: %w", err)
	}

	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.logs.CountSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("подсчёт симуляций за сегодня: %w", err)
	}

	top, err := s.logs.TopUsers(ctx, topUsersLimit)
	if err != nil {
		return nil, fmt.Errorf("рейтинг пользователей: %w", err)
	}

	return &model.Stats{
		Users:            users,
		Simulations:      total,
		TodaySimulations: today,
		TopUsers:         top,
	}, nil
}

// ResetLogs удаляет все записи журнала симуляций. Записи, поставленные
// в очередь до вызова, сначала дописываются и удаляются вместе с остальными.
func (s *StatsService) ResetLogs(ctx context.Context, requestedBy string) (int64, error) {
	if s.pending != nil {
		if err := s.pending.Flush(ctx); err != nil {
			return 0, fmt.Errorf("дозапись очереди журнала: %w", err)
		}
	}
	deleted, err := s.logs.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Warn("Журнал симуляций очищен",
		slog.Int64("deleted", deleted),
		slog.String("requested_by", requestedBy),
	)
	return deleted, nil
}
