// clients.go — сервис белого списка клиентов: проверка DNI для публичного
// симулятора, CRUD для администратора и массовое обновление лимитов.
//
// Массовое обновление выполняется в одном из режимов (DH_BULK_UPDATE_MODE):
//   - fanout — параллельные обновления по строкам (errgroup, ограничение concurrency),
//     без атомарности между строками, ошибки собираются по каждой строке;
//   - atomic — одна транзакция, всё или ничего.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/dhsimulator/internal/config"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/whitelist"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// bulkUpdateRows — результат массового обновления по строкам.
var bulkUpdateRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dh_bulk_update_rows_total",
	Help: "Количество строк, обработанных массовым обновлением лимитов",
}, []string{"mode", "outcome"}) // outcome: updated, failed

// TxRunner выполняет функцию в транзакции (реализуется repository.TxRunner).
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(q repository.DBTX) error) error
}

// ClientInput — данные для создания или обновления клиента по DNI.
type ClientInput struct {
	DNI       string
	FullName  string
	MinAmount *float64
	MaxAmount *float64
}

// ClientService — сервис белого списка клиентов.
type ClientService struct {
	repo        repository.ClientLimitRepository
	txRunner    TxRunner
	bulkMode    string
	concurrency int
	defaultMin  float64
	logger      *slog.Logger

	// txRepo — репозиторий поверх транзакции (режим atomic)
	txRepo func(q repository.DBTX) repository.ClientLimitRepository
}

// NewClientService создаёт сервис белого списка.
func NewClientService(
	repo repository.ClientLimitRepository,
	txRunner TxRunner,
	bulkMode string,
	concurrency int,
	defaultMin float64,
	logger *slog.Logger,
) *ClientService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ClientService{
		repo:        repo,
		txRunner:    txRunner,
		bulkMode:    bulkMode,
		concurrency: concurrency,
		defaultMin:  defaultMin,
		logger:      logger.With(slog.String("component", "client_service")),
		txRepo:      repository.NewClientLimitRepository,
	}
}

// Check ищет клиента по DNI. Пустой DNI — ErrValidation, отсутствие — ErrNotFound.
func (s *ClientService) Check(ctx context.Context, dni string) (*model.ClientLimit, error) {
	dni = whitelist.NormalizeDNI(dni)
	if dni == "" {
		return nil, fmt.Errorf("%w: DNI requerido", ErrValidation)
	}

	c, err := s.repo.GetByDNI(ctx, dni)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка проверки DNI: %w", err)
	}
	return c, nil
}

// List возвращает клиентов от новых к старым (не более 1000).
func (s *ClientService) List(ctx context.Context) ([]*model.ClientLimit, error) {
	clients, err := s.repo.List(ctx, repository.MaxClientList)
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// Upsert создаёт клиента или обновляет существующего с тем же DNI.
// DNI и maxAmount обязательны, minAmount по умолчанию — DH_DEFAULT_MIN_AMOUNT.
func (s *ClientService) Upsert(ctx context.Context, in ClientInput) (*model.ClientLimit, error) {
	dni := whitelist.NormalizeDNI(in.DNI)
	if dni == "" || in.MaxAmount == nil {
		return nil, fmt.Errorf("%w: DNI y Monto Máximo son requeridos", ErrValidation)
	}

	minAmount := s.defaultMin
	if in.MinAmount != nil {
		minAmount = *in.MinAmount
	}
	if err := whitelist.ValidateLimits(minAmount, *in.MaxAmount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	c := &model.ClientLimit{
		ID:        uuid.New().String(),
		DNI:       dni,
		FullName:  strings.TrimSpace(in.FullName),
		MinAmount: minAmount,
		MaxAmount: *in.MaxAmount,
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Клиент сохранён", slog.String("client_id", c.ID))
	return c, nil
}

// Update частично обновляет клиента по ID.
func (s *ClientService) Update(ctx context.Context, id string, patch model.ClientPatch) (*model.ClientLimit, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: ID requerido", ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if patch.DNI != nil {
		dni := whitelist.NormalizeDNI(*patch.DNI)
		if dni == "" {
			return nil, fmt.Errorf("%w: DNI requerido", ErrValidation)
		}
		c.DNI = dni
	}
	if patch.FullName != nil {
		c.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.MinAmount != nil {
		c.MinAmount = *patch.MinAmount
	}
	if patch.MaxAmount != nil {
		c.MaxAmount = *patch.MaxAmount
	}
	if err := whitelist.ValidateLimits(c.MinAmount, c.MaxAmount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapRepoError(err)
	}
	return c, nil
}

// Delete удаляет клиента по ID.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: ID requerido", ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}

	s.logger.Info("Клиент удалён", slog.String("client_id", id))
	return nil
}

// BulkUpdate устанавливает пару min/max для перечисленных клиентов
// (для всех, если ids пуст). При частичной неудаче возвращает отчёт
// вместе с ErrPartialFailure.
func (s *ClientService) BulkUpdate(ctx context.Context, ids []string, minAmount, maxAmount float64) (*model.BulkUpdateResult, error) {
	if err := whitelist.ValidateLimits(minAmount, maxAmount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ids = uniqueIDs(ids)

	var (
		result *model.BulkUpdateResult
		err    error
	)
	if s.bulkMode == config.BulkModeAtomic {
		result, err = s.bulkAtomic(ctx, ids, minAmount, maxAmount)
	} else {
		result, err = s.bulkFanout(ctx, ids, minAmount, maxAmount)
	}
	if result != nil {
		bulkUpdateRows.WithLabelValues(result.Mode, "updated").Add(float64(result.Updated))
		bulkUpdateRows.WithLabelValues(result.Mode, "failed").Add(float64(len(result.Failed)))
		s.logger.Info("Массовое обновление лимитов",
			slog.String("mode", result.Mode),
			slog.Int("updated", result.Updated),
			slog.Int("failed", len(result.Failed)),
		)
	}
	return result, err
}

// uniqueIDs убирает повторы, сохраняя порядок первого вхождения.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *ClientService) bulkFanout(ctx context.Context, ids []string, minAmount, maxAmount float64) (*model.BulkUpdateResult, error) {
	if len(ids) == 0 {
		all, err := s.repo.ListIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids = all
	}

	result := &model.BulkUpdateResult{Mode: config.BulkModeFanout}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := s.updateOne(ctx, id, minAmount, maxAmount)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, model.BulkFailure{ID: id, Error: err.Error()})
				return nil
			}
			result.Updated++
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: обновлено %d из %d", ErrPartialFailure, result.Updated, len(ids))
	}
	return result, nil
}

func (s *ClientService) updateOne(ctx context.Context, id string, minAmount, maxAmount float64) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("некорректный ID: %w", ErrNotFound)
	}
	return s.repo.SetLimits(ctx, id, minAmount, maxAmount)
}

func (s *ClientService) bulkAtomic(ctx context.Context, ids []string, minAmount, maxAmount float64) (*model.BulkUpdateResult, error) {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return &model.BulkUpdateResult{
				Mode:   config.BulkModeAtomic,
				Failed: []model.BulkFailure{{ID: id, Error: "некорректный ID"}},
			}, fmt.Errorf("%w: некорректный ID %q", ErrPartialFailure, id)
		}
	}

	result := &model.BulkUpdateResult{Mode: config.BulkModeAtomic}
	err := s.txRunner.RunInTx(ctx, func(q repository.DBTX) error {
		repo := s.txRepo(q)

		target := ids
		if len(target) == 0 {
			all, err := repo.ListIDs(ctx)
			if err != nil {
				return err
			}
			target = all
		}

		n, err := repo.SetLimitsMany(ctx, target, minAmount, maxAmount)
		if err != nil {
			return err
		}
		if int(n) != len(target) {
			return fmt.Errorf("%w: найдено %d из %d записей", ErrNotFound, n, len(target))
		}
		result.Updated = int(n)
		return nil
	})
	if err != nil {
		return &model.BulkUpdateResult{
			Mode:   config.BulkModeAtomic,
			Failed: []model.BulkFailure{{Error: err.Error()}},
		}, fmt.Errorf("%w: транзакция отменена: %w", ErrPartialFailure, err)
	}
	return result, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
