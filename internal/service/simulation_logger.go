// simulation_logger.go — асинхронная запись журнала симуляций.
//
// Record никогда не блокирует вызывающего: запись помещается в ограниченную
// очередь, фоновый worker вставляет строки в simulations_log. Переполнение
// очереди и ошибки вставки только логируются и учитываются в метрике
// dh_simulation_log_dropped_total.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// Prometheus-метрики журнала симуляций.
var (
	simulationLogRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dh_simulation_log_recorded_total",
		Help: "Количество записей, сохранённых в журнал симуляций",
	})
	simulationLogDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dh_simulation_log_dropped_total",
		Help: "Количество потерянных записей журнала симуляций",
	}, []string{"reason"}) // reason: queue_full, insert_error
)

const (
	// insertTimeout — таймаут одной вставки.
	insertTimeout = 5 * time.Second
	// defaultDrainTimeout — сколько Stop ждёт дозаписи очереди.
	defaultDrainTimeout = 5 * time.Second
)

// LogRequest — запрос на запись действия из UI.
type LogRequest struct {
	UserID       string
	Amount       *float64
	Installments int
	Metadata     map[string]any
}

// SimulationLogger — неблокирующий журнал симуляций.
type SimulationLogger struct {
	repo         repository.SimulationLogRepository
	queue        chan *model.SimulationLogEntry
	flush        chan chan struct{}
	drainTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulationLogger создаёт журнал с очередью ёмкостью queueSize.
func NewSimulationLogger(repo repository.SimulationLogRepository, queueSize int, logger *slog.Logger) *SimulationLogger {
	if queueSize < 1 {
		queueSize = 1
	}
	return &SimulationLogger{
		repo:         repo,
		queue:        make(chan *model.SimulationLogEntry, queueSize),
		flush:        make(chan chan struct{}),
		drainTimeout: defaultDrainTimeout,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "simulation_logger")),
	}
}

// Start запускает фоновый worker. Вызывается один раз при старте приложения.
func (l *SimulationLogger) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		l.logger.Info("Журнал симуляций запущен", slog.Int("queue_size", cap(l.queue)))

		for {
			select {
			case <-ctx.Done():
				l.drain()
				l.logger.Info("Журнал симуляций остановлен")
				return
			case e := <-l.queue:
				l.insert(context.Background(), e)
			case ack := <-l.flush:
				for range len(l.queue) {
					l.insert(context.Background(), <-l.queue)
				}
				close(ack)
			}
		}
	}()
}

// Stop останавливает worker, дописывая очередь не дольше drainTimeout.
func (l *SimulationLogger) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

// Flush ждёт, пока worker запишет всё, что было в очереди на момент вызова.
// Без запущенного worker возвращает nil сразу.
func (l *SimulationLogger) Flush(ctx context.Context) error {
	if l.done == nil {
		return nil
	}
	ack := make(chan struct{})
	select {
	case l.flush <- ack:
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain дописывает оставшиеся записи до истечения drainTimeout.
func (l *SimulationLogger) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), l.drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-l.queue:
			l.insert(ctx, e)
		default:
			return
		}
		if ctx.Err() != nil {
			lost := len(l.queue)
			simulationLogDropped.WithLabelValues("insert_error").Add(float64(lost))
			l.logger.Warn("Очередь журнала не дописана до остановки", slog.Int("lost", lost))
			return
		}
	}
}

func (l *SimulationLogger) insert(ctx context.Context, e *model.SimulationLogEntry) {
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	if err := l.repo.Insert(ctx, e); err != nil {
		simulationLogDropped.WithLabelValues("insert_error").Inc()
		l.logger.Warn("Ошибка записи в журнал симуляций",
			slog.String("user_id", e.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	simulationLogRecorded.Inc()
}

// Record ставит запись в очередь. Возвращает false, если очередь переполнена.
func (l *SimulationLogger) Record(userID string, amount float64, installments int, metadata map[string]any) bool {
	e := &model.SimulationLogEntry{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Amount:               amount,
		InstallmentsSelected: installments,
		Metadata:             metadata,
		CreatedAt:            l.now().UTC(),
	}

	select {
	case l.queue <- e:
		return true
	default:
		simulationLogDropped.WithLabelValues("queue_full").Inc()
		l.logger.Warn("Очередь журнала симуляций переполнена, запись отброшена",
			slog.String("user_id", userID),
		)
		return false
	}
}

// Log валидирует запрос из UI и ставит его в очередь.
// Без userId, без amount или с нулевой суммой — ErrValidation.
func (l *SimulationLogger) Log(req LogRequest) error {
	if req.UserID == "" || req.Amount == nil || *req.Amount == 0 {
		return fmt.Errorf("%w: Missing required data", ErrValidation)
	}
	l.Record(req.UserID, *req.Amount, req.Installments, req.Metadata)
	return nil
}
