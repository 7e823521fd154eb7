// simulator.go — сценарии симулятора: таблица платежей, передача заявки
// в WhatsApp и генерация флаера. Каждое действие пишется в журнал симуляций
// без ожидания результата записи.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/handoff"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/whitelist"
	"github.com/bigkaa/dhsimulator/internal/flyer"
)

// ConfigSnapshotter — источник действующей конфигурации (ConfigService).
type ConfigSnapshotter interface {
	Snapshot(ctx context.Context) (calculator.Snapshot, error)
}

// ClientChecker — проверка клиента по DNI (ClientService).
type ClientChecker interface {
	Check(ctx context.Context, dni string) (*model.ClientLimit, error)
}

// ActionRecorder — неблокирующая запись действия (SimulationLogger).
type ActionRecorder interface {
	Record(userID string, amount float64, installments int, metadata map[string]any) bool
}

// FlyerRenderer — рендеринг флаера в JPEG (flyer.Renderer).
type FlyerRenderer interface {
	RenderBytes(card flyer.Card) ([]byte, error)
}

// Phones — номера WhatsApp для передачи заявок.
type Phones struct {
	Loans    string
	Footwear string
}

// QuoteResult — таблица платежей для суммы.
type QuoteResult struct {
	Mode calculator.Mode
	// Requested — сумма из запроса
	Requested float64
	// Amount — сумма после ограничения лимитом клиента
	Amount float64
	// Clamped — сумма была уменьшена до maxAmount клиента
	Clamped bool
	Client  *model.ClientLimit
	Quotes  []calculator.Quote
}

// SimulationInput — выбранный пользователем план.
type SimulationInput struct {
	Mode         calculator.Mode
	Amount       float64
	Installments int
	// DNI — клиент публичного симулятора (обязателен для займов)
	DNI string
	// UserID — пользователь для журнала; пустой — "public"
	UserID string
	// ClientName — имя для флаера
	ClientName string
}

// HandoffResult — ссылка WhatsApp с подготовленным сообщением.
type HandoffResult struct {
	OperationCode string
	WhatsAppURL   string
	Quote         calculator.Quote
}

// FlyerResult — готовый флаер.
type FlyerResult struct {
	Filename string
	Data     []byte
}

// SimulatorService — сценарии симулятора займов и рассрочки на обувь.
type SimulatorService struct {
	config   ConfigSnapshotter
	clients  ClientChecker
	calc     *calculator.Calculator
	recorder ActionRecorder
	renderer FlyerRenderer
	phones   Phones
	now      func() time.Time
	logger   *slog.Logger
}

// NewSimulatorService создаёт сервис симулятора.
func NewSimulatorService(
	config ConfigSnapshotter,
	clients ClientChecker,
	calc *calculator.Calculator,
	recorder ActionRecorder,
	renderer FlyerRenderer,
	phones Phones,
	logger *slog.Logger,
) *SimulatorService {
	return &SimulatorService{
		config:   config,
		clients:  clients,
		calc:     calc,
		recorder: recorder,
		renderer: renderer,
		phones:   phones,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "simulator_service")),
	}
}

// Quote строит таблицу платежей. С DNI сумма ограничивается maxAmount клиента;
// неизвестный DNI — ErrNotFound. Сумма <= 0 — пустая таблица.
func (s *SimulatorService) Quote(ctx context.Context, mode calculator.Mode, amount float64, dni string) (*QuoteResult, error) {
	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := &QuoteResult{Mode: mode, Requested: amount, Amount: amount}
	if dni != "" {
		client, err := s.clients.Check(ctx, dni)
		if err != nil {
			return nil, err
		}
		res.Client = client
		res.Amount = whitelist.Clamp(amount, client.MaxAmount)
		res.Clamped = res.Amount != amount
	}

	res.Quotes = s.calc.Table(mode, res.Amount, snap)
	if res.Quotes == nil {
		res.Quotes = []calculator.Quote{}
	}
	return res, nil
}

// ContactURL — ссылка WhatsApp для клиента, которого нет в белом списке.
func (s *SimulatorService) ContactURL(dni string) string {
	return handoff.Link(s.phones.Loans, handoff.ContactMessage(whitelist.NormalizeDNI(dni)))
}

// Request готовит передачу выбранного плана в WhatsApp и пишет действие
// whatsapp в журнал. Займ требует DNI из белого списка, обувь получает код операции.
func (s *SimulatorService) Request(ctx context.Context, in SimulationInput) (*HandoffResult, error) {
	if err := validateSelection(in); err != nil {
		return nil, err
	}

	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := &HandoffResult{}
	metadata := map[string]any{
		"action": model.ActionWhatsApp,
		"type":   string(in.Mode),
	}

	switch in.Mode {
	case calculator.ModeFootwear:
		q, err := s.quote(in.Mode, in.Amount, in.Installments, snap)
		if err != nil {
			return nil, err
		}
		res.Quote = q
		res.OperationCode = handoff.OperationCode(in.Amount, in.Installments, s.now())
		res.WhatsAppURL = handoff.Link(s.phones.Footwear, handoff.FootwearMessage(in.Amount, q, res.OperationCode))
		metadata["markup"] = snap.Footwear.Markup
		metadata["operationCode"] = res.OperationCode

	default:
		dni := whitelist.NormalizeDNI(in.DNI)
		if dni == "" {
			return nil, fmt.Errorf("%w: DNI requerido", ErrValidation)
		}
		client, err := s.clients.Check(ctx, dni)
		if err != nil {
			return nil, err
		}
		in.Amount = whitelist.Clamp(in.Amount, client.MaxAmount)

		q, err := s.quote(in.Mode, in.Amount, in.Installments, snap)
		if err != nil {
			return nil, err
		}
		res.Quote = q
		res.WhatsAppURL = handoff.Link(s.phones.Loans, handoff.LoanMessage(client.FullName, dni, in.Amount, q))
		metadata["dni"] = dni
	}

	s.record(in, metadata)
	s.logger.Debug("Подготовлена передача в WhatsApp",
		slog.String("mode", string(in.Mode)),
		slog.Int("installments", in.Installments),
		slog.String("operation_code", res.OperationCode),
	)
	return res, nil
}

// Flyer рисует флаер с таблицей платежей и пишет действие download в журнал.
// Installments = 0 — флаер без выделенного плана.
func (s *SimulatorService) Flyer(ctx context.Context, in SimulationInput) (*FlyerResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: Monto inválido", ErrValidation)
	}
	if in.Installments < 0 {
		return nil, fmt.Errorf("%w: Cantidad de cuotas inválida", ErrValidation)
	}

	quoted, err := s.Quote(ctx, in.Mode, in.Amount, in.DNI)
	if err != nil {
		return nil, err
	}
	if len(quoted.Quotes) == 0 {
		return nil, fmt.Errorf("%w: No hay planes configurados", ErrValidation)
	}

	card := flyer.Card{
		Mode:       in.Mode,
		Amount:     quoted.Amount,
		Quotes:     quoted.Quotes,
		Selected:   in.Installments,
		ClientName: in.ClientName,
	}
	if card.ClientName == "" && quoted.Client != nil {
		card.ClientName = quoted.Client.FullName
	}

	metadata := map[string]any{
		"action": model.ActionDownload,
		"type":   string(in.Mode),
	}
	if in.Mode == calculator.ModeFootwear && in.Installments > 0 {
		card.OperationCode = handoff.OperationCode(quoted.Amount, in.Installments, s.now())
		metadata["operationCode"] = card.OperationCode
	}

	data, err := s.renderer.RenderBytes(card)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации флаера: %w", err)
	}

	in.Amount = quoted.Amount
	s.record(in, metadata)
	return &FlyerResult{Filename: card.Filename(), Data: data}, nil
}

// quote рассчитывает одну строку; отсутствующий коэффициент в strict-режиме
// и некорректные параметры — ошибка валидации.
func (s *SimulatorService) quote(mode calculator.Mode, amount float64, installments int, snap calculator.Snapshot) (calculator.Quote, error) {
	q, err := s.calc.Quote(mode, amount, installments, snap)
	if err != nil {
		if errors.Is(err, calculator.ErrRateNotConfigured) ||
			errors.Is(err, calculator.ErrInvalidPrincipal) ||
			errors.Is(err, calculator.ErrInvalidInstallments) {
			return calculator.Quote{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return calculator.Quote{}, err
	}
	return q, nil
}

func (s *SimulatorService) record(in SimulationInput, metadata map[string]any) {
	userID := in.UserID
	if userID == "" {
		userID = model.UserPublic
	}
	s.recorder.Record(userID, in.Amount, in.Installments, metadata)
}

func validateSelection(in SimulationInput) error {
	switch {
	case in.Amount <= 0:
		return fmt.Errorf("%w: Monto inválido", ErrValidation)
	case in.Installments <= 0:
		return fmt.Errorf("%w: Cantidad de cuotas inválida", ErrValidation)
	}
	return nil
}
