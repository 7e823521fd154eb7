// Пакет calculator — расчёт платежей по займам и рассрочке на обувь.
// Чистые функции без побочных эффектов: результат зависит только от суммы,
// количества платежей и снимка конфигурации.
package calculator

import (
	"errors"
	"fmt"
	"math"
)

// Mode — режим симулятора.
type Mode string

const (
	// ModeLoans — займы: сумма + сумма*коэффициент.
	ModeLoans Mode = "loans"
	// ModeFootwear — обувь: стоимость с наценкой в процентах.
	ModeFootwear Mode = "footwear"
)

// ParseMode преобразует строку в Mode. Пустая строка — займы.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLoans:
		return ModeLoans, nil
	case ModeFootwear:
		return ModeFootwear, nil
	default:
		return "", fmt.Errorf("%w: неизвестный режим %q", ErrInvalidConfig, s)
	}
}

// MissingRatePolicy — поведение при отсутствии коэффициента для количества платежей.
type MissingRatePolicy string

const (
	// PolicyFallback — применяется резервный коэффициент, результат помечается как оценочный.
	PolicyFallback MissingRatePolicy = "fallback"
	// PolicyStrict — количество платежей без коэффициента отклоняется.
	PolicyStrict MissingRatePolicy = "strict"
)

// DefaultFallbackRate — резервный коэффициент для политики fallback.
const DefaultFallbackRate = 0.50

var (
	// ErrRateNotConfigured — для количества платежей нет коэффициента (политика strict).
	ErrRateNotConfigured = errors.New("коэффициент для количества платежей не настроен")
	// ErrInvalidPrincipal — сумма должна быть положительной.
	ErrInvalidPrincipal = errors.New("сумма должна быть положительной")
	// ErrInvalidInstallments — количество платежей должно быть положительным.
	ErrInvalidInstallments = errors.New("количество платежей должно быть положительным")
)

// Quote — результат расчёта для одного количества платежей.
type Quote struct {
	Installments int `json:"installments"`
	// Rate — коэффициент (займы) или наценка в процентах (обувь).
	Rate           float64 `json:"rate"`
	Total          float64 `json:"total"`
	PerInstallment float64 `json:"perInstallment"`
	// Estimated — применён резервный коэффициент.
	Estimated bool `json:"estimated,omitempty"`
}

// Cents возвращает копию с итогом и платежом, округлёнными до двух знаков
// (так суммы рассрочки на обувь отдаются в JSON).
func (q Quote) Cents() Quote {
	q.Total = Round2(q.Total)
	q.PerInstallment = Round2(q.PerInstallment)
	return q
}

// Calculator — калькулятор займов с заданной политикой отсутствующих коэффициентов.
type Calculator struct {
	policy       MissingRatePolicy
	fallbackRate float64
}

// New создаёт калькулятор. Неизвестная политика трактуется как fallback.
func New(policy MissingRatePolicy, fallbackRate float64) *Calculator {
	if policy != PolicyStrict {
		policy = PolicyFallback
	}
	return &Calculator{policy: policy, fallbackRate: fallbackRate}
}

// Policy возвращает действующую политику.
func (c *Calculator) Policy() MissingRatePolicy {
	return c.policy
}

// Loan рассчитывает займ: total = P + P*rate[N], платёж = total/N.
func (c *Calculator) Loan(principal float64, installments int, rates RateTable) (Quote, error) {
	if principal <= 0 {
		return Quote{}, ErrInvalidPrincipal
	}
	if installments < 1 {
		return Quote{}, ErrInvalidInstallments
	}

	rate, ok := rates[installments]
	estimated := false
	if !ok {
		if c.policy == PolicyStrict {
			return Quote{}, fmt.Errorf("%w: %d", ErrRateNotConfigured, installments)
		}
		rate = c.fallbackRate
		estimated = true
	}

	total := principal + principal*rate
	return Quote{
		Installments:   installments,
		Rate:           rate,
		Total:          total,
		PerInstallment: total / float64(installments),
		Estimated:      estimated,
	}, nil
}

// Footwear рассчитывает рассрочку на обувь: total = P*(1+markup/100), платёж = total/N.
func Footwear(cost float64, installments int, markup float64) (Quote, error) {
	if cost <= 0 {
		return Quote{}, ErrInvalidPrincipal
	}
	if installments < 1 {
		return Quote{}, ErrInvalidInstallments
	}

	total := cost * (1 + markup/100)
	return Quote{
		Installments:   installments,
		Rate:           markup,
		Total:          total,
		PerInstallment: total / float64(installments),
	}, nil
}

// LoanTable строит таблицу по всем настроенным количествам платежей (по возрастанию).
// Для суммы <= 0 возвращает nil: таблица не показывается.
func (c *Calculator) LoanTable(principal float64, rates RateTable) []Quote {
	if principal <= 0 {
		return nil
	}

	keys := rates.Installments()
	quotes := make([]Quote, 0, len(keys))
	for _, n := range keys {
		q, err := c.Loan(principal, n, rates)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// FootwearTable строит таблицу по включённым вариантам рассрочки.
func FootwearTable(cost float64, cfg FootwearConfig) []Quote {
	if cost <= 0 {
		return nil
	}

	quotas := cfg.Normalized().Quotas
	quotes := make([]Quote, 0, len(quotas))
	for _, n := range quotas {
		q, err := Footwear(cost, n, cfg.Markup)
		if err != nil {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// Table строит таблицу для режима по снимку конфигурации.
func (c *Calculator) Table(mode Mode, principal float64, snap Snapshot) []Quote {
	if mode == ModeFootwear {
		return FootwearTable(principal, snap.Footwear)
	}
	return c.LoanTable(principal, snap.Rates)
}

// Quote рассчитывает одну строку для режима по снимку конфигурации.
func (c *Calculator) Quote(mode Mode, principal float64, installments int, snap Snapshot) (Quote, error) {
	if mode == ModeFootwear {
		return Footwear(principal, installments, snap.Footwear.Markup)
	}
	return c.Loan(principal, installments, snap.Rates)
}

// Round2 округляет значение до двух знаков после запятой.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
