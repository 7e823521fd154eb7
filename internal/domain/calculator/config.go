package calculator

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Границы допустимых значений конфигурации.
const (
	MaxInstallments = 120
	MaxRate         = 5.0
	MaxMarkup       = 1000.0
)

// ErrInvalidConfig — некорректная таблица ставок или настройки обуви.
var ErrInvalidConfig = errors.New("некорректная конфигурация")

// RateTable — коэффициенты по количеству платежей.
// В JSON — объект со строковыми ключами: {"4":0.35,"6":0.47}.
type RateTable map[int]float64

// DefaultRates возвращает таблицу, действующую до первого сохранения.
func DefaultRates() RateTable {
	return RateTable{4: 0.35, 6: 0.47, 8: 0.65, 10: 0.85}
}

// Validate проверяет ключи (1..MaxInstallments) и коэффициенты (0..MaxRate).
func (t RateTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: таблица ставок пуста", ErrInvalidConfig)
	}
	for n, r := range t {
		if n < 1 || n > MaxInstallments {
			return fmt.Errorf("%w: количество платежей %d вне диапазона 1-%d", ErrInvalidConfig, n, MaxInstallments)
		}
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 || r > MaxRate {
			return fmt.Errorf("%w: коэффициент %v для %d платежей вне диапазона 0-%v", ErrInvalidConfig, r, n, MaxRate)
		}
	}
	return nil
}

// Installments возвращает количества платежей по возрастанию.
func (t RateTable) Installments() []int {
	keys := make([]int, 0, len(t))
	for n := range t {
		keys = append(keys, n)
	}
	slices.Sort(keys)
	return keys
}

// Clone возвращает независимую копию таблицы.
func (t RateTable) Clone() RateTable {
	c := make(RateTable, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// FootwearConfig — наценка и включённые варианты рассрочки для обуви.
type FootwearConfig struct {
	Markup float64 `json:"markup" yaml:"markup"`
	Quotas []int   `json:"quotas" yaml:"quotas"`
}

// DefaultFootwear возвращает настройки обуви по умолчанию.
func DefaultFootwear() FootwearConfig {
	return FootwearConfig{Markup: 100, Quotas: []int{3, 6}}
}

// Validate проверяет наценку и варианты рассрочки.
func (c FootwearConfig) Validate() error {
	if math.IsNaN(c.Markup) || math.IsInf(c.Markup, 0) || c.Markup < 0 || c.Markup > MaxMarkup {
		return fmt.Errorf("%w: наценка %v вне диапазона 0-%v", ErrInvalidConfig, c.Markup, MaxMarkup)
	}
	if len(c.Quotas) == 0 {
		return fmt.Errorf("%w: не выбран ни один вариант рассрочки", ErrInvalidConfig)
	}
	for _, q := range c.Quotas {
		if q < 1 || q > MaxInstallments {
			return fmt.Errorf("%w: вариант рассрочки %d вне диапазона 1-%d", ErrInvalidConfig, q, MaxInstallments)
		}
	}
	return nil
}

// Normalized возвращает копию с отсортированными уникальными вариантами.
func (c FootwearConfig) Normalized() FootwearConfig {
	quotas := slices.Clone(c.Quotas)
	slices.Sort(quotas)
	return FootwearConfig{Markup: c.Markup, Quotas: slices.Compact(quotas)}
}

// Snapshot — действующая конфигурация калькулятора (с применёнными значениями по умолчанию).
type Snapshot struct {
	Rates    RateTable      `json:"rates"`
	Footwear FootwearConfig `json:"footwear"`
}

// DefaultSnapshot возвращает снимок со значениями по умолчанию.
func DefaultSnapshot() Snapshot {
	return Snapshot{Rates: DefaultRates(), Footwear: DefaultFootwear()}
}
