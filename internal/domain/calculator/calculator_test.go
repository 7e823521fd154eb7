package calculator

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func approx() cmp.Option {
	return cmpopts.EquateApprox(0, 1e-9)
}

func TestLoan(t *testing.T) {
	c := New(PolicyFallback, DefaultFallbackRate)

	tests := []struct {
		name         string
		principal    float64
		installments int
		want         Quote
	}{
		{
			name:         "6 платежей по таблице",
			principal:    100000,
			installments: 6,
			want:         Quote{Installments: 6, Rate: 0.47, Total: 147000, PerInstallment: 24500},
		},
		{
			name:         "4 платежа по таблице",
			principal:    100000,
			installments: 4,
			want:         Quote{Installments: 4, Rate: 0.35, Total: 135000, PerInstallment: 33750},
		},
		{
			name:         "нет в таблице — резервный коэффициент",
			principal:    100000,
			installments: 12,
			want:         Quote{Installments: 12, Rate: 0.50, Total: 150000, PerInstallment: 12500, Estimated: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Loan(tt.principal, tt.installments, DefaultRates())
			if err != nil {
				t.Fatalf("Loan() вернул ошибку: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, approx()); diff != "" {
				t.Errorf("Loan() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoan_StrictPolicy(t *testing.T) {
	c := New(PolicyStrict, DefaultFallbackRate)

	_, err := c.Loan(100000, 12, DefaultRates())
	if !errors.Is(err, ErrRateNotConfigured) {
		t.Errorf("ожидается ErrRateNotConfigured, получено: %v", err)
	}

	q, err := c.Loan(100000, 6, DefaultRates())
	if err != nil {
		t.Fatalf("Loan() вернул ошибку для настроенного N: %v", err)
	}
	if q.Estimated {
		t.Error("Estimated = true для настроенного коэффициента")
	}
}

func TestLoan_InvalidInput(t *testing.T) {
	c := New(PolicyFallback, DefaultFallbackRate)

	if _, err := c.Loan(0, 6, DefaultRates()); !errors.Is(err, ErrInvalidPrincipal) {
		t.Errorf("сумма 0: ожидается ErrInvalidPrincipal, получено: %v", err)
	}
	if _, err := c.Loan(-100, 6, DefaultRates()); !errors.Is(err, ErrInvalidPrincipal) {
		t.Errorf("отрицательная сумма: ожидается ErrInvalidPrincipal, получено: %v", err)
	}
	if _, err := c.Loan(1000, 0, DefaultRates()); !errors.Is(err, ErrInvalidInstallments) {
		t.Errorf("0 платежей: ожидается ErrInvalidInstallments, получено: %v", err)
	}
}

func TestNew_UnknownPolicyIsFallback(t *testing.T) {
	if got := New("", 0.5).Policy(); got != PolicyFallback {
		t.Errorf("Policy() = %q, ожидается fallback", got)
	}
}

func TestFootwear(t *testing.T) {
	got, err := Footwear(20000, 3, 100)
	if err != nil {
		t.Fatalf("Footwear() вернул ошибку: %v", err)
	}
	want := Quote{Installments: 3, Rate: 100, Total: 40000, PerInstallment: 40000.0 / 3}
	if diff := cmp.Diff(want, got, approx()); diff != "" {
		t.Errorf("Footwear() (-want +got):\n%s", diff)
	}
	if c := got.Cents(); c.PerInstallment != 13333.33 || c.Total != 40000 {
		t.Errorf("Cents() = %+v, ожидается 13333.33 / 40000", c)
	}

	zero, err := Footwear(20000, 6, 0)
	if err != nil {
		t.Fatalf("Footwear() с нулевой наценкой вернул ошибку: %v", err)
	}
	if zero.Total != 20000 {
		t.Errorf("Total = %v при наценке 0, ожидается 20000", zero.Total)
	}
}

func TestLoanTable(t *testing.T) {
	c := New(PolicyFallback, DefaultFallbackRate)

	table := c.LoanTable(100000, DefaultRates())
	var got []int
	for _, q := range table {
		got = append(got, q.Installments)
	}
	if diff := cmp.Diff([]int{4, 6, 8, 10}, got); diff != "" {
		t.Errorf("порядок платежей (-want +got):\n%s", diff)
	}

	if table := c.LoanTable(0, DefaultRates()); table != nil {
		t.Errorf("LoanTable(0) = %v, ожидается nil", table)
	}
}

func TestFootwearTable(t *testing.T) {
	cfg := FootwearConfig{Markup: 50, Quotas: []int{6, 3, 6}}

	table := FootwearTable(10000, cfg)
	if len(table) != 2 {
		t.Fatalf("len(table) = %d, ожидается 2 (дубликаты удалены)", len(table))
	}
	if table[0].Installments != 3 || table[1].Installments != 6 {
		t.Errorf("порядок = [%d %d], ожидается [3 6]", table[0].Installments, table[1].Installments)
	}
	if math.Abs(table[1].PerInstallment-2500) > 1e-9 {
		t.Errorf("PerInstallment = %v, ожидается 2500", table[1].PerInstallment)
	}

	if table := FootwearTable(-1, cfg); table != nil {
		t.Errorf("FootwearTable(-1) = %v, ожидается nil", table)
	}
}

func TestCalculator_ModeDispatch(t *testing.T) {
	c := New(PolicyFallback, DefaultFallbackRate)
	snap := DefaultSnapshot()

	q, err := c.Quote(ModeFootwear, 10000, 3, snap)
	if err != nil {
		t.Fatalf("Quote(footwear) вернул ошибку: %v", err)
	}
	if q.Total != 20000 {
		t.Errorf("footwear Total = %v, ожидается 20000", q.Total)
	}

	if got := len(c.Table(ModeLoans, 10000, snap)); got != 4 {
		t.Errorf("len(Table(loans)) = %d, ожидается 4", got)
	}
	if got := len(c.Table(ModeFootwear, 10000, snap)); got != 2 {
		t.Errorf("len(Table(footwear)) = %d, ожидается 2", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeLoans, false},
		{"loans", ModeLoans, false},
		{"footwear", ModeFootwear, false},
		{"cars", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) ошибка = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, ожидается %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRateTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		table   RateTable
		wantErr bool
	}{
		{"по умолчанию", DefaultRates(), false},
		{"граница 0 и 5", RateTable{1: 0, 2: 5}, false},
		{"пустая", RateTable{}, true},
		{"отрицательный коэффициент", RateTable{4: -0.1}, true},
		{"коэффициент больше 5", RateTable{4: 5.01}, true},
		{"ключ 0", RateTable{0: 0.3}, true},
		{"NaN", RateTable{4: math.NaN()}, true},
		{"бесконечность", RateTable{4: math.Inf(1)}, true},
		{"минус бесконечность", RateTable{4: math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() ошибка = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ожидается ErrInvalidConfig, получено: %v", err)
			}
		})
	}
}

func TestRateTable_JSON(t *testing.T) {
	var table RateTable
	if err := json.Unmarshal([]byte(`{"4":0.35,"12":1.1}`), &table); err != nil {
		t.Fatalf("Unmarshal вернул ошибку: %v", err)
	}
	if diff := cmp.Diff(RateTable{4: 0.35, 12: 1.1}, table); diff != "" {
		t.Errorf("таблица (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"four":0.35}`), &table); err == nil {
		t.Error("ожидается ошибка для нечислового ключа")
	}
}

func TestFootwearConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FootwearConfig
		wantErr bool
	}{
		{"по умолчанию", DefaultFootwear(), false},
		{"наценка 1000", FootwearConfig{Markup: 1000, Quotas: []int{1}}, false},
		{"наценка больше 1000", FootwearConfig{Markup: 1001, Quotas: []int{3}}, true},
		{"отрицательная наценка", FootwearConfig{Markup: -1, Quotas: []int{3}}, true},
		{"нет вариантов", FootwearConfig{Markup: 100}, true},
		{"вариант 0", FootwearConfig{Markup: 100, Quotas: []int{0}}, true},
		{"наценка NaN", FootwearConfig{Markup: math.NaN(), Quotas: []int{3}}, true},
		{"наценка бесконечность", FootwearConfig{Markup: math.Inf(1), Quotas: []int{3}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() ошибка = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFootwearConfig_NormalizedDoesNotMutate(t *testing.T) {
	cfg := FootwearConfig{Markup: 10, Quotas: []int{12, 3, 3}}
	n := cfg.Normalized()

	if diff := cmp.Diff([]int{3, 12}, n.Quotas); diff != "" {
		t.Errorf("Normalized().Quotas (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{12, 3, 3}, cfg.Quotas); diff != "" {
		t.Errorf("исходная конфигурация изменена (-want +got):\n%s", diff)
	}
}

func TestRound2(t *testing.T) {
	q, err := Footwear(10000, 3, 100)
	if err != nil {
		t.Fatalf("Footwear() вернул ошибку: %v", err)
	}
	if got := Round2(q.PerInstallment); got != 6666.67 {
		t.Errorf("Round2(%v) = %v, ожидается 6666.67", q.PerInstallment, got)
	}
	if got := Round2(20000.0 / 6); got != 3333.33 {
		t.Errorf("Round2() = %v, ожидается 3333.33", got)
	}
}
