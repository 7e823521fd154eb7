package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// TestConfigService_DefaultsWhenEmpty проверяет значения по умолчанию
// при пустой таблице app_config.
func TestConfigService_DefaultsWhenEmpty(t *testing.T) {
	svc := NewConfigService(newMockAppConfigRepo(), 8, time.Minute, testLogger())

	stored, err := svc.Stored(context.Background())
	if err != nil {
		t.Fatalf("Stored() вернул ошибку: %v", err)
	}
	if stored.Rates != nil || stored.Footwear != nil {
		t.Errorf("Stored() = %+v, ожидается пустая конфигурация", stored)
	}

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() вернул ошибку: %v", err)
	}
	if diff := cmp.Diff(calculator.DefaultSnapshot(), snap); diff != "" {
		t.Errorf("Snapshot() отличается от значений по умолчанию (-want +got):\n%s", diff)
	}
}

// TestConfigService_SaveAndRead проверяет сохранение, нормализацию квот
// и сброс кэша после записи.
func TestConfigService_SaveAndRead(t *testing.T) {
	repo := newMockAppConfigRepo()
	svc := NewConfigService(repo, 8, time.Minute, testLogger())
	ctx := context.Background()

	// Прогреваем кэш значениями по умолчанию
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot() вернул ошибку: %v", err)
	}

	rates := calculator.RateTable{3: 0.2, 12: 1.1}
	footwear := &calculator.FootwearConfig{Markup: 80, Quotas: []int{6, 3, 6}}
	if err := svc.Save(ctx, rates, footwear, "admin@dh"); err != nil {
		t.Fatalf("Save() вернул ошибку: %v", err)
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() вернул ошибку: %v", err)
	}
	want := calculator.Snapshot{
		Rates:    rates,
		Footwear: calculator.FootwearConfig{Markup: 80, Quotas: []int{3, 6}},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("Snapshot() после Save отличается (-want +got):\n%s", diff)
	}

	var raw map[string]float64
	if err := json.Unmarshal(repo.entries[repository.ConfigKeyRates], &raw); err != nil {
		t.Fatalf("rates_config не JSON-объект: %v", err)
	}
	if raw["12"] != 1.1 {
		t.Errorf("rates_config = %v, ожидается ключ \"12\"", raw)
	}
}

// TestConfigService_SaveIdempotent проверяет, что повторное сохранение
// той же таблицы сохраняет то же значение.
func TestConfigService_SaveIdempotent(t *testing.T) {
	repo := newMockAppConfigRepo()
	svc := NewConfigService(repo, 8, time.Minute, testLogger())
	ctx := context.Background()

	rates := calculator.RateTable{4: 0.35, 6: 0.47}
	if err := svc.Save(ctx, rates, nil, "a"); err != nil {
		t.Fatalf("Save() вернул ошибку: %v", err)
	}
	first := string(repo.entries[repository.ConfigKeyRates])
	if err := svc.Save(ctx, rates, nil, "a"); err != nil {
		t.Fatalf("Save() вернул ошибку: %v", err)
	}
	if second := string(repo.entries[repository.ConfigKeyRates]); second != first {
		t.Errorf("повторное сохранение изменило значение: %s != %s", second, first)
	}
	if _, ok := repo.entries[repository.ConfigKeyFootwear]; ok {
		t.Error("footwear_config не передавался и не должен сохраняться")
	}
}

// TestConfigService_Cache проверяет, что повторные чтения обслуживаются кэшем.
func TestConfigService_Cache(t *testing.T) {
	repo := newMockAppConfigRepo()
	svc := NewConfigService(repo, 8, time.Minute, testLogger())
	ctx := context.Background()

	for range 3 {
		if _, err := svc.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot() вернул ошибку: %v", err)
		}
	}
	if n := repo.readCount(); n != 1 {
		t.Errorf("чтений из БД = %d, ожидается 1", n)
	}
}

// TestConfigService_Validation проверяет отклонение некорректных блоков.
func TestConfigService_Validation(t *testing.T) {
	repo := newMockAppConfigRepo()
	svc := NewConfigService(repo, 8, time.Minute, testLogger())

	tests := []struct {
		name     string
		rates    calculator.RateTable
		footwear *calculator.FootwearConfig
	}{
		{"отрицательный коэффициент", calculator.RateTable{4: -0.1}, nil},
		{"нулевое количество платежей", calculator.RateTable{0: 0.3}, nil},
		{"пустые квоты", nil, &calculator.FootwearConfig{Markup: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Save(context.Background(), tt.rates, tt.footwear, "a")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидается ErrValidation, получено: %v", err)
			}
		})
	}
	if len(repo.entries) != 0 {
		t.Errorf("некорректная конфигурация сохранена: %v", repo.entries)
	}
}

// TestConfigService_InvalidStoredFallsBack проверяет подстановку значений
// по умолчанию для повреждённой записи.
func TestConfigService_InvalidStoredFallsBack(t *testing.T) {
	repo := newMockAppConfigRepo()
	repo.entries[repository.ConfigKeyRates] = json.RawMessage(`"not-a-table"`)
	repo.entries[repository.ConfigKeyFootwear] = json.RawMessage(`{"markup":50,"quotas":[2]}`)
	svc := NewConfigService(repo, 8, time.Minute, testLogger())

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() вернул ошибку: %v", err)
	}
	if diff := cmp.Diff(calculator.DefaultRates(), snap.Rates); diff != "" {
		t.Errorf("Rates (-want +got):\n%s", diff)
	}
	if snap.Footwear.Markup != 50 {
		t.Errorf("Footwear.Markup = %v, ожидается 50", snap.Footwear.Markup)
	}
}

// TestConfigService_SaveError проверяет проброс ошибки записи.
func TestConfigService_SaveError(t *testing.T) {
	repo := newMockAppConfigRepo()
	repo.setErr = errors.New("db down")
	svc := NewConfigService(repo, 8, time.Minute, testLogger())

	if err := svc.Save(context.Background(), calculator.DefaultRates(), nil, "a"); err == nil {
		t.Fatal("ожидается ошибка записи")
	}
}
