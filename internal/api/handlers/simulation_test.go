package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/service"
)

func TestGetQuote(t *testing.T) {
	f := newAPIFixture()

	tests := []struct {
		name        string
		target      string
		status      int
		wantAmount  float64
		wantClamped bool
	}{
		{"займ", "/api/simulation/quote?mode=loans&amount=50000", http.StatusOK, 50000, false},
		{"режим по умолчанию", "/api/simulation/quote?amount=1000", http.StatusOK, 1000, false},
		{"ограничение лимитом", "/api/simulation/quote?mode=loans&amount=250000&dni=30123456", http.StatusOK, 100000, true},
		{"неизвестный DNI", "/api/simulation/quote?amount=1&dni=999", http.StatusNotFound, 0, false},
		{"неизвестный режим", "/api/simulation/quote?mode=cars&amount=1", http.StatusBadRequest, 0, false},
		{"некорректная сумма", "/api/simulation/quote?amount=abc", http.StatusBadRequest, 0, false},
		{"NaN", "/api/simulation/quote?amount=NaN", http.StatusBadRequest, 0, false},
		{"бесконечность", "/api/simulation/quote?amount=Inf", http.StatusBadRequest, 0, false},
		{"минус бесконечность", "/api/simulation/quote?amount=-Inf", http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, f.handler.GetQuote, http.MethodGet, tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("статус = %d, хотели %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp quoteResponse
			decodeBody(t, w, &resp)
			if resp.Amount != tt.wantAmount || resp.Clamped != tt.wantClamped {
				t.Errorf("amount=%v clamped=%v, хотели %v/%v", resp.Amount, resp.Clamped, tt.wantAmount, tt.wantClamped)
			}
			if len(resp.Quotes) == 0 {
				t.Error("ожидается таблица платежей")
			}
		})
	}
}

func TestGetQuote_FootwearCents(t *testing.T) {
	f := newAPIFixture()

	w := doJSON(t, f.handler.GetQuote, http.MethodGet, "/api/simulation/quote?mode=footwear&amount=10000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d: %s", w.Code, w.Body.String())
	}
	var resp quoteResponse
	decodeBody(t, w, &resp)
	want := []calculator.Quote{
		{Installments: 3, Rate: 100, Total: 20000, PerInstallment: 6666.67},
		{Installments: 6, Rate: 100, Total: 20000, PerInstallment: 3333.33},
	}
	if diff := cmp.Diff(want, resp.Quotes); diff != "" {
		t.Errorf("quotes (-want +got):\n%s", diff)
	}
}

func TestLogSimulation(t *testing.T) {
	f := newAPIFixture()

	w := doJSON(t, f.handler.LogSimulation, http.MethodPost, "/api/simulation/log",
		map[string]any{"userId": "u1", "amount": 1500, "installments": 6, "metadata": map[string]any{"action": "simulate"}})
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	var ok successResponse
	decodeBody(t, w, &ok)
	if !ok.Success || f.actions.last == nil || *f.actions.last.Amount != 1500 {
		t.Errorf("ответ = %+v, запись = %+v", ok, f.actions.last)
	}

	for _, body := range []map[string]any{{"userId": "u1"}, {"userId": "u1", "amount": 0}} {
		w = doJSON(t, f.handler.LogSimulation, http.MethodPost, "/api/simulation/log", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%v: статус = %d, ожидается 400", body, w.Code)
		}
		if got := errorMessage(t, w); got != "Missing required data" {
			t.Errorf("error = %q", got)
		}
	}
}

func TestRequestHandoff(t *testing.T) {
	f := newAPIFixture()

	w := doJSON(t, f.handler.RequestHandoff, http.MethodPost, "/api/simulation/request",
		map[string]any{"mode": "footwear", "amount": 40000, "installments": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	var resp handoffResponse
	decodeBody(t, w, &resp)
	if resp.WhatsAppURL == "" || resp.OperationCode == "" {
		t.Errorf("ответ = %+v", resp)
	}
	if in := f.simulator.lastInput; in.Mode != calculator.ModeFootwear || in.UserID != "a1" {
		t.Errorf("вход сервиса = %+v", in)
	}
	if resp.Quote.PerInstallment != 26666.67 {
		t.Errorf("perInstallment = %v, ожидается 26666.67", resp.Quote.PerInstallment)
	}

	f.simulator.err = fmt.Errorf("%w: DNI requerido", service.ErrValidation)
	w = doJSON(t, f.handler.RequestHandoff, http.MethodPost, "/api/simulation/request",
		map[string]any{"mode": "loans", "amount": 1, "installments": 4})
	if w.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидается 400", w.Code)
	}
}

func TestDownloadFlyer(t *testing.T) {
	f := newAPIFixture()

	w := doJSON(t, f.handler.DownloadFlyer, http.MethodGet,
		"/api/flyer?mode=loans&amount=150000&installments=6&name=Ana", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="PRESTAMO_DH_150000.jpg"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if in := f.simulator.lastInput; in.Installments != 6 || in.ClientName != "Ana" {
		t.Errorf("вход сервиса = %+v", in)
	}

	for _, target := range []string{
		"/api/flyer?amount=1&installments=x",
		"/api/flyer?amount=Inf&installments=6",
		"/api/flyer?amount=-Inf&installments=6",
	} {
		w = doJSON(t, f.handler.DownloadFlyer, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: статус = %d, ожидается 400", target, w.Code)
		}
	}

	f.simulator.err = fmt.Errorf("ошибка генерации флаера: %w", fmt.Errorf("jpeg"))
	w = doJSON(t, f.handler.DownloadFlyer, http.MethodGet, "/api/flyer?amount=1", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("статус = %d, ожидается 500", w.Code)
	}
}

func TestRequestHandoff_Anonymous(t *testing.T) {
	f := newAPIFixture()

	r := httptest.NewRequest(http.MethodPost, "/api/simulation/request",
		jsonBody(t, map[string]any{"mode": "loans", "amount": 1000, "installments": 4, "dni": "30123456"}))
	w := httptest.NewRecorder()
	f.handler.RequestHandoff(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	if f.simulator.lastInput.UserID != "" {
		t.Errorf("анонимный запрос: UserID = %q", f.simulator.lastInput.UserID)
	}
}
