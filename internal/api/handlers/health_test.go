package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady(context.Context) (string, string) {
	return c.status, c.message
}

// slowChecker отвечает только по истечении контекста.
type slowChecker struct{}

func (slowChecker) CheckReady(ctx context.Context) (string, string) {
	<-ctx.Done()
	return StatusFail, ctx.Err().Error()
}

type staticDeps map[string]bool

func (d staticDeps) Health() map[string]bool {
	return d
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()
	h.HealthLive(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	var resp liveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusOK || resp.Uptime == "" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	ok := staticChecker{StatusOK, ""}
	tests := []struct {
		name       string
		pg, kc     ReadinessChecker
		wantStatus string
		wantCode   int
	}{
		{"всё доступно", ok, ok, StatusOK, http.StatusOK},
		{"realm отключён", ok, staticChecker{StatusDegraded, "realm"}, StatusDegraded, http.StatusOK},
		{"Keycloak недоступен", ok, staticChecker{StatusFail, "down"}, StatusDegraded, http.StatusOK},
		{"нет БД", staticChecker{StatusFail, "down"}, ok, StatusFail, http.StatusServiceUnavailable},
		{"БД не инициализирована", nil, ok, StatusFail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler([]ReadinessCheck{
				{Name: "postgresql", Checker: tt.pg, Critical: true},
				{Name: "keycloak", Checker: tt.kc},
			}, staticDeps{"postgresql": true})
			w := httptest.NewRecorder()
			h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("статус = %d, хотели %d", w.Code, tt.wantCode)
			}
			var resp readyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, хотели %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != 2 || !resp.Checks["postgresql"].Critical {
				t.Errorf("checks = %+v", resp.Checks)
			}
			if !resp.Dependencies["postgresql"] {
				t.Error("ожидаются результаты dephealth")
			}
		})
	}
}

func TestHealthReady_Timeout(t *testing.T) {
	h := NewHealthHandler([]ReadinessCheck{{Name: "postgresql", Checker: slowChecker{}, Critical: true}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil).WithContext(ctx))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("статус = %d, хотели 503", w.Code)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("ответ probe не должен кешироваться")
	}
}
