// health.go — служебные endpoints: /health/live, /health/ready и /metrics.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/dhsimulator/internal/config"
)

// Статусы проверки готовности.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// readyCheckTimeout — общий лимит на все проверки одного запроса /health/ready.
const readyCheckTimeout = 5 * time.Second

// ReadinessChecker — проверка одной зависимости для /health/ready.
type ReadinessChecker interface {
	CheckReady(ctx context.Context) (status string, message string)
}

// DependencyHealth — последние результаты topologymetrics (имя → доступна).
type DependencyHealth interface {
	Health() map[string]bool
}

// ReadinessCheck — именованная проверка.
// Critical: отказ делает сервис неготовым (503). Отказ некритичной
// зависимости понижает статус до degraded.
type ReadinessCheck struct {
	Name     string
	Checker  ReadinessChecker
	Critical bool
}

// HealthHandler обслуживает probes Kubernetes и метрики.
type HealthHandler struct {
	checks    []ReadinessCheck
	deps      DependencyHealth
	metrics   http.Handler
	startedAt time.Time
}

// NewHealthHandler создаёт обработчик. deps может быть nil
// (topologymetrics не запустился).
func NewHealthHandler(checks []ReadinessCheck, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		deps:      deps,
		metrics:   promhttp.Handler(),
		startedAt: time.Now(),
	}
}

type checkResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Critical bool   `json:"critical"`
}

type liveResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type readyResponse struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	CheckedAt    time.Time              `json:"checked_at"`
	Checks       map[string]checkResult `json:"checks"`
	Dependencies map[string]bool        `json:"dependencies,omitempty"`
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, liveResponse{
		Status:  StatusOK,
		Version: config.Version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HealthReady выполняет проверки параллельно.
// 503 — отказала критичная зависимость, иначе 200 (ok или degraded).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	resp := readyResponse{
		Version:   config.Version,
		CheckedAt: time.Now().UTC(),
		Checks:    h.runChecks(ctx),
	}
	if h.deps != nil {
		resp.Dependencies = h.deps.Health()
	}
	resp.Status = summarize(resp.Checks)

	code := http.StatusOK
	if resp.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeProbe(w, code, resp)
}

// GetMetrics отдаёт метрики Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]checkResult {
	results := make(map[string]checkResult, len(h.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range h.checks {
		if check.Checker == nil {
			results[check.Name] = checkResult{Status: StatusFail, Message: "не инициализирован", Critical: check.Critical}
			continue
		}
		wg.Add(1)
		go func(check ReadinessCheck) {
			defer wg.Done()
			status, msg := check.Checker.CheckReady(ctx)
			mu.Lock()
			results[check.Name] = checkResult{Status: status, Message: msg, Critical: check.Critical}
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return results
}

// summarize сводит результаты в общий статус.
func summarize(results map[string]checkResult) string {
	status := StatusOK
	for _, res := range results {
		switch {
		case res.Status == StatusOK:
		case res.Status == StatusFail && res.Critical:
			return StatusFail
		default:
			status = StatusDegraded
		}
	}
	return status
}

func writeProbe(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
