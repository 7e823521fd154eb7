// metrics.go — Prometheus HTTP метрики симулятора.
// Регистрирует метрики: dh_http_requests_total, dh_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dh_http_requests_total",
			Help: "Общее количество HTTP-запросов к симулятору",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dh_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к симулятору в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем ID пользователей на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// statusResponseWriter — обёртка для перехвата статус-кода.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownPaths — статические пути, попадающие в лейбл как есть.
var knownPaths = map[string]bool{
	"/":                       true,
	"/health/live":            true,
	"/health/ready":           true,
	"/metrics":                true,
	"/login":                  true,
	"/callback":               true,
	"/logout":                 true,
	"/publico":                true,
	"/simulador":              true,
	"/admin":                  true,
	"/admin/clients":          true,
	"/admin/config":           true,
	"/admin/users":            true,
	"/api/clients/check":      true,
	"/api/simulation/log":     true,
	"/api/simulation/quote":   true,
	"/api/simulation/request": true,
	"/api/flyer":              true,
	"/api/admin/clients":      true,
	"/api/admin/clients/bulk": true,
	"/api/admin/config":       true,
	"/api/admin/stats":        true,
	"/api/admin/reset-logs":   true,
	"/api/admin/users":        true,
}

// normalizePath сворачивает динамические сегменты пути для предотвращения
// взрывного роста кардинальности метрик.
// /api/admin/users/8c1f.../password → /api/admin/users/{id}/password
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}

	const usersPrefix = "/api/admin/users/"
	if rest, ok := strings.CutPrefix(path, usersPrefix); ok && rest != "" {
		if strings.HasSuffix(rest, "/password") {
			return usersPrefix + "{id}/password"
		}
		return usersPrefix + "{id}"
	}

	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}

	return "other"
}
