// Пакет middleware — HTTP middleware интерфейса симулятора.
// gateway.go — проверка сессии и маршрутизация по роли (Auth Gateway).
//
// Состояния: неаутентифицирован, agent, admin.
//   - публичные маршруты пропускаются всегда;
//   - аутентифицированный на /login перенаправляется на домашнюю страницу роли;
//   - неаутентифицированный: страницы → 302 /login, /api/* → 401;
//   - agent на маршрутах администратора: страницы → 302 /simulador, /api/* → 403.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/dhsimulator/internal/api/errors"
	apimw "github.com/bigkaa/dhsimulator/internal/api/middleware"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	"github.com/bigkaa/dhsimulator/internal/ui/auth"
)

// Пути, на которые перенаправляет Gateway.
const (
	LoginPath     = "/login"
	SimulatorPath = "/simulador"
)

// publicPaths — маршруты, доступные без входа.
var publicPaths = map[string]bool{
	"/login":                  true,
	"/callback":               true,
	"/logout":                 true,
	"/metrics":                true,
	"/api/clients/check":      true,
	"/api/simulation/log":     true,
	"/api/simulation/quote":   true,
	"/api/simulation/request": true,
}

// publicPrefixes — префиксы маршрутов, доступных без входа.
var publicPrefixes = []string{"/publico", "/static/", "/health/"}

// IsPublic сообщает, доступен ли путь без аутентификации.
// Пути с точкой (favicon.ico, robots.txt) считаются статическими файлами.
func IsPublic(path string) bool {
	if publicPaths[path] || strings.Contains(path, ".") {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsAdminPath сообщает, требует ли путь роли admin.
func IsAdminPath(path string) bool {
	return path == "/admin" || strings.HasPrefix(path, "/admin/") || strings.HasPrefix(path, "/api/admin/")
}

// isAPI сообщает, что путь относится к JSON API.
func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// skipAuth — пути, для которых сессию не читаем вовсе.
func skipAuth(path string) bool {
	return strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, "/health/") ||
		path == "/metrics" || strings.Contains(path, ".")
}

// TokenVerifier проверяет access token и возвращает пользователя.
// Реализуется *apimw.JWTAuth.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*apimw.Principal, error)
}

// TokenRefresher обновляет токены по refresh token.
// Реализуется *auth.OIDCClient.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
}

// Gateway — middleware аутентификации и авторизации по роли.
type Gateway struct {
	sessions  *auth.SessionManager
	refresher TokenRefresher
	verifier  TokenVerifier
	now       func() time.Time
	logger    *slog.Logger
}

// NewGateway создаёт Auth Gateway.
func NewGateway(
	sessions *auth.SessionManager,
	refresher TokenRefresher,
	verifier TokenVerifier,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		sessions:  sessions,
		refresher: refresher,
		verifier:  verifier,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "auth_gateway")),
	}
}

// Middleware возвращает HTTP middleware Gateway.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if skipAuth(path) {
			next.ServeHTTP(w, r)
			return
		}

		principal := g.authenticate(w, r)
		if principal != nil {
			r = r.WithContext(apimw.WithPrincipal(r.Context(), principal))
		}

		switch {
		case path == LoginPath && principal != nil:
			http.Redirect(w, r, rbac.HomePath(principal.Role), http.StatusFound)
			return

		case IsPublic(path):
			next.ServeHTTP(w, r)
			return

		case principal == nil:
			if isAPI(path) {
				apierrors.Unauthorized(w, "Unauthorized")
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return

		case IsAdminPath(path) && !principal.IsAdmin():
			g.logger.Debug("Доступ к маршруту администратора запрещён",
				slog.String("user_id", principal.UserID),
				slog.String("role", principal.Role),
				slog.String("path", path),
			)
			if isAPI(path) {
				apierrors.Forbidden(w, "Forbidden")
				return
			}
			http.Redirect(w, r, SimulatorPath, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticate определяет пользователя запроса.
// Для /api/* принимается Bearer token; иначе читается session cookie,
// просроченный access token обновляется через refresh token.
// Повреждённая или невалидная сессия очищается.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) *apimw.Principal {
	ctx := r.Context()

	if isAPI(r.URL.Path) {
		if token := apimw.BearerToken(r); token != "" {
			p, err := g.verifier.Verify(ctx, token)
			if err != nil {
				g.logger.Debug("Bearer token отклонён", slog.String("error", err.Error()))
				return nil
			}
			return p
		}
	}

	session, err := g.sessions.GetSessionFromRequest(r)
	if err != nil {
		g.logger.Debug("Ошибка чтения сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		g.sessions.ClearSessionCookie(w)
		return nil
	}
	if session == nil {
		return nil
	}

	dirty := false
	if session.IsExpired(g.now()) {
		refreshed, err := g.refresh(ctx, session)
		if err != nil {
			// Недоступность Keycloak не завершает сессию: следующий запрос повторит refresh
			if !errors.Is(err, auth.ErrTokenRejected) {
				g.logger.Warn("Keycloak недоступен для обновления сессии",
					slog.String("user_id", session.UserID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			g.logger.Info("Refresh token отклонён, сессия завершена",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
			g.sessions.ClearSessionCookie(w)
			return nil
		}
		session = refreshed
		dirty = true
	}

	p, err := g.verifier.Verify(ctx, session.AccessToken)
	if err != nil {
		g.logger.Info("Токен сессии не прошёл проверку",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		g.sessions.ClearSessionCookie(w)
		return nil
	}

	// Роль могла измениться (профиль в БД)
	if p.Role != session.Role || p.UserID != session.UserID {
		updated := *session
		updated.UserID = p.UserID
		updated.Role = p.Role
		session = &updated
		dirty = true
	}

	if dirty {
		if err := g.sessions.SetSessionCookie(w, session); err != nil {
			g.logger.Warn("Ошибка обновления session cookie", slog.String("error", err.Error()))
		}
	}

	return p
}

// refresh обновляет токены сессии через Keycloak.
func (g *Gateway) refresh(ctx context.Context, session *auth.SessionData) (*auth.SessionData, error) {
	tokens, err := g.refresher.RefreshTokens(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}
	return session.WithTokens(tokens, g.now()), nil
}
