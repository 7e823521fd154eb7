// Пакет handlers — HTTP-обработчики страниц симулятора.
// auth.go — вход через Keycloak OIDC (Authorization Code + PKCE) и выход.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	"github.com/bigkaa/dhsimulator/internal/ui/auth"
	uimiddleware "github.com/bigkaa/dhsimulator/internal/ui/middleware"
	"github.com/bigkaa/dhsimulator/internal/ui/pages"
)

// Сообщения страницы входа.
const (
	msgLoginFailed  = "No se pudo iniciar sesión. Intentá nuevamente."
	msgLoginExpired = "La sesión de ingreso expiró. Intentá nuevamente."
)

// ProfileEnsurer создаёт локальный профиль при первом входе (UserService).
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, userID, email, role string)
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	oidcClient     *auth.OIDCClient
	sessionManager *auth.SessionManager
	verifier       uimiddleware.TokenVerifier
	profiles       ProfileEnsurer
	renderer       *pages.Renderer
	// publicURL — внешний адрес приложения; пустой — определяется по запросу.
	publicURL string
	version   string
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	oidcClient *auth.OIDCClient,
	sessionManager *auth.SessionManager,
	verifier uimiddleware.TokenVerifier,
	profiles ProfileEnsurer,
	renderer *pages.Renderer,
	publicURL, version string,
	logger *slog.Logger,
) *AuthHandler {
	publicURL = strings.TrimRight(publicURL, "/")
	return &AuthHandler{
		oidcClient:     oidcClient,
		sessionManager: sessionManager,
		verifier:       verifier,
		profiles:       profiles,
		renderer:       renderer,
		publicURL:      publicURL,
		version:        version,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "ui.auth")),
	}
}

// HandleLogin — GET /login
// Без параметров показывает страницу входа. С ?start=1 генерирует PKCE и state,
// сохраняет их в short-lived cookie и перенаправляет на Keycloak.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("start") == "" {
		h.renderLogin(w, http.StatusOK, "")
		return
	}

	flow, err := auth.NewLoginFlow()
	if err != nil {
		h.logger.Error("Ошибка генерации параметров входа", slog.String("error", err.Error()))
		h.renderLogin(w, http.StatusInternalServerError, msgLoginFailed)
		return
	}
	if err := h.sessionManager.SetLoginCookie(w, flow); err != nil {
		h.logger.Error("Ошибка записи cookie входа", slog.String("error", err.Error()))
		h.renderLogin(w, http.StatusInternalServerError, msgLoginFailed)
		return
	}

	authorizeURL := h.oidcClient.AuthorizeURL(h.buildRedirectURI(r), flow)
	h.logger.Debug("Redirect на Keycloak login", slog.String("authorize_url", authorizeURL))
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleCallback — GET /callback
// Обменивает authorization code на tokens, проверяет access token,
// создаёт профиль и session cookie, перенаправляет на домашнюю страницу роли.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Keycloak вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		h.renderLogin(w, http.StatusBadRequest, msgLoginFailed)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.renderLogin(w, http.StatusBadRequest, msgLoginFailed)
		return
	}

	flow, err := h.sessionManager.LoginFromRequest(r)
	if err != nil {
		h.logger.Warn("Cookie входа не прочитана", slog.String("error", err.Error()))
		msg := msgLoginFailed
		if errors.Is(err, auth.ErrNoLoginFlow) {
			msg = msgLoginExpired
		}
		h.renderLogin(w, http.StatusBadRequest, msg)
		return
	}
	// cookie входа одноразовая
	h.sessionManager.ClearLoginCookie(w)
	if flow.State != state {
		h.logger.Warn("State mismatch (возможная CSRF атака)")
		h.renderLogin(w, http.StatusBadRequest, msgLoginFailed)
		return
	}

	tokens, err := h.oidcClient.ExchangeCode(r.Context(), code, h.buildRedirectURI(r), flow)
	if err != nil {
		h.logger.Error("Ошибка обмена code на tokens", slog.String("error", err.Error()))
		status := http.StatusBadGateway
		if errors.Is(err, auth.ErrTokenRejected) {
			status = http.StatusBadRequest
		}
		h.renderLogin(w, status, msgLoginFailed)
		return
	}

	principal, err := h.verifier.Verify(r.Context(), tokens.AccessToken)
	if err != nil {
		h.logger.Error("Keycloak выдал невалидный access token", slog.String("error", err.Error()))
		h.renderLogin(w, http.StatusUnauthorized, msgLoginFailed)
		return
	}

	h.profiles.EnsureProfile(r.Context(), principal.UserID, principal.Email, principal.Role)

	session := auth.NewSessionData(tokens, h.now())
	session.UserID = principal.UserID
	session.Username = principal.Username
	session.Email = principal.Email
	session.Role = principal.Role

	if err := h.sessionManager.SetSessionCookie(w, session); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		h.renderLogin(w, http.StatusInternalServerError, msgLoginFailed)
		return
	}

	h.logger.Info("Пользователь вошёл",
		slog.String("user_id", principal.UserID),
		slog.String("role", principal.Role),
	)
	http.Redirect(w, r, rbac.HomePath(principal.Role), http.StatusFound)
}

// HandleLogout — POST /logout
// Очищает session cookie и перенаправляет на Keycloak logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.ClearSessionCookie(w)
	logoutURL := h.oidcClient.LogoutURL(h.buildBaseURL(r) + uimiddleware.LoginPath)
	h.logger.Info("Пользователь выполняет logout")
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := pages.Data{Title: "Ingresar", Error: message, Version: h.version}
	if err := h.renderer.Render(w, pages.Login, data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы входа", slog.String("error", err.Error()))
	}
}

// buildRedirectURI формирует callback redirect URI.
func (h *AuthHandler) buildRedirectURI(r *http.Request) string {
	return h.buildBaseURL(r) + "/callback"
}

// buildBaseURL возвращает DH_PUBLIC_URL, а без него — scheme + host запроса
// с учётом X-Forwarded-* заголовков reverse proxy.
func (h *AuthHandler) buildBaseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}
	return scheme + "://" + host
}
