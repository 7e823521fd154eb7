// Пакет auth — вход в интерфейс симулятора через Keycloak и сессии.
// Сессия и незавершённый вход хранятся в cookie, зашифрованных AES-256-GCM.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName — cookie с сессией пользователя.
	SessionCookieName = "dh_session"
	// SessionCookieMaxAge — срок жизни cookie сессии (24 часа).
	SessionCookieMaxAge = 24 * 60 * 60

	// LoginCookieName — cookie с параметрами незавершённого входа (state + PKCE).
	LoginCookieName = "dh_login"
	// loginCookieMaxAge — на прохождение формы Keycloak отводится 5 минут.
	loginCookieMaxAge = 5 * 60

	// maxCookieSize — браузеры отбрасывают cookie больше 4 КБ.
	maxCookieSize = 4000

	// refreshBuffer — access token обновляется заранее, за 30 секунд до истечения.
	refreshBuffer = 30 * time.Second
)

const (
	purposeSession = "session"
	purposeLogin   = "login"
)

// ErrSessionTooLarge — токены Keycloak не помещаются в cookie.
var ErrSessionTooLarge = errors.New("сессия не помещается в cookie")

// ErrNoLoginFlow — cookie незавершённого входа отсутствует или истекла.
var ErrNoLoginFlow = errors.New("нет незавершённого входа")

// SessionData — содержимое cookie сессии.
type SessionData struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: токен хранится только в зашифрованном виде
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: токен хранится только в зашифрованном виде
	// ExpiresAt — истечение access token (Unix, секунды).
	ExpiresAt int64  `json:"expires_at"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	// Role — роль на момент последней проверки; Gateway перепроверяет её на каждом запросе.
	Role string `json:"role"`
}

// NewSessionData создаёт сессию из ответа token endpoint.
func NewSessionData(tokens *TokenResponse, now time.Time) *SessionData {
	return (&SessionData{}).WithTokens(tokens, now)
}

// WithTokens возвращает копию сессии с новыми токенами.
// Keycloak может не вернуть refresh token при refresh — тогда остаётся прежний.
func (s *SessionData) WithTokens(tokens *TokenResponse, now time.Time) *SessionData {
	updated := *s
	updated.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		updated.RefreshToken = tokens.RefreshToken
	}
	updated.ExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	return &updated
}

// IsExpired сообщает, пора ли обновлять access token.
func (s *SessionData) IsExpired(now time.Time) bool {
	return !now.Add(refreshBuffer).Before(time.Unix(s.ExpiresAt, 0))
}

// SessionManager читает и пишет зашифрованные cookie сессии и входа.
type SessionManager struct {
	sealer *sealer
	// secure — флаг Secure для cookie (приложение за HTTPS).
	secure bool
}

// NewSessionManager создаёт менеджер сессий.
// key — DH_SESSION_SECRET; пустой — случайный ключ на время жизни процесса.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &SessionManager{sealer: s, secure: secure}, nil
}

// Encrypt шифрует сессию в значение cookie.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	return sm.sealer.seal(purposeSession, data)
}

// Decrypt расшифровывает значение cookie сессии.
func (sm *SessionManager) Decrypt(value string) (*SessionData, error) {
	var data SessionData
	if err := sm.sealer.open(purposeSession, value, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetSessionCookie записывает сессию в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	value, err := sm.Encrypt(data)
	if err != nil {
		return err
	}
	if len(value) > maxCookieSize {
		return fmt.Errorf("%w: %d байт", ErrSessionTooLarge, len(value))
	}
	sm.setCookie(w, SessionCookieName, value, SessionCookieMaxAge)
	return nil
}

// GetSessionFromRequest возвращает сессию запроса; nil, nil — cookie нет.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	c, err := r.Cookie(SessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sm.Decrypt(c.Value)
}

// ClearSessionCookie удаляет cookie сессии (выход, невалидная сессия).
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	sm.setCookie(w, SessionCookieName, "", -1)
}

// SetLoginCookie сохраняет параметры входа до возврата из Keycloak.
func (sm *SessionManager) SetLoginCookie(w http.ResponseWriter, flow *LoginFlow) error {
	value, err := sm.sealer.seal(purposeLogin, flow)
	if err != nil {
		return err
	}
	sm.setCookie(w, LoginCookieName, value, loginCookieMaxAge)
	return nil
}

// LoginFromRequest возвращает параметры входа из cookie.
// Без cookie — ErrNoLoginFlow; подделанная cookie — ErrUnsealFailed.
func (sm *SessionManager) LoginFromRequest(r *http.Request) (*LoginFlow, error) {
	c, err := r.Cookie(LoginCookieName)
	if err != nil {
		return nil, ErrNoLoginFlow
	}
	var flow LoginFlow
	if err := sm.sealer.open(purposeLogin, c.Value, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// ClearLoginCookie удаляет cookie входа: она одноразовая.
func (sm *SessionManager) ClearLoginCookie(w http.ResponseWriter) {
	sm.setCookie(w, LoginCookieName, "", -1)
}

func (sm *SessionManager) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
