// oidc.go — вход через Keycloak: Authorization Code Flow с PKCE (RFC 7636),
// public client без client_secret.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// oidcTokenRequests — запросы к token endpoint по grant и результату.
var oidcTokenRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dh_oidc_token_requests_total",
	Help: "Запросы к token endpoint Keycloak",
}, []string{"grant", "result"})

var (
	// ErrTokenRejected — Keycloak отклонил code или refresh token; нужен повторный вход.
	ErrTokenRejected = errors.New("token endpoint отклонил запрос")
	// ErrTokenEndpoint — Keycloak недоступен или ответил ошибкой сервера.
	ErrTokenEndpoint = errors.New("token endpoint недоступен")
)

// LoginFlow — одноразовые параметры одного входа.
type LoginFlow struct {
	// State — CSRF-параметр, возвращается Keycloak в callback.
	State string `json:"state"`
	// Verifier — PKCE code_verifier, в Keycloak уходит только его хеш.
	Verifier string `json:"verifier"`
}

// NewLoginFlow генерирует state (16 байт) и code_verifier (32 байта → 43 символа).
func NewLoginFlow() (*LoginFlow, error) {
	state, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации state: %w", err)
	}
	verifier, err := randomToken(32)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации code_verifier: %w", err)
	}
	return &LoginFlow{State: state, Verifier: verifier}, nil
}

// Challenge — code_challenge метода S256: base64url(SHA-256(verifier)).
func (f *LoginFlow) Challenge() string {
	sum := sha256.Sum256([]byte(f.Verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// OIDCConfig — параметры OIDC-клиента.
type OIDCConfig struct {
	// KeycloakURL — адрес Keycloak изнутри сети (token endpoint).
	KeycloakURL string
	// BrowserKeycloakURL — внешний адрес для redirect браузера; пустой — KeycloakURL.
	BrowserKeycloakURL string
	Realm              string
	// ClientID — public client интерфейса (DH_OIDC_CLIENT_ID).
	ClientID string
	// HTTPClient — nil: создаётся клиент с Timeout.
	HTTPClient *http.Client
	// Timeout — по умолчанию 30 секунд.
	Timeout time.Duration
}

// OIDCClient — endpoints Keycloak для входа и выхода.
type OIDCClient struct {
	clientID     string
	authorizeURL string
	tokenURL     string
	logoutURL    string
	httpClient   *http.Client
}

// NewOIDCClient создаёт клиент. Authorize и logout открываются браузером,
// поэтому строятся от BrowserKeycloakURL; token endpoint вызывается сервером.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	browserURL := cfg.BrowserKeycloakURL
	if browserURL == "" {
		browserURL = cfg.KeycloakURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	browserBase := protocolBase(browserURL, cfg.Realm)
	return &OIDCClient{
		clientID:     cfg.ClientID,
		authorizeURL: browserBase + "/auth",
		tokenURL:     protocolBase(cfg.KeycloakURL, cfg.Realm) + "/token",
		logoutURL:    browserBase + "/logout",
		httpClient:   httpClient,
	}
}

// protocolBase — <keycloak>/realms/<realm>/protocol/openid-connect.
func protocolBase(keycloakURL, realm string) string {
	return strings.TrimRight(keycloakURL, "/") + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect"
}

// AuthorizeURL — адрес формы входа Keycloak для данного входа.
func (c *OIDCClient) AuthorizeURL(redirectURI string, flow *LoginFlow) string {
	params := url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"state":                 {flow.State},
		"scope":                 {"openid profile email"},
		"code_challenge":        {flow.Challenge()},
		"code_challenge_method": {"S256"},
	}
	return c.authorizeURL + "?" + params.Encode()
}

// LogoutURL — адрес выхода из Keycloak с возвратом на postLogoutRedirectURI.
func (c *OIDCClient) LogoutURL(postLogoutRedirectURI string) string {
	params := url.Values{
		"client_id":                {c.clientID},
		"post_logout_redirect_uri": {postLogoutRedirectURI},
	}
	return c.logoutURL + "?" + params.Encode()
}

// TokenResponse — ответ token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
}

// tokenError — тело ошибки token endpoint (RFC 6749, 5.2).
type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode обменивает authorization code на токены.
// redirectURI должен совпадать с переданным в AuthorizeURL.
func (c *OIDCClient) ExchangeCode(ctx context.Context, code, redirectURI string, flow *LoginFlow) (*TokenResponse, error) {
	return c.requestTokens(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {flow.Verifier},
	})
}

// RefreshTokens обновляет access token по refresh token.
func (c *OIDCClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestTokens(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	})
}

// requestTokens выполняет запрос к token endpoint.
// 400/401 означают отказ Keycloak (ErrTokenRejected), прочие сбои — ErrTokenEndpoint.
func (c *OIDCClient) requestTokens(ctx context.Context, form url.Values) (*TokenResponse, error) {
	grant := form.Get("grant_type")

	tokens, err := c.postForm(ctx, form)
	switch {
	case err == nil:
		oidcTokenRequests.WithLabelValues(grant, "ok").Inc()
	case errors.Is(err, ErrTokenRejected):
		oidcTokenRequests.WithLabelValues(grant, "rejected").Inc()
	default:
		oidcTokenRequests.WithLabelValues(grant, "error").Inc()
	}
	return tokens, err
}

func (c *OIDCClient) postForm(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации OIDC
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenEndpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа: %v", ErrTokenEndpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := ErrTokenEndpoint
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			kind = ErrTokenRejected
		}
		var te tokenError
		if json.Unmarshal(body, &te) == nil && te.Error != "" {
			return nil, fmt.Errorf("%w: %s (%s)", kind, te.Error, te.Description)
		}
		return nil, fmt.Errorf("%w: статус %d", kind, resp.StatusCode)
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: некорректный ответ: %v", ErrTokenEndpoint, err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: ответ без access_token", ErrTokenEndpoint)
	}
	return &tokens, nil
}
