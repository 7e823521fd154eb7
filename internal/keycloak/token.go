package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenLeeway — токен сервисного аккаунта меняется за 30 секунд до истечения.
const tokenLeeway = 30 * time.Second

// serviceAccount получает токен Admin API по Client Credentials и держит его
// в памяти. Параллельные запросы при истёкшем токене ждут одного обращения
// к Keycloak.
type serviceAccount struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	token   string
	expires time.Time
}

// cached возвращает действующий токен или "".
func (sa *serviceAccount) cached() string {
	sa.mu.RLock()
	defer sa.mu.RUnlock()
	if sa.token != "" && sa.now().Add(tokenLeeway).Before(sa.expires) {
		return sa.token
	}
	return ""
}

// Token возвращает токен сервисного аккаунта.
func (sa *serviceAccount) Token(ctx context.Context) (string, error) {
	if token := sa.cached(); token != "" {
		return token, nil
	}
	v, err, _ := sa.group.Do("token", func() (any, error) {
		if token := sa.cached(); token != "" {
			return token, nil
		}
		resp, err := sa.request(ctx)
		if err != nil {
			return "", err
		}
		sa.mu.Lock()
		sa.token = resp.AccessToken
		sa.expires = sa.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		sa.mu.Unlock()
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate сбрасывает токен после 401 от Admin API (сессия отозвана в Keycloak).
func (sa *serviceAccount) invalidate() {
	sa.mu.Lock()
	sa.token = ""
	sa.mu.Unlock()
}

func (sa *serviceAccount) request(ctx context.Context) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {sa.clientID},
		"client_secret": {sa.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("запрос токена сервисного аккаунта: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sa.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("токен сервисного аккаунта: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("токен сервисного аккаунта: статус %d: %s", resp.StatusCode, readErrorMessage(resp.Body))
	}
	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("токен сервисного аккаунта: некорректный ответ: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("токен сервисного аккаунта: ответ без access_token")
	}
	return &token, nil
}
