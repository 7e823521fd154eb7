// Пакет keycloak — клиент Keycloak Admin REST API для управления
// пользователями симулятора (агенты и администраторы) и проверки realm.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUserExists — username или email уже заняты (409).
	ErrUserExists = errors.New("пользователь уже существует")
	// ErrUserNotFound — нет пользователя с таким ID (404).
	ErrUserNotFound = errors.New("пользователь не найден")
)

// APIError — ответ Admin API со статусом не 2xx.
// 404 и 409 распознаются через errors.Is как ErrUserNotFound и ErrUserExists.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: Keycloak вернул %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrUserNotFound
	case http.StatusConflict:
		return ErrUserExists
	}
	return nil
}

// Client вызывает Admin API realm от имени сервисного аккаунта.
type Client struct {
	adminURL   string
	account    *serviceAccount
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. httpClient nil — клиент с таймаутом 30 секунд.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")
	escaped := url.PathEscape(realm)
	return &Client{
		adminURL: base + "/admin/realms/" + escaped,
		account: &serviceAccount{
			tokenURL:     base + "/realms/" + escaped + "/protocol/openid-connect/token",
			clientID:     clientID,
			clientSecret: clientSecret,
			httpClient:   httpClient,
			now:          time.Now,
		},
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keycloak")),
	}
}

// call выполняет запрос к Admin API. in сериализуется в JSON, ответ 2xx
// декодируется в out (если не nil). 401 сбрасывает токен и повторяется один раз.
func (c *Client) call(ctx context.Context, op, method, endpoint string, in, out any) (http.Header, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.account.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.adminURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.account.invalidate()
			c.logger.Debug("Токен сервисного аккаунта отклонён, повтор", slog.String("op", op))
			continue
		}
		return resp.Header, c.finish(op, resp, out)
	}
}

// finish закрывает ответ и переводит статус в ошибку.
func (c *Client) finish(op string, resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: некорректный ответ: %w", op, err)
	}
	return nil
}

// readErrorMessage — errorMessage или error из тела ответа Keycloak,
// иначе первые 1 КиБ тела.
func readErrorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 1024))
	var kcErr errorRepresentation
	if json.Unmarshal(body, &kcErr) == nil {
		if kcErr.ErrorMessage != "" {
			return kcErr.ErrorMessage
		}
		if kcErr.Error != "" {
			return kcErr.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// ListUsers — страница пользователей realm. search ищет по username,
// email и имени; пустой — все пользователи.
func (c *Client) ListUsers(ctx context.Context, search string, first, max int) ([]KeycloakUser, error) {
	q := url.Values{
		"first":               {strconv.Itoa(first)},
		"max":                 {strconv.Itoa(max)},
		"briefRepresentation": {"true"},
	}
	if search != "" {
		q.Set("search", search)
	}
	var users []KeycloakUser
	if _, err := c.call(ctx, "ListUsers", http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser заводит активного пользователя с подтверждённым email
// и постоянным паролем. Возвращает ID из заголовка Location.
func (c *Client) CreateUser(ctx context.Context, email, password string) (string, error) {
	body := userCreateRequest{
		Username:      email,
		Email:         email,
		Enabled:       true,
		EmailVerified: true,
		Credentials:   []credentialRepresentation{passwordCredential(password)},
	}
	header, err := c.call(ctx, "CreateUser", http.MethodPost, "/users", body, nil)
	if err != nil {
		return "", err
	}

	location := header.Get("Location")
	id := path.Base(location)
	if location == "" || id == "/" || id == "." {
		return "", fmt.Errorf("CreateUser: нет ID в Location %q", location)
	}
	c.logger.Info("Пользователь создан", slog.String("user_id", id))
	return id, nil
}

// DeleteUser удаляет пользователя.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.call(ctx, "DeleteUser", http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
	return err
}

// ResetPassword задаёт новый постоянный пароль.
func (c *Client) ResetPassword(ctx context.Context, id, password string) error {
	_, err := c.call(ctx, "ResetPassword", http.MethodPut,
		"/users/"+url.PathEscape(id)+"/reset-password", passwordCredential(password), nil)
	return err
}

// RealmInfo — имя и состояние realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	var realm RealmRepresentation
	if _, err := c.call(ctx, "RealmInfo", http.MethodGet, "", nil, &realm); err != nil {
		return nil, err
	}
	return &realm, nil
}

// CheckReady — проверка для /health/ready: отключённый realm даёт degraded.
func (c *Client) CheckReady(ctx context.Context) (string, string) {
	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", err.Error()
	}
	if !realm.Enabled {
		return "degraded", "realm " + realm.Realm + " отключён"
	}
	return "ok", "realm " + realm.Realm
}
