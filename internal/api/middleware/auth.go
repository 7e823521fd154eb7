// auth.go — проверка access token Keycloak и контекст аутентифицированного
// пользователя (Principal).
// Подпись RS256 проверяется через JWKS Keycloak, роль вычисляется
// RoleResolver (профиль в БД → группы IdP → роли realm → agent).
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/dhsimulator/internal/api/errors"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
)

// ErrInvalidToken — токен отсутствует, просрочен или не прошёл проверку подписи.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// contextKeyPrincipal — аутентифицированный пользователь в контексте запроса.
const contextKeyPrincipal contextKey = "dh_principal"

// Principal — аутентифицированный пользователь текущего запроса.
type Principal struct {
	// UserID — sub из JWT (Keycloak user ID).
	UserID string
	// Email — email из JWT.
	Email string
	// Username — preferred_username из JWT.
	Username string
	// Role — итоговая роль (admin, agent).
	Role string
	// Groups — группы пользователя из JWT.
	Groups []string
	// RealmRoles — роли из realm_access.roles.
	RealmRoles []string
}

// IsAdmin возвращает true для роли admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == rbac.RoleAdmin
}

// DisplayName возвращает email, а при его отсутствии — имя пользователя.
func (p *Principal) DisplayName() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Username
}

// RoleResolver вычисляет роль пользователя по данным токена.
// Реализуется service.UserService.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string, groups, realmRoles []string) string
}

// keycloakClaims — raw claims из Keycloak JWT для парсинга.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
}

// realmAccess — вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — проверка JWT через JWKS Keycloak.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	resolver  RoleResolver
	issuer    string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт проверку JWT с JWKS из Keycloak.
// jwksURL — URL к JWKS endpoint Keycloak.
// issuer — ожидаемый issuer JWT (обычно https://keycloak/realms/dh).
// resolver — вычисление роли (может быть nil: тогда роль берётся из токена).
// jwksClientTimeout — таймаут HTTP-клиента JWKS.
// jwksRefreshInterval — интервал обновления JWKS-ключей (DH_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (DH_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	issuer string,
	resolver RoleResolver,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, resolver, jwtLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт проверку JWT с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	resolver RoleResolver,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		resolver:  resolver,
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Verify проверяет подпись (RS256), срок действия и issuer токена
// и возвращает Principal с вычисленной ролью.
func (j *JWTAuth) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	raw := &keycloakClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		j.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := raw.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}

	p := &Principal{
		UserID:   subject,
		Email:    raw.Email,
		Username: raw.PreferredUsername,
		Groups:   raw.Groups,
	}
	if raw.RealmAccess != nil {
		p.RealmRoles = raw.RealmAccess.Roles
	}

	if j.resolver != nil {
		p.Role = j.resolver.ResolveRole(ctx, p.UserID, p.Groups, p.RealmRoles)
	} else {
		p.Role = rbac.MapRealmRoles(p.RealmRoles)
	}
	if !rbac.IsValidRole(p.Role) {
		p.Role = rbac.FallbackRole
	}

	return p, nil
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
// Возвращает пустую строку, если заголовок отсутствует или имеет другой формат.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// --- RBAC middleware ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Principal должен быть помещён в контекст ранее (Gateway).
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierrors.Unauthorized(w, "Unauthorized")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierrors.Forbidden(w, "Forbidden")
		})
	}
}

// --- Context helpers ---

// WithPrincipal возвращает контекст с аутентифицированным пользователем.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext извлекает Principal из контекста запроса.
// Возвращает nil для неаутентифицированного запроса.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKeyPrincipal).(*Principal)
	return p
}
