package keycloak

import "time"

// TokenResponse — ответ token endpoint на Client Credentials.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// KeycloakUser — краткое представление пользователя realm.
type KeycloakUser struct { //nolint:revive // имя повторяет Admin API
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
	// CreatedAt — миллисекунды Unix.
	CreatedAt int64 `json:"createdTimestamp"`
}

// CreatedAtTime — время регистрации пользователя.
func (u *KeycloakUser) CreatedAtTime() time.Time {
	return time.UnixMilli(u.CreatedAt)
}

// RealmRepresentation — поля realm, нужные проверке готовности.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"` //nolint:gosec // G117: пароль уходит только в Keycloak
	Temporary bool   `json:"temporary"`
}

// passwordCredential — постоянный пароль: агент не меняет его при первом входе.
func passwordCredential(password string) credentialRepresentation {
	return credentialRepresentation{Type: "password", Value: password}
}

type userCreateRequest struct {
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials"`
}

// errorRepresentation — тело ошибки Admin API.
type errorRepresentation struct {
	ErrorMessage string `json:"errorMessage"`
	Error        string `json:"error"`
}
