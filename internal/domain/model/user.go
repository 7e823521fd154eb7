// Пакет model — доменные модели симулятора.
package model

import "time"

// UserProfile — локальный профиль пользователя (таблица profiles).
// Создаётся при заведении пользователя и при первом входе.
type UserProfile struct {
	// ID — Keycloak user ID (sub)
	ID string
	// Email — адрес электронной почты
	Email string
	// FullName — отображаемое имя
	FullName string
	// Role — роль в приложении (admin, agent)
	Role string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// AppUser — пользователь из Keycloak, объединённый с локальным профилем.
// Не хранится в БД.
type AppUser struct {
	// ID — Keycloak user ID
	ID string
	// Email — адрес электронной почты
	Email string
	// FullName — имя из профиля (или пустая строка)
	FullName string
	// Role — роль из профиля, при отсутствии профиля — agent
	Role string
	// Enabled — активен ли аккаунт в Keycloak
	Enabled bool
	// HasProfile — найден ли локальный профиль
	HasProfile bool
	// CreatedAt — дата создания в Keycloak
	CreatedAt time.Time
}

// NewUser — данные для создания пользователя.
type NewUser struct {
	Email    string
	Password string
	Role     string
	FullName string
}
