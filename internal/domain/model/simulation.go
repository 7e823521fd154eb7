package model

import "time"

// Действия, фиксируемые в журнале симуляций.
const (
	ActionSimulate = "simulate"
	ActionDownload = "download"
	ActionWhatsApp = "whatsapp"
)

// Идентификаторы пользователей для анонимных записей.
const (
	UserPublic = "public"
	UserAdmin  = "admin"
)

// SimulationLogEntry — запись журнала симуляций (таблица simulations_log).
// Только добавление, удаление — целиком при сбросе.
type SimulationLogEntry struct {
	// ID — UUID записи
	ID string
	// UserID — Keycloak user ID, "public" или "admin"
	UserID string
	// Amount — сумма симуляции
	Amount float64
	// InstallmentsSelected — выбранное количество платежей (0 — не выбрано)
	InstallmentsSelected int
	// Metadata — произвольные данные: action, type, markup, operationCode
	Metadata map[string]any
	// CreatedAt — время записи
	CreatedAt time.Time
}

// TopUser — пользователь с количеством симуляций.
type TopUser struct {
	ID    string
	Email string
	Count int
}

// Stats — агрегаты для панели администратора.
type Stats struct {
	Users            int
	Simulations      int
	TodaySimulations int
	TopUsers         []TopUser
}
