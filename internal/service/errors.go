// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — admin, agent")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrPartialFailure — массовая операция выполнена не для всех записей.
	ErrPartialFailure = errors.New("операция выполнена частично")
)

// Message возвращает текст ошибки для клиента без префикса sentinel-ошибки:
// "ошибка валидации: DNI requerido" → "DNI requerido".
func Message(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrConflict, ErrPartialFailure} {
		if prefix := sentinel.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return msg[len(prefix):]
		}
	}
	return msg
}
