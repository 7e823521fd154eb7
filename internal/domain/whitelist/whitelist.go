// Пакет whitelist — правила белого списка клиентов по DNI.
package whitelist

import (
	"errors"
	"strings"
)

// DefaultMinAmount — минимальная сумма при быстром добавлении клиента.
const DefaultMinAmount = 50000

// ErrInvalidLimits — некорректная пара минимальной и максимальной сумм.
var ErrInvalidLimits = errors.New("некорректные лимиты клиента")

// NormalizeDNI оставляет только цифры ASCII: пробелы, точки, дефисы и цифры
// других алфавитов отбрасываются.
// Одинаково применяется при сохранении и при проверке.
func NormalizeDNI(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.TrimSpace(s))
}

// Clamp ограничивает сумму диапазоном [0, max].
func Clamp(amount, max float64) float64 {
	if amount < 0 {
		return 0
	}
	if amount > max {
		return max
	}
	return amount
}

// ValidateLimits проверяет 0 <= min <= max и max > 0.
func ValidateLimits(min, max float64) error {
	switch {
	case max <= 0:
		return errors.Join(ErrInvalidLimits, errors.New("maxAmount должен быть больше 0"))
	case min < 0:
		return errors.Join(ErrInvalidLimits, errors.New("minAmount не может быть отрицательным"))
	case min > max:
		return errors.Join(ErrInvalidLimits, errors.New("minAmount не может превышать maxAmount"))
	}
	return nil
}
