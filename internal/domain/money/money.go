// Пакет money — форматирование и разбор денежных сумм в аргентинской локали.
package money

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.MustParse("es-AR"))

// Format возвращает сумму, округлённую до целых, с разделителями разрядов es-AR: 150.000.
func Format(v float64) string {
	return printer.Sprintf("%d", int64(math.Round(v)))
}

// FormatCurrency возвращает сумму со знаком доллара: $150.000.
func FormatCurrency(v float64) string {
	return "$" + Format(v)
}

// ParseDigits извлекает из строки только цифры и возвращает число.
// Строка без цифр даёт 0.
func ParseDigits(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return n
}
