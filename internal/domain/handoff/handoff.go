// Пакет handoff — передача заявки в WhatsApp: код операции, текст сообщения
// и deep link вида https://wa.me/<phone>?text=...
package handoff

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/money"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// OperationCode формирует код операции OP-<ts>-<rnd>-<hash>:
// ts — последние 6 цифр unix-времени в миллисекундах,
// rnd — 3 случайных символа A-Z0-9,
// hash — последние 3 hex-символа от amount*installments.
func OperationCode(amount float64, installments int, now time.Time) string {
	return operationCode(amount, installments, now, rand.IntN)
}

func operationCode(amount float64, installments int, now time.Time, intn func(int) int) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}

	var rnd [3]byte
	for i := range rnd {
		rnd[i] = codeAlphabet[intn(len(codeAlphabet))]
	}

	hash := strings.ToUpper(strconv.FormatInt(int64(amount*float64(installments)), 16))
	if len(hash) > 3 {
		hash = hash[len(hash)-3:]
	}

	return fmt.Sprintf("OP-%s-%s-%s", ts, rnd[:], hash)
}

// LoanMessage — текст заявки на займ от клиента публичного симулятора.
// Пустое имя заменяется на «Cliente».
func LoanMessage(fullName, dni string, amount float64, q calculator.Quote) string {
	if strings.TrimSpace(fullName) == "" {
		fullName = "Cliente"
	}
	return fmt.Sprintf(
		"Hola, soy %s (DNI: %s).\nQuiero solicitar un préstamo de *$%s*.\nPlan seleccionado: *%d cuotas de $%s*.",
		fullName, dni, money.Format(amount), q.Installments, money.Format(q.PerInstallment),
	)
}

// FootwearMessage — текст консультации по рассрочке на обувь с кодом операции.
func FootwearMessage(cost float64, q calculator.Quote, code string) string {
	return fmt.Sprintf(
		"Hola, consulta por Zapatillas.\n\nCosto Producto: $%s\nPrecio Final: $%s\nPlan: %d cuotas de $%s\n\n🔐 Código: #%s",
		money.Format(cost), money.Format(q.Total), q.Installments, money.Format(q.PerInstallment), code,
	)
}

// ContactMessage — сообщение для клиента, которого нет в белом списке.
func ContactMessage(dni string) string {
	return fmt.Sprintf("Hola, consulté mi disponible con el DNI %s y no figura habilitado. Quisiera hablar con un asesor.", dni)
}

// Link формирует deep link WhatsApp. Текст кодируется как в encodeURIComponent:
// пробел — %20, а не «+».
func Link(phone, text string) string {
	return "https://wa.me/" + phone + "?text=" + encodeComponent(text)
}

func encodeComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	// encodeURIComponent не кодирует !'()*
	for _, r := range []string{"!", "'", "(", ")", "*"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(r), r)
	}
	return escaped
}
