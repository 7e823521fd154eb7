// simulation.go — обработчики симулятора: таблица платежей, журнал действий,
// передача заявки в WhatsApp и скачивание флаера.
package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/dhsimulator/internal/api/errors"
	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/service"
)

const msgNoOffer = "No encontramos una oferta para este DNI"

type quoteResponse struct {
	Mode      calculator.Mode    `json:"mode"`
	Requested float64            `json:"requested"`
	Amount    float64            `json:"amount"`
	Clamped   bool               `json:"clamped"`
	Client    *publicClientJSON  `json:"client,omitempty"`
	Quotes    []calculator.Quote `json:"quotes"`
}

// GetQuote — GET /api/simulation/quote?mode=&amount=[&dni=]
// С DNI сумма ограничивается лимитом клиента.
func (h *APIHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := calculator.ParseMode(q.Get("mode"))
	if err != nil {
		apierrors.ValidationError(w, "Modo inválido")
		return
	}
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		apierrors.ValidationError(w, "Monto inválido")
		return
	}

	res, err := h.simulator.Quote(r.Context(), mode, amount, q.Get("dni"))
	if err != nil {
		h.writeServiceError(w, r, err, msgNoOffer)
		return
	}

	resp := quoteResponse{
		Mode:      res.Mode,
		Requested: res.Requested,
		Amount:    res.Amount,
		Clamped:   res.Clamped,
		Quotes:    displayQuotes(res.Mode, res.Quotes),
	}
	if res.Client != nil {
		resp.Client = &publicClientJSON{
			FullName:  res.Client.FullName,
			MinAmount: res.Client.MinAmount,
			MaxAmount: res.Client.MaxAmount,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type logRequest struct {
	UserID       string         `json:"userId"`
	Amount       *float64       `json:"amount"`
	Installments int            `json:"installments"`
	Metadata     map[string]any `json:"metadata"`
}

// LogSimulation — POST /api/simulation/log. Запись ставится в очередь без ожидания.
func (h *APIHandler) LogSimulation(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.actions.Log(service.LogRequest{
		UserID:       req.UserID,
		Amount:       req.Amount,
		Installments: req.Installments,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type handoffRequest struct {
	Mode         string  `json:"mode"`
	Amount       float64 `json:"amount"`
	Installments int     `json:"installments"`
	DNI          string  `json:"dni"`
}

type handoffResponse struct {
	OperationCode string           `json:"operationCode,omitempty"`
	WhatsAppURL   string           `json:"whatsappUrl"`
	Quote         calculator.Quote `json:"quote"`
}

// RequestHandoff — POST /api/simulation/request.
// Готовит ссылку WhatsApp с выбранным планом.
func (h *APIHandler) RequestHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := calculator.ParseMode(req.Mode)
	if err != nil {
		apierrors.ValidationError(w, "Modo inválido")
		return
	}

	res, err := h.simulator.Request(r.Context(), service.SimulationInput{
		Mode:         mode,
		Amount:       req.Amount,
		Installments: req.Installments,
		DNI:          req.DNI,
		UserID:       userID(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgNoOffer)
		return
	}

	writeJSON(w, http.StatusOK, handoffResponse{
		OperationCode: res.OperationCode,
		WhatsAppURL:   res.WhatsAppURL,
		Quote:         displayQuote(mode, res.Quote),
	})
}

// DownloadFlyer — GET /api/flyer?mode=&amount=&installments=[&name=&dni=]
// Возвращает JPEG как вложение.
func (h *APIHandler) DownloadFlyer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := calculator.ParseMode(q.Get("mode"))
	if err != nil {
		apierrors.ValidationError(w, "Modo inválido")
		return
	}
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		apierrors.ValidationError(w, "Monto inválido")
		return
	}
	installments := 0
	if s := q.Get("installments"); s != "" {
		if installments, err = strconv.Atoi(s); err != nil {
			apierrors.ValidationError(w, "Cantidad de cuotas inválida")
			return
		}
	}

	res, err := h.simulator.Flyer(r.Context(), service.SimulationInput{
		Mode:         mode,
		Amount:       amount,
		Installments: installments,
		DNI:          q.Get("dni"),
		UserID:       userID(r),
		ClientName:   q.Get("name"),
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgNoOffer)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// displayQuote — суммы рассрочки на обувь в JSON с точностью до сотых.
func displayQuote(mode calculator.Mode, q calculator.Quote) calculator.Quote {
	if mode == calculator.ModeFootwear {
		return q.Cents()
	}
	return q
}

func displayQuotes(mode calculator.Mode, quotes []calculator.Quote) []calculator.Quote {
	if quotes == nil {
		return nil
	}
	out := make([]calculator.Quote, len(quotes))
	for i, q := range quotes {
		out[i] = displayQuote(mode, q)
	}
	return out
}

// parseAmount разбирает сумму из query; пустая строка — 0.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("некорректная сумма %q", s)
	}
	return v, nil
}
