// Пакет flyer — серверный рендеринг флаера симуляции в JPEG.
//
// Карточка 540x675 рисуется с коэффициентом 2 (итоговый холст 1080x1350):
// тёмный градиентный фон, золотые акценты, сумма в формате es-AR и
// таблица платежей с выделенным выбранным планом.
package flyer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/money"
)

// Размер холста в пикселях.
const (
	Width  = 1080
	Height = 1350
)

// jpegQuality — качество JPEG (0.95 в терминах браузерного экспорта).
const jpegQuality = 95

// ErrEmptyCard — нечего рисовать: сумма не задана или нет платежей.
var ErrEmptyCard = errors.New("флаер без суммы или платежей")

// flyerRenders — количество рендеров по режиму и результату.
var flyerRenders = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dh_flyer_renders_total",
	Help: "Количество сгенерированных флаеров",
}, []string{"mode", "outcome"}) // outcome: ok, error

// Палитра карточки.
var (
	colorBgTop    = color.RGBA{0x02, 0x06, 0x17, 0xff}
	colorBgMiddle = color.RGBA{0x0f, 0x17, 0x2a, 0xff}
	colorBgBottom = color.RGBA{0x00, 0x00, 0x00, 0xff}
	colorGold     = color.RGBA{0xd4, 0xaf, 0x37, 0xff}
	colorGoldDim  = color.RGBA{0x40, 0x35, 0x11, 0xff}
	colorWhite    = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorGray     = color.RGBA{0x9c, 0xa3, 0xaf, 0xff}
	colorGrayDark = color.RGBA{0x6b, 0x72, 0x80, 0xff}
	colorRow      = color.RGBA{0x16, 0x1c, 0x2c, 0xff}
	colorRowSel   = color.RGBA{0x2a, 0x26, 0x18, 0xff}
)

// Card — данные флаера.
type Card struct {
	Mode calculator.Mode
	// Amount — запрошенный капитал (займ) или стоимость товара (обувь)
	Amount float64
	// Quotes — строки таблицы платежей по возрастанию количества
	Quotes []calculator.Quote
	// Selected — выделенное количество платежей (0 — без выделения)
	Selected int
	// ClientName — имя клиента, печатается под суммой, если задано
	ClientName string
	// OperationCode — код операции (только обувь)
	OperationCode string
}

// Filename возвращает имя файла для Content-Disposition:
// PRESTAMO_DH_<сумма>.jpg или DH_Calzado_<сумма>.jpg.
func (c Card) Filename() string {
	amount := strconv.FormatInt(int64(c.Amount+0.5), 10)
	if c.Mode == calculator.ModeFootwear {
		return "DH_Calzado_" + amount + ".jpg"
	}
	return "PRESTAMO_DH_" + amount + ".jpg"
}

// faces — набор шрифтов для одного рендера.
type faces struct {
	brand  font.Face
	amount font.Face
	row    font.Face
	circle font.Face
	label  font.Face
	small  font.Face
}

// Renderer рисует флаеры. Шрифты разбираются один раз; font.Face не
// потокобезопасен, поэтому каждый рендер создаёт свой набор.
type Renderer struct {
	regular *opentype.Font
	bold    *opentype.Font
}

// NewRenderer разбирает встроенные шрифты Go.
func NewRenderer() (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора шрифта regular: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора шрифта bold: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

type faceSpec struct {
	f    *opentype.Font
	size float64
	dst  *font.Face
}

func (r *Renderer) newFaces() (*faces, error) {
	fs := &faces{}
	specs := []faceSpec{
		{r.bold, 120, &fs.brand},
		{r.bold, 76, &fs.amount},
		{r.bold, 52, &fs.row},
		{r.bold, 40, &fs.circle},
		{r.bold, 26, &fs.label},
		{r.regular, 24, &fs.small},
	}

	for _, s := range specs {
		face, err := opentype.NewFace(s.f, &opentype.FaceOptions{
			Size:    s.size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания шрифта: %w", err)
		}
		*s.dst = face
	}
	return fs, nil
}

// Render рисует карточку и кодирует её в JPEG.
func (r *Renderer) Render(w io.Writer, card Card) error {
	img, err := r.draw(card)
	if err != nil {
		flyerRenders.WithLabelValues(string(card.Mode), "error").Inc()
		return err
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		flyerRenders.WithLabelValues(string(card.Mode), "error").Inc()
		return fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	flyerRenders.WithLabelValues(string(card.Mode), "ok").Inc()
	return nil
}

// RenderBytes — Render в буфер. Используется обработчиком, чтобы не отдавать
// частично записанный ответ при ошибке.
func (r *Renderer) RenderBytes(card Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, card); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) draw(card Card) (*image.RGBA, error) {
	if card.Amount <= 0 || len(card.Quotes) == 0 {
		return nil, ErrEmptyCard
	}

	fs, err := r.newFaces()
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	drawBackground(img)
	drawBorder(img, colorGoldDim, 2)

	// Шапка: бренд и разделитель
	drawCentered(img, fs.brand, colorGold, "DH", 230)
	subtitle := "PRÉSTAMOS"
	if card.Mode == calculator.ModeFootwear {
		subtitle = "CALZADO"
	}
	drawCentered(img, fs.label, colorGray, spaced(subtitle), 290)
	fillRect(img, image.Rect(Width/2-120, 320, Width/2+120, 323), colorGold)

	// Сумма
	label := "CAPITAL SOLICITADO"
	if card.Mode == calculator.ModeFootwear {
		label = "COSTO PRODUCTO"
	}
	drawCentered(img, fs.label, colorGray, spaced(label), 400)
	drawCentered(img, fs.amount, colorWhite, money.FormatCurrency(card.Amount), 490)

	y := 540
	if name := strings.TrimSpace(card.ClientName); name != "" {
		drawCentered(img, fs.small, colorGray, name, y+10)
		y += 30
	}

	// Таблица платежей
	rows := card.Quotes
	rowHeight, gap := 104, 20
	if len(rows) > 6 {
		rowHeight, gap = 80, 12
	}
	y += 30
	for _, q := range rows {
		if y+rowHeight > Height-200 {
			break
		}
		drawRow(img, fs, q, card.Selected == q.Installments, y, rowHeight)
		y += rowHeight + gap
	}

	// Подвал
	fillRect(img, image.Rect(80, Height-170, Width-80, Height-168), colorRow)
	if card.OperationCode != "" {
		drawCentered(img, fs.label, colorGold, "Código: #"+card.OperationCode, Height-125)
	}
	drawCentered(img, fs.small, colorGrayDark, "PROPUESTA VÁLIDA POR 24HS (SUJETO A DISPONIBILIDAD)", Height-85)
	drawCentered(img, fs.label, colorWhite, "DH OPORTUNIDADES", Height-45)

	return img, nil
}

func drawRow(img *image.RGBA, fs *faces, q calculator.Quote, selected bool, y, h int) {
	bg := colorRow
	if selected {
		bg = colorRowSel
	}
	rect := image.Rect(90, y, Width-90, y+h)
	fillRect(img, rect, bg)
	if selected {
		drawRectOutline(img, rect, colorGold, 3)
	}

	// Кружок с количеством платежей
	radius := h/2 - 14
	cx, cy := rect.Min.X+30+radius, y+h/2
	fillCircle(img, cx, cy, radius, colorGold)
	num := strconv.Itoa(q.Installments)
	numW := font.MeasureString(fs.circle, num).Round()
	drawText(img, fs.circle, colorBgTop, num, cx-numW/2, cy+14)

	drawText(img, fs.label, colorGray, "CUOTAS DE", cx+radius+24, cy+10)

	value := money.FormatCurrency(q.PerInstallment)
	valueW := font.MeasureString(fs.row, value).Round()
	drawText(img, fs.row, colorGold, value, rect.Max.X-30-valueW, cy+18)
}

// drawBackground заливает вертикальный градиент через три опорных цвета.
func drawBackground(img *image.RGBA) {
	b := img.Bounds()
	half := b.Dy() / 2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var c color.RGBA
		if y < half {
			c = lerp(colorBgTop, colorBgMiddle, float64(y)/float64(half))
		} else {
			c = lerp(colorBgMiddle, colorBgBottom, float64(y-half)/float64(b.Dy()-half))
		}
		fillRect(img, image.Rect(b.Min.X, y, b.Max.X, y+1), c)
	}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawBorder(img *image.RGBA, c color.Color, width int) {
	drawRectOutline(img, img.Bounds(), c, width)
}

func drawRectOutline(img *image.RGBA, r image.Rectangle, c color.Color, width int) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func drawText(img *image.RGBA, face font.Face, c color.Color, s string, x, baseline int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

func drawCentered(img *image.RGBA, face font.Face, c color.Color, s string, baseline int) {
	w := font.MeasureString(face, s).Round()
	drawText(img, face, c, s, (Width-w)/2, baseline)
}

// spaced разрежает заглавные подписи: "CALZADO" → "C A L Z A D O".
func spaced(s string) string {
	return strings.Join(strings.Split(s, ""), " ")
}
