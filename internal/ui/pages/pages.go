// Пакет pages — HTML-страницы интерфейса симулятора.
// Шаблоны встраиваются в бинарник, каждая страница собирается
// из общего layout.html и собственного шаблона.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/money"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Имена страниц.
const (
	Login     = "login"
	Public    = "publico"
	Simulator = "simulador"
	Dashboard = "admin"
	Clients   = "clients"
	Config    = "config"
	Users     = "users"
)

var allPages = []string{Login, Public, Simulator, Dashboard, Clients, Config, Users}

// User — пользователь, отображаемый в шапке страницы.
type User struct {
	ID      string
	Email   string
	Role    string
	IsAdmin bool
}

// Data — данные для рендеринга страницы.
type Data struct {
	Title   string
	User    *User
	Error   string
	Version string
	// Stats — только для панели администратора.
	Stats *model.Stats
}

// Renderer — набор разобранных шаблонов страниц.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"money":  money.FormatCurrency,
	"number": func(n int) string { return money.Format(float64(n)) },
}

// New разбирает встроенные шаблоны.
func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(allPages))}
	for _, name := range allPages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("разбор шаблона %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render рендерит страницу page в w.
// Страница рендерится в буфер, чтобы ошибка шаблона не оставила
// наполовину записанный ответ.
func (r *Renderer) Render(w io.Writer, page string, data Data) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("неизвестная страница %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("рендеринг страницы %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
