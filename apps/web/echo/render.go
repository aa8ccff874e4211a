package echoweb

import (
	"html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/user"
)

const layoutFile = "_layout.gohtml"

// Page is what every page template receives.
type Page struct {
	AppName string
	Title   string
	Path    string // route template of the current page
	User    *user.User
	Menu    []navigation.RouteDescriptor
	Flash   string
	Errors  map[string]string
	Form    interface{}
	Data    interface{}
}

// HasError reports whether `field` has a validation error.
func (p Page) HasError(field string) bool {
	_, ok := p.Errors[field]
	return ok
}

// templates implements echo.Renderer. Each page is parsed on top of its own copy of the layout.
type templates struct {
	pages map[string]*template.Template
}

var _ echo.Renderer = (*templates)(nil)

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
	"pct":   func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" },
	"inc":   func(i int) int { return i + 1 },
}

func newTemplates(fsys fs.FS, dir string) (*templates, error) {
	layout, err := template.New(layoutFile).Funcs(templateFuncs).ParseFS(fsys, path.Join(dir, layoutFile))
	if err != nil {
		return nil, errors.Wrap(err, "parsing layout")
	}

	fps, err := fs.Glob(fsys, path.Join(dir, "*.gohtml"))
	if err != nil {
		return nil, errors.Wrap(err, "listing page templates")
	}

	tmpls := &templates{pages: make(map[string]*template.Template, len(fps))}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := layout.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "cloning layout for %s", fname)
		}
		if tmpl, err = tmpl.ParseFS(fsys, fp); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", fname)
		}
		tmpls.pages[strings.TrimSuffix(fname, ".gohtml")] = tmpl
	}
	return tmpls, nil
}

func (t *templates) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return errors.Errorf("page template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, layoutFile, data)
}
