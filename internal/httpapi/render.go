package httpapi

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"rfqtrack.org/internal/obs"
)

// Templates renders the server-side HTML pages. Each page file parses on its
// own against the shared layout, so pages cannot clobber each other's blocks.
type Templates struct {
	pages map[string]*template.Template
}

var tmplFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
	"datePtr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

// LoadTemplates parses every page under dir against the base layout.
func LoadTemplates(dir string) (*Templates, error) {
	layout := filepath.Join(dir, "layout.html")
	pageFiles, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, err
	}

	t := &Templates{pages: make(map[string]*template.Template)}
	for _, page := range pageFiles {
		name := filepath.Base(page)
		if name == "layout.html" {
			continue
		}
		tmpl, err := template.New("layout.html").Funcs(tmplFuncs).ParseFiles(layout, page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}
	if len(t.pages) == 0 {
		return nil, fmt.Errorf("no page templates found in %s", dir)
	}
	return t, nil
}

// Render writes one page. Failures after headers are logged, not resent.
func (t *Templates) Render(w http.ResponseWriter, code int, page string, data any) {
	tmpl, ok := t.pages[page]
	if !ok {
		obs.LogError("render", fmt.Errorf("unknown page %q", page), nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := tmpl.Execute(w, data); err != nil {
		obs.LogError("render", err, map[string]any{"page": page})
	}
}
