package handler

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/flash"
)

// Renderer is the view collaborator: it writes the named page template.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// BasePage carries layout-level data available to every template.
type BasePage struct {
	Title    string
	Identity auth.Identity
	Flashes   []flash.Flash
	CSRFToken string
	Version   string
}

// Views holds one compiled template set per page: base.html + partials +
// that one page file, so {{define "content"}} blocks don't collide.
// It is read-only after NewViews returns.
type Views struct {
	pages map[string]*template.Template
}

var _ Renderer = (*Views)(nil)

// NewViews parses templates/base.html, templates/partials/*.html and every
// templates/pages/*.html file in fsys. A page is addressed by its file name
// without extension, e.g. "dashboard".
func NewViews(fsys fs.FS) (*Views, error) {
	partials, err := fs.Glob(fsys, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}
	pageFiles, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob pages: %w", err)
	}
	if len(pageFiles) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	v := &Views{pages: make(map[string]*template.Template, len(pageFiles))}
	for _, p := range pageFiles {
		files := make([]string, 0, 2+len(partials))
		files = append(files, "templates/base.html")
		files = append(files, partials...)
		files = append(files, p)

		t, err := template.New("").ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		v.pages[strings.TrimSuffix(path.Base(p), ".html")] = t
	}
	return v, nil
}

// Has reports whether a page template with the given name exists.
func (v *Views) Has(name string) bool {
	_, ok := v.pages[name]
	return ok
}

// Render executes the base layout for the named page.
func (v *Views) Render(w io.Writer, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	return nil
}
