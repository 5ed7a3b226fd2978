package view

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// htmlEngine parses every template under dir on each render so edits show
// up without a restart. Files under dir/layouts and dir/partials are parsed
// alongside the requested template so it can {{template}} them.
type htmlEngine struct {
	dir string
}

func newHTMLEngine(dir string) (Engine, error) {
	return &htmlEngine{dir: dir}, nil
}

func (e *htmlEngine) Render(w io.Writer, name string, data Data) error {
	path, err := resolve(e.dir, name)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("view/html: read %s: %w", name, err)
	}

	tpl := template.New(filepath.Base(path)).Funcs(sprig.HtmlFuncMap())
	for _, sub := range []string{"layouts", "partials"} {
		matches, _ := filepath.Glob(filepath.Join(e.dir, sub, "*"+defaultExt))
		for _, m := range matches {
			b, err := os.ReadFile(m)
			if err != nil {
				return fmt.Errorf("view/html: read %s: %w", m, err)
			}
			define := strings.TrimSuffix(filepath.ToSlash(mustRel(e.dir, m)), defaultExt)
			if _, err := tpl.New(define).Parse(string(b)); err != nil {
				return fmt.Errorf("view/html: parse %s: %w", m, err)
			}
		}
	}

	if _, err := tpl.Parse(string(src)); err != nil {
		return fmt.Errorf("view/html: parse %s: %w", name, err)
	}
	if err := tpl.ExecuteTemplate(w, filepath.Base(path), data); err != nil {
		return fmt.Errorf("view/html: execute %s: %w", name, err)
	}
	return nil
}

func mustRel(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}
