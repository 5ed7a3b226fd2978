package view

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/flosch/pongo2/v6"
)

type pongo2Engine struct {
	dir string
	set *pongo2.TemplateSet
}

func newPongo2Engine(dir string) (Engine, error) {
	loader, err := pongo2.NewLocalFileSystemLoader(dir)
	if err != nil {
		return nil, fmt.Errorf("view/pongo2: loader: %w", err)
	}
	return &pongo2Engine{dir: dir, set: pongo2.NewSet("views", loader)}, nil
}

func (e *pongo2Engine) Render(w io.Writer, name string, data Data) error {
	path, err := resolve(e.dir, name)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(e.dir, path)
	if err != nil {
		return fmt.Errorf("view/pongo2: %w", err)
	}

	tpl, err := e.set.FromFile(filepath.ToSlash(rel))
	if err != nil {
		return fmt.Errorf("view/pongo2: compile %s: %w", name, err)
	}
	if err := tpl.ExecuteWriter(pongo2.Context(data), w); err != nil {
		return fmt.Errorf("view/pongo2: execute %s: %w", name, err)
	}
	return nil
}
