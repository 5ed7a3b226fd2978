// Package view renders templates from a views directory with a named
// engine.
//
// Built-in engines:
//
//	html                      html/template with the sprig function set
//	pongo2, django, jinja2    flosch/pongo2 (Django/Jinja2 syntax)
//
// Template names are resolved like res.render in Express: "users/show"
// becomes <views>/users/show.html. A name that already carries an extension
// is used as is.
package view

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownEngine is returned by New for an unregistered engine name.
var ErrUnknownEngine = errors.New("view: unknown engine")

// Data is the value passed to a template.
type Data map[string]any

// Engine renders named templates.
type Engine interface {
	Render(w io.Writer, name string, data Data) error
}

// Factory builds an Engine rooted at dir.
type Factory func(dir string) (Engine, error)

var (
	mu      sync.RWMutex
	engines = map[string]Factory{}
)

func init() {
	Register("html", newHTMLEngine)
	Register("pongo2", newPongo2Engine)
	Register("django", newPongo2Engine)
	Register("jinja2", newPongo2Engine)
}

// Register makes an engine available under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	engines[strings.ToLower(name)] = f
}

// Registered reports whether name is a known engine.
func Registered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := engines[strings.ToLower(name)]
	return ok
}

// Names lists the registered engines, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(engines))
	for n := range engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the engine registered under name for the views directory dir.
func New(name, dir string) (Engine, error) {
	mu.RLock()
	f, ok := engines[strings.ToLower(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("view: resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("view: views directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("view: %s is not a directory", abs)
	}

	return f(abs)
}

const defaultExt = ".html"

// resolve maps a template name to a file path inside dir, refusing names
// that escape it.
func resolve(dir, name string) (string, error) {
	if filepath.Ext(name) == "" {
		name += defaultExt
	}
	full := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("view: %q is outside the views directory", name)
	}
	return full, nil
}
