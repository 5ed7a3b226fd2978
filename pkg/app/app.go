// Package app holds the mutable application instance the server assembler
// configures and hands to plugins.
//
//	func healthz(ctx context.Context, a *app.App) error {
//	    a.Routes(func(r *router.Router) {
//	        r.Get("/healthz", "healthz", func(w http.ResponseWriter, _ *http.Request) {
//	            w.WriteHeader(http.StatusNoContent)
//	        })
//	    })
//	    return nil
//	}
//
// Plugins run concurrently, so every method on App is safe for concurrent
// use.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/response"
	"github.com/shashiranjanraj/serverkit/pkg/router"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

// Well-known setting keys.
const (
	SettingViewEngine = "view engine"
	SettingViews      = "views"
	SettingTrustProxy = "trust proxy"
)

// ErrNoViewEngine is returned by Render when no view engine is configured.
var ErrNoViewEngine = errors.New("app: no view engine configured")

// Plugin initializes part of the application. A non-nil error aborts
// startup.
type Plugin func(ctx context.Context, a *App) error

// App is the application instance.
type App struct {
	mu       sync.RWMutex
	router   *router.Router
	settings map[string]any
	views    view.Engine
	log      *slog.Logger
}

// New returns an empty application. Requests nothing answers get the JSON
// 404 envelope.
func New() *App {
	r := router.New()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { response.NotFound(w) })
	return &App{
		router:   r,
		settings: make(map[string]any),
		log:      logger.L,
	}
}

// Use appends middleware to the request pipeline.
func (a *App) Use(middlewares ...router.Middleware) *App {
	a.router.Use(middlewares...)
	return a
}

// Routes calls fn with the application router. May be called many times.
func (a *App) Routes(fn func(*router.Router)) *App {
	fn(a.router)
	return a
}

func (a *App) Router() *router.Router { return a.router }

// Set stores an application setting.
func (a *App) Set(key string, value any) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings[key] = value
	return a
}

// Value returns the setting stored under key, or nil.
func (a *App) Value(key string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings[key]
}

func (a *App) Enable(key string) *App  { return a.Set(key, true) }
func (a *App) Disable(key string) *App { return a.Set(key, false) }

// Enabled reports whether the setting under key is the boolean true.
func (a *App) Enabled(key string) bool {
	b, _ := a.Value(key).(bool)
	return b
}

// SetViews installs the view engine used by Render.
func (a *App) SetViews(e view.Engine) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views = e
	return a
}

// Render executes the named view and writes it as text/html. Nothing is
// written when rendering fails.
func (a *App) Render(w http.ResponseWriter, name string, data view.Data) error {
	a.mu.RLock()
	e := a.views
	a.mu.RUnlock()
	if e == nil {
		return ErrNoViewEngine
	}

	var buf bytes.Buffer
	if err := e.Render(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("app: write view %s: %w", name, err)
	}
	return nil
}

// SetLogger replaces the application logger.
func (a *App) SetLogger(l *slog.Logger) *App {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = l
	return a
}

func (a *App) Logger() *slog.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.log
}

// Handler compiles the middleware and routes registered so far.
func (a *App) Handler() http.Handler {
	return a.router.Handler()
}
