// Package plugins holds the built-in plugin initializers settings files can
// refer to by name:
//
//	plugins: [standard, metrics, healthz]
package plugins

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/serverkit/config"
	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/metrics"
	"github.com/shashiranjanraj/serverkit/pkg/middleware"
	"github.com/shashiranjanraj/serverkit/pkg/response"
	"github.com/shashiranjanraj/serverkit/pkg/router"
)

var (
	mu       sync.RWMutex
	registry = map[string]app.Plugin{
		"standard":  Standard,
		"metrics":   Metrics,
		"cors":      CORS,
		"ratelimit": RateLimit,
		"healthz":   Healthz,
	}
)

// Register makes p available under name, replacing any previous plugin.
func Register(name string, p app.Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = p
}

// Lookup returns the plugin registered under name.
func Lookup(name string) (app.Plugin, error) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("plugins: unknown plugin %q (available: %s)", name, strings.Join(namesLocked(), ", "))
	}
	return p, nil
}

// Names lists the registered plugins in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Standard installs panic recovery, request ids and request logging.
func Standard(_ context.Context, a *app.App) error {
	a.Use(middleware.Recovery, middleware.RequestID, middleware.Logger)
	return nil
}

// Metrics instruments every request and serves /metrics.
func Metrics(_ context.Context, a *app.App) error {
	a.Use(metrics.Middleware())
	a.Routes(func(r *router.Router) {
		r.Get("/metrics", "metrics", metrics.Handler())
	})
	return nil
}

// CORS allows the origins listed in CORS_ORIGINS (comma separated, "*"
// when unset). CORS_CREDENTIALS=true lets the session cookie through.
func CORS(_ context.Context, a *app.App) error {
	opts := middleware.DefaultCORSOptions()
	if origins := config.Get("CORS_ORIGINS", ""); origins != "" {
		opts.AllowedOrigins = splitList(origins)
	}
	opts.AllowCredentials = config.Get("CORS_CREDENTIALS", "") == "true"
	a.Use(middleware.CORS(opts))
	return nil
}

// RateLimit allows RATE_LIMIT requests (default 120) per RATE_WINDOW
// (default 1m) from each client address.
func RateLimit(_ context.Context, a *app.App) error {
	max, err := strconv.Atoi(config.Get("RATE_LIMIT", "120"))
	if err != nil || max <= 0 {
		return fmt.Errorf("plugins: RATE_LIMIT must be a positive integer")
	}
	window, err := time.ParseDuration(config.Get("RATE_WINDOW", "1m"))
	if err != nil || window <= 0 {
		return fmt.Errorf("plugins: RATE_WINDOW must be a positive duration")
	}
	a.Use(middleware.RateLimit(max, window))
	return nil
}

// Healthz serves a liveness check at /healthz.
func Healthz(_ context.Context, a *app.App) error {
	a.Routes(func(r *router.Router) {
		r.Get("/healthz", "healthz", func(w http.ResponseWriter, _ *http.Request) {
			response.Success(w, map[string]string{"status": "ok"})
		})
	})
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
