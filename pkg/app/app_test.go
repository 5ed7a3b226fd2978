package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/serverkit/pkg/router"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

func TestSettings(t *testing.T) {
	a := New()
	assert.Nil(t, a.Value("missing"))
	assert.False(t, a.Enabled(SettingTrustProxy))

	a.Set(SettingViews, "./views").Enable(SettingTrustProxy)
	assert.Equal(t, "./views", a.Value(SettingViews))
	assert.True(t, a.Enabled(SettingTrustProxy))

	a.Disable(SettingTrustProxy)
	assert.False(t, a.Enabled(SettingTrustProxy))

	a.Set("count", 1)
	assert.False(t, a.Enabled("count"), "only the boolean true counts as enabled")
}

func TestMiddlewareAfterRoutes(t *testing.T) {
	a := New()
	a.Routes(func(r *router.Router) {
		r.Get("/", "home", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "home")
		})
	})
	a.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Late", "yes")
			next.ServeHTTP(w, r)
		})
	})

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "home", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Late"))
}

func TestConcurrentPlugins(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			a.Set(name, true)
			a.Use(func(next http.Handler) http.Handler { return next })
			a.Routes(func(r *router.Router) {
				r.Get("/"+name, name, func(http.ResponseWriter, *http.Request) {})
			})
			_ = a.Enabled(name)
		}()
	}
	wg.Wait()
	assert.Len(t, a.Router().Routes(), 20)
}

func TestRender(t *testing.T) {
	a := New()
	w := httptest.NewRecorder()
	assert.ErrorIs(t, a.Render(w, "x", nil), ErrNoViewEngine)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hi.html"), []byte(`hi {{ .Name }}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.html"), []byte(`partial {{ .Missing.Field }}`), 0o644))
	e, err := view.New("html", dir)
	require.NoError(t, err)
	a.SetViews(e)

	require.NoError(t, a.Render(w, "hi", view.Data{"Name": "ann"}))
	assert.Equal(t, "hi ann", w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	assert.Error(t, a.Render(w, "bad", view.Data{"Missing": 1}))
	assert.Empty(t, w.Body.String(), "nothing is written when rendering fails")
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	a := New().SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	a.Logger().Info("plugin ready")
	assert.Contains(t, buf.String(), "plugin ready")
}

func TestPluginType(t *testing.T) {
	boom := errors.New("boom")
	var p Plugin = func(_ context.Context, a *App) error {
		a.Set("ran", true)
		return boom
	}
	a := New()
	assert.ErrorIs(t, p(context.Background(), a), boom)
	assert.True(t, a.Enabled("ran"))
}

func TestNotFoundEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	New().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":404,"message":"Not found"}`, w.Body.String())
}
