package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/serverkit/config"
	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/body"
	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/router"
	"github.com/shashiranjanraj/serverkit/pkg/schema"
	"github.com/shashiranjanraj/serverkit/pkg/session"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func build(t *testing.T, raw map[string]any) *Assembly {
	t.Helper()
	asm, err := Build(context.Background(), raw)
	require.NoError(t, err)
	t.Cleanup(asm.Close)
	return asm
}

// ─── Validation ──────────────────────────────────────────────────────────────

func TestViewsPairMustBeComplete(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		raw     map[string]any
		missing string
	}{
		{name: "neither", raw: map[string]any{}},
		{name: "both", raw: map[string]any{"viewEngine": "html", "viewsPath": dir}},
		{name: "engine only", raw: map[string]any{"viewEngine": "html"}, missing: "viewsPath"},
		{name: "path only", raw: map[string]any{"viewsPath": dir}, missing: "viewEngine"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.raw)
			if tc.missing == "" {
				assert.NoError(t, err)
				return
			}

			var verr *schema.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.missing, verr.Path)
			assert.Equal(t, schema.RuleRequiredWith, verr.Rule)
			assert.ErrorIs(t, err, schema.ErrInvalidSettings)
		})
	}
}

func TestUnknownViewEngine(t *testing.T) {
	_, err := Validate(map[string]any{"viewEngine": "haml", "viewsPath": t.TempDir()})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "viewEngine", verr.Path)
	assert.Contains(t, verr.Message, "html")
}

func TestJSONLimitDefault(t *testing.T) {
	out, err := Validate(map[string]any{"supportJSONRequest": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "100mb", out["supportJSONRequest"].(map[string]any)["limit"])

	out, err = Validate(map[string]any{"supportJSONRequest": map[string]any{"limit": "1kb"}})
	require.NoError(t, err)
	assert.Equal(t, "1kb", out["supportJSONRequest"].(map[string]any)["limit"])

	_, err = Validate(map[string]any{"supportJSONRequest": map[string]any{"limit": "lots"}})
	assert.ErrorIs(t, err, schema.ErrInvalidSettings)
}

func TestSupportGetDefaults(t *testing.T) {
	out, err := Validate(map[string]any{"supportGet": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"extended": true, "limit": body.DefaultLimit}, out["supportGet"])
}

func TestSessionSecretRequired(t *testing.T) {
	_, err := Validate(map[string]any{"session": map[string]any{}})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session.secret", verr.Path)
	assert.Equal(t, schema.RuleRequired, verr.Rule)

	out, err := Validate(map[string]any{"session": map[string]any{"secret": "s3cret"}})
	require.NoError(t, err)
	sess := out["session"].(map[string]any)
	assert.Equal(t, true, sess["cookie"].(map[string]any)["secure"])
	assert.Equal(t, false, sess["saveUninitialized"])
	assert.Equal(t, false, sess["resave"])

	out, err = Validate(map[string]any{"session": map[string]any{
		"secret": "s3cret",
		"cookie": map[string]any{"secure": false},
	}})
	require.NoError(t, err)
	assert.Equal(t, false, out["session"].(map[string]any)["cookie"].(map[string]any)["secure"])
}

func TestSessionStoreMustImplementStore(t *testing.T) {
	_, err := Validate(map[string]any{"session": map[string]any{"secret": "x", "store": "redis"}})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session.store", verr.Path)

	_, err = Validate(map[string]any{"session": map[string]any{"secret": "x", "store": session.NewMemoryStore()}})
	assert.NoError(t, err)
}

func TestPortDefaultAndRange(t *testing.T) {
	out, err := Validate(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, config.AppPort(), out["port"])
	assert.Equal(t, "", out["host"])
	assert.Equal(t, false, out["trustProxy"])

	out, err = Validate(map[string]any{"port": float64(3000)})
	require.NoError(t, err)
	assert.Equal(t, 3000, out["port"])

	_, err = Validate(map[string]any{"port": 70000})
	assert.ErrorIs(t, err, schema.ErrInvalidSettings)
}

func TestPluginsMustBeSupportedFuncs(t *testing.T) {
	_, err := Validate(map[string]any{"plugins": []any{func(int) {}}})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "plugins[0]", verr.Path)

	_, err = Validate(map[string]any{"plugins": []any{"healthz"}})
	assert.ErrorIs(t, err, schema.ErrInvalidSettings)
}

func TestValidationFailsBeforeSideEffects(t *testing.T) {
	var ran atomic.Bool
	_, err := Build(context.Background(), map[string]any{
		"viewEngine": "html",
		"plugins":    []any{func(*app.App) { ran.Store(true) }},
	})
	assert.ErrorIs(t, err, schema.ErrInvalidSettings)
	assert.False(t, ran.Load())
}

// ─── Assembly ────────────────────────────────────────────────────────────────

func TestDecode(t *testing.T) {
	store := session.NewMemoryStore()
	out, err := Validate(map[string]any{
		"staticPaths": []string{"a", "b"},
		"supportGet":  map[string]any{"extended": false},
		"session":     map[string]any{"secret": "x", "store": store},
		"hmr":         map[string]any{"webpackConfigFilePath": "bundler.yaml"},
		"port":        8081,
		"plugins":     []any{Named("noop", func(context.Context, *app.App) error { return nil })},
	})
	require.NoError(t, err)

	s, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.StaticPaths)
	assert.Nil(t, s.SupportJSONRequest)
	require.NotNil(t, s.SupportGet)
	assert.False(t, s.SupportGet.Extended)
	assert.Equal(t, "100mb", s.SupportGet.Limit)
	assert.Same(t, store, s.Session.Store)
	assert.True(t, s.Session.Cookie.Secure)
	assert.Equal(t, "bundler.yaml", s.HMR.WebpackConfigFilePath)
	assert.Equal(t, 8081, s.Port)
	require.Len(t, s.Plugins, 1)
	assert.Equal(t, "noop", s.Plugins[0].Name)
}

func TestAsPlugin(t *testing.T) {
	var calls atomic.Int32
	shapes := []any{
		func(context.Context, *app.App) error { calls.Add(1); return nil },
		app.Plugin(func(context.Context, *app.App) error { calls.Add(1); return nil }),
		func(*app.App) error { calls.Add(1); return nil },
		func(*app.App) { calls.Add(1) },
	}
	for _, fn := range shapes {
		p, err := AsPlugin(fn)
		require.NoError(t, err)
		require.NoError(t, p(context.Background(), app.New()))
	}
	assert.Equal(t, int32(4), calls.Load())

	_, err := AsPlugin(func() {})
	assert.ErrorIs(t, err, errPluginSignature)
}

func TestViews(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.html"), `<p>Hello {{ .Name }}</p>`)

	asm := build(t, map[string]any{
		"viewEngine": "html",
		"viewsPath":  dir,
		"plugins": []any{func(a *app.App) {
			a.Routes(func(r *router.Router) {
				r.Get("/", "home", func(w http.ResponseWriter, _ *http.Request) {
					_ = a.Render(w, "hello", view.Data{"Name": "there"})
				})
			})
		}},
	})

	assert.Equal(t, "html", asm.App.Value(app.SettingViewEngine))
	assert.Equal(t, dir, asm.App.Value(app.SettingViews))

	w := get(t, asm.App.Handler(), "/")
	assert.Equal(t, "<p>Hello there</p>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestStaticPathsKeepOrder(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "app.css"), "first")
	writeFile(t, filepath.Join(second, "app.css"), "second")
	writeFile(t, filepath.Join(second, "only.txt"), "only in second")

	asm := build(t, map[string]any{"staticPaths": []string{first, second}})
	h := asm.App.Handler()
	assert.Equal(t, "first", get(t, h, "/app.css").Body.String())
	assert.Equal(t, "only in second", get(t, h, "/only.txt").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing.txt").Code)

	asm = build(t, map[string]any{"staticPaths": []string{second, first}})
	assert.Equal(t, "second", get(t, asm.App.Handler(), "/app.css").Body.String())
}

func TestBodyParsers(t *testing.T) {
	echo := func(a *app.App) {
		a.Routes(func(r *router.Router) {
			r.Post("/json", "json", func(w http.ResponseWriter, r *http.Request) {
				v, ok := body.JSONFrom(r)
				if !ok {
					http.Error(w, "not parsed", http.StatusTeapot)
					return
				}
				_, _ = io.WriteString(w, v.(map[string]any)["name"].(string))
			})
			r.Post("/form", "form", func(w http.ResponseWriter, r *http.Request) {
				user := body.FormFrom(r)["user"].(map[string]any)
				_, _ = io.WriteString(w, user["name"].(string))
			})
		})
	}

	asm := build(t, map[string]any{
		"supportJSONRequest": map[string]any{"limit": "16b"},
		"supportGet":         map[string]any{},
		"plugins":            []any{echo},
	})
	h := asm.App.Handler()

	post := func(path, ct, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "ann", post("/json", "application/json", `{"name":"ann"}`).Body.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		post("/json", "application/json", `{"name":"a much longer name"}`).Code)
	assert.Equal(t, "bob",
		post("/form", "application/x-www-form-urlencoded", url.Values{"user[name]": {"bob"}}.Encode()).Body.String())
}

func TestTrustProxy(t *testing.T) {
	cookieOver := func(trust bool) []*http.Cookie {
		asm := build(t, map[string]any{
			"trustProxy": trust,
			"session":    map[string]any{"secret": "s3cret", "saveUninitialized": true},
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		w := httptest.NewRecorder()
		asm.App.Handler().ServeHTTP(w, req)

		assert.Equal(t, trust, asm.App.Enabled(app.SettingTrustProxy))
		return w.Result().Cookies()
	}

	// Secure cookies are only issued once the forwarded scheme is trusted.
	assert.Empty(t, cookieOver(false))
	cookies := cookieOver(true)
	require.Len(t, cookies, 1)
	assert.Equal(t, session.DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].Secure)
}

func TestSession(t *testing.T) {
	store := session.NewMemoryStore()
	asm := build(t, map[string]any{
		"session": map[string]any{
			"secret": "s3cret",
			"cookie": map[string]any{"secure": false},
			"store":  store,
		},
		"plugins": []any{func(a *app.App) {
			a.Routes(func(r *router.Router) {
				r.Get("/visit", "visit", func(w http.ResponseWriter, r *http.Request) {
					s := session.FromCtx(r)
					n, _ := s.GetInt("visits")
					s.Set("visits", n+1)
					_, _ = io.WriteString(w, "ok")
				})
			})
		}},
	})

	w := get(t, asm.App.Handler(), "/visit")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, 1, store.Len())
}

func TestHMR(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dist", "bundle.js"), "console.log(1)")
	cfgPath := filepath.Join(dir, "bundler.yaml")
	writeFile(t, cfgPath, "output:\n  path: dist\n  publicPath: /static/\n")

	asm := build(t, map[string]any{
		"hmr": map[string]any{"webpackConfigFilePath": cfgPath},
	})

	w := get(t, asm.App.Handler(), "/static/bundle.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	srv := httptest.NewServer(asm.App.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/__webpack_hmr", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"),
		"got %q", resp.Header.Get("Content-Type"))
}

func TestHMRConfigMissing(t *testing.T) {
	_, err := Build(context.Background(), map[string]any{
		"hmr": map[string]any{"webpackConfigFilePath": filepath.Join(t.TempDir(), "nope.yaml")},
	})
	var serr *StartupError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageHMR, serr.Stage)
}

// ─── Plugins ─────────────────────────────────────────────────────────────────

func TestPluginsAreAllAwaited(t *testing.T) {
	var fast, slow atomic.Bool
	started := make(chan struct{}, 2)

	asm := build(t, map[string]any{
		"plugins": []any{
			func(*app.App) error {
				started <- struct{}{}
				fast.Store(true)
				return nil
			},
			func(ctx context.Context, a *app.App) error {
				started <- struct{}{}
				time.Sleep(100 * time.Millisecond)
				a.Set("slow", true)
				slow.Store(true)
				return nil
			},
		},
	})

	assert.True(t, fast.Load())
	assert.True(t, slow.Load())
	assert.True(t, asm.App.Enabled("slow"))
	assert.Len(t, started, 2)
}

func TestPluginsRunConcurrently(t *testing.T) {
	// Each plugin waits for the other; a sequential join would deadlock.
	a, b := make(chan struct{}), make(chan struct{})
	rendezvous := func(mine, theirs chan struct{}) func(context.Context, *app.App) error {
		return func(ctx context.Context, _ *app.App) error {
			close(mine)
			select {
			case <-theirs:
				return nil
			case <-time.After(5 * time.Second):
				return errors.New("plugins ran sequentially")
			}
		}
	}

	_, err := Build(context.Background(), map[string]any{
		"plugins": []any{rendezvous(a, b), rendezvous(b, a)},
	})
	assert.NoError(t, err)
}

func TestPluginFailureAbortsStartup(t *testing.T) {
	boom := errors.New("boom")
	_, err := Create(context.Background(), map[string]any{
		"port": 0,
		"plugins": []any{
			func(*app.App) error { return nil },
			Named("broken", func(context.Context, *app.App) error { return boom }),
		},
	})

	var serr *StartupError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StagePlugin, serr.Stage)
	assert.Equal(t, "broken", serr.Plugin)
	assert.ErrorIs(t, err, boom)
}

func TestPluginPanicIsStartupError(t *testing.T) {
	_, err := Build(context.Background(), map[string]any{
		"plugins": []any{func(*app.App) { panic("kaboom") }},
	})
	var serr *StartupError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StagePlugin, serr.Stage)
	assert.Contains(t, serr.Error(), "kaboom")
}

func TestPluginFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	orig := logger.L
	logger.L = slog.New(slog.NewTextHandler(&buf, nil))
	t.Cleanup(func() { logger.L = orig })

	_, err := Build(context.Background(), map[string]any{
		"plugins": []any{Named("db", func(context.Context, *app.App) error {
			return errors.New("connection refused")
		})},
	})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "server: failed to start")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestAssembleRejectsBadLimit(t *testing.T) {
	for _, s := range []*Settings{
		{SupportJSONRequest: &JSONSettings{}},
		{SupportGet: &FormSettings{Extended: true, Limit: "lots"}},
	} {
		var asm *Assembly
		var err error
		require.NotPanics(t, func() { asm, err = Assemble(context.Background(), s) })
		assert.Nil(t, asm)

		var serr *StartupError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, StageBody, serr.Stage)
	}
}

// ─── Listen ──────────────────────────────────────────────────────────────────

func TestCreateListens(t *testing.T) {
	srv, err := Create(context.Background(), map[string]any{
		"host": "127.0.0.1",
		"port": 0,
		"plugins": []any{func(a *app.App) {
			a.Routes(func(r *router.Router) {
				r.Get("/ping", "ping", func(w http.ResponseWriter, _ *http.Request) {
					_, _ = io.WriteString(w, "pong")
				})
			})
		}},
	})
	require.NoError(t, err)
	assert.NotZero(t, srv.Port())

	resp, err := http.Get("http://" + srv.Addr().String() + "/ping")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(b))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	<-srv.Done()
	assert.NoError(t, srv.Err())
}

func TestPortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	srv, err := Create(context.Background(), map[string]any{"host": "127.0.0.1", "port": port})
	assert.Nil(t, srv)

	var serr *StartupError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageListen, serr.Stage)
	assert.NotErrorIs(t, err, schema.ErrInvalidSettings)
}
