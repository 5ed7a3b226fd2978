package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/middleware"
	"github.com/shashiranjanraj/serverkit/pkg/router"
)

func apply(t *testing.T, names ...string) http.Handler {
	t.Helper()
	a := app.New()
	for _, n := range names {
		p, err := Lookup(n)
		require.NoError(t, err)
		require.NoError(t, p(context.Background(), a))
	}
	return a.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"cors", "healthz", "metrics", "ratelimit", "standard"}, Names())

	_, err := Lookup("nope")
	assert.ErrorContains(t, err, `unknown plugin "nope"`)
}

func TestRegister(t *testing.T) {
	Register("custom", func(context.Context, *app.App) error { return nil })
	t.Cleanup(func() {
		mu.Lock()
		delete(registry, "custom")
		mu.Unlock()
	})

	_, err := Lookup("custom")
	assert.NoError(t, err)
	assert.Contains(t, Names(), "custom")
}

func TestHealthz(t *testing.T) {
	w := serve(apply(t, "healthz"), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":200,"data":{"status":"ok"}}`, w.Body.String())
}

func TestStandard(t *testing.T) {
	a := app.New()
	require.NoError(t, Standard(context.Background(), a))
	var rid string
	a.Routes(func(r *router.Router) {
		r.Get("/boom", "boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		r.Get("/rid", "rid", func(_ http.ResponseWriter, r *http.Request) {
			rid = middleware.RequestIDFromCtx(r.Context())
		})
	})
	h := a.Handler()

	assert.Equal(t, http.StatusInternalServerError, serve(h, httptest.NewRequest(http.MethodGet, "/boom", nil)).Code)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/rid", nil))
	assert.NotEmpty(t, rid)
	assert.Equal(t, rid, w.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	h := apply(t, "metrics", "healthz")
	serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "serverkit_http_requests_total")
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://b.example")

	w := serve(apply(t, "cors", "healthz"), req)
	assert.Equal(t, "https://b.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT", "2")
	h := apply(t, "ratelimit", "healthz")

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code
	}
	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)

	t.Setenv("RATE_LIMIT", "zero")
	assert.Error(t, RateLimit(context.Background(), app.New()))
}
