package router_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/serverkit/pkg/router"
)

func tag(name string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Trace", name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestMiddlewareAfterRoutes(t *testing.T) {
	r := router.New()
	r.Get("/hello", "hello", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hi")
	})
	// chi alone would panic here.
	r.Use(tag("first"), tag("second"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
	assert.Equal(t, []string{"first", "second"}, rec.Header().Values("X-Trace"))
}

func TestGroupsAndNames(t *testing.T) {
	r := router.New()
	api := r.Group("/api", tag("api"))
	api.Group("v1").Get("/users/{id}", "users.show", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	path, ok := r.Path("users.show")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/users/{id}", path)

	url, err := r.URL("users.show", map[string]string{"id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/users/7", url)

	_, err = r.URL("users.show", nil)
	assert.Error(t, err)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/7", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "api", rec.Header().Get("X-Trace"))
}

func TestRoutesListing(t *testing.T) {
	r := router.New()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.Post("/b", "b", noop)
	r.Handle("/a", "", http.HandlerFunc(noop))

	assert.Equal(t, []router.RouteInfo{
		{Method: http.MethodPost, Path: "/b", Name: "b"},
		{Method: "*", Path: "/a"},
	}, r.Routes())
}

func TestNotFound(t *testing.T) {
	r := router.New()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
