// Package router records middleware and routes and compiles them into a chi
// mux on demand.
//
// chi refuses middleware registered after the first route, and skips its
// middleware entirely while no route exists. Plugins run concurrently and may
// register either in any order, so registrations are kept in two ordered
// lists. Handler mounts the routes on a chi mux and wraps the whole mux in
// the middleware, so every request passes through every middleware in
// registration order before routing.
package router

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

type Middleware func(http.Handler) http.Handler

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

type route struct {
	RouteInfo
	handler http.Handler
}

type Router struct {
	mu          sync.RWMutex
	middlewares []Middleware
	routes      []route
	names       map[string]string
	notFound    http.Handler
}

type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

func New() *Router {
	return &Router{names: make(map[string]string)}
}

// Handler compiles the current registrations into a chi mux.
func (r *Router) Handler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mux := chi.NewRouter()
	for _, rt := range r.routes {
		if rt.Method == "" {
			mux.Handle(rt.Path, rt.handler)
			continue
		}
		mux.Method(rt.Method, rt.Path, rt.handler)
	}
	if r.notFound != nil {
		mux.NotFound(r.notFound.ServeHTTP)
	}
	return chain(mux, r.middlewares...)
}

func (r *Router) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, middlewares...)
}

// NotFound sets the handler for requests no route or middleware answered.
func (r *Router) NotFound(h http.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = h
}

func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      r,
		prefix:      normalizePath(prefix),
		middlewares: append([]Middleware(nil), middlewares...),
	}
}

func (r *Router) Get(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodGet, path, name, handler, middlewares...)
}

func (r *Router) Post(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPost, path, name, handler, middlewares...)
}

func (r *Router) Put(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPut, path, name, handler, middlewares...)
}

func (r *Router) Patch(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPatch, path, name, handler, middlewares...)
}

func (r *Router) Delete(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodDelete, path, name, handler, middlewares...)
}

// Handle mounts handler for every method on path.
func (r *Router) Handle(path, name string, handler http.Handler, middlewares ...Middleware) {
	r.mount("", path, name, handler, middlewares...)
}

func (r *Router) Path(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, ok := r.names[name]
	return path, ok
}

func (r *Router) URL(name string, params map[string]string) (string, error) {
	path, ok := r.Path(name)
	if !ok {
		return "", fmt.Errorf("route %q not found", name)
	}

	for key, value := range params {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}

	if strings.Contains(path, "{") {
		return "", fmt.Errorf("missing parameters for route %q", name)
	}

	return path, nil
}

// Routes lists every registered route in registration order.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.RouteInfo
		if out[i].Method == "" {
			out[i].Method = "*"
		}
	}
	return out
}

func (r *Router) mount(method, path, name string, handler http.Handler, middlewares ...Middleware) {
	fullPath := normalizePath(path)
	r.add(method, fullPath, name, chain(handler, middlewares...))
}

func (r *Router) add(method, fullPath, name string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, route{
		RouteInfo: RouteInfo{Method: method, Path: fullPath, Name: name},
		handler:   h,
	})
	if name != "" {
		r.names[name] = fullPath
	}
}

func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	joined := joinPath(g.prefix, prefix)
	combined := append(append([]Middleware(nil), g.middlewares...), middlewares...)

	return &Group{
		router:      g.router,
		prefix:      joined,
		middlewares: combined,
	}
}

func (g *Group) Get(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodGet, path, name, handler, middlewares...)
}

func (g *Group) Post(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodPost, path, name, handler, middlewares...)
}

func (g *Group) mount(method, path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	fullPath := joinPath(g.prefix, path)
	combined := append(append([]Middleware(nil), g.middlewares...), middlewares...)
	g.router.add(method, fullPath, name, chain(handler, combined...))
}

func chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	wrapped := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func joinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, "/")
		if trimmed != "" {
			segments = append(segments, trimmed)
		}
	}

	if len(segments) == 0 {
		return "/"
	}

	return "/" + strings.Join(segments, "/")
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return joinPath(path)
}
