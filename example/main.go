// Package main is a minimal server assembled with serverkit.
//
// To run this example:
//
//	cd example
//	SESSION_SECRET=change-me go run .
//	# Then: curl http://localhost:8080/hello
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/plugins"
	"github.com/shashiranjanraj/serverkit/pkg/response"
	"github.com/shashiranjanraj/serverkit/pkg/router"
	"github.com/shashiranjanraj/serverkit/pkg/server"
	"github.com/shashiranjanraj/serverkit/pkg/session"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

func main() {
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Create(ctx, map[string]any{
		"viewEngine":         "html",
		"viewsPath":          "./views",
		"staticPaths":        []string{"./public"},
		"supportJSONRequest": map[string]any{},
		"supportGet":         map[string]any{"extended": true},
		"session": map[string]any{
			"secret": os.Getenv("SESSION_SECRET"),
			"cookie": map[string]any{"secure": false},
		},
		"plugins": []any{plugins.Standard, plugins.Healthz, routes},
	})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// routes registers the example handlers.
func routes(a *app.App) {
	a.Routes(func(r *router.Router) {
		r.Get("/", "home", func(w http.ResponseWriter, r *http.Request) {
			s := session.FromCtx(r)
			visits, _ := s.GetInt("visits")
			visits++
			s.Set("visits", visits)
			if err := a.Render(w, "index", view.Data{"Visits": visits}); err != nil {
				response.Error(w, http.StatusInternalServerError, err.Error())
			}
		})
		r.Get("/hello", "hello", func(w http.ResponseWriter, _ *http.Request) {
			response.Success(w, map[string]string{"message": "Hello from serverkit!"})
		})
	})
}
