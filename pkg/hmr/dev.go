package hmr

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/shashiranjanraj/serverkit/pkg/static"
)

// DevMiddleware serves the compiler's output under output.publicPath.
// Requests for assets wait while a build is running so a page reload never
// sees half-written files. Anything not in the output falls through.
func DevMiddleware(c *Compiler) func(http.Handler) http.Handler {
	cfg := c.Config()
	prefix := cfg.Output.PublicPath
	assets := static.Middleware(static.Local(cfg.Output.Path))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (r.Method != http.MethodGet && r.Method != http.MethodHead) || !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := c.Wait(r.Context()); err != nil {
				return // client gone
			}

			stripped := r.Clone(r.Context())
			stripped.URL = cloneURL(r.URL)
			stripped.URL.Path = "/" + strings.TrimPrefix(r.URL.Path, prefix)
			stripped.URL.RawPath = ""

			original := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				next.ServeHTTP(w, r)
			})
			assets(original).ServeHTTP(w, stripped)
		})
	}
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}
