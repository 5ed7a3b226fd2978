package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type protoKey struct{}

// TrustProxy treats the request as described by the proxy in front of the
// server: the client address comes from True-Client-IP, X-Real-IP or
// X-Forwarded-For, the host from X-Forwarded-Host and the scheme from
// X-Forwarded-Proto. Only install it when a proxy is actually in front.
func TrustProxy(next http.Handler) http.Handler {
	forwarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if proto := firstHop(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			ctx = context.WithValue(ctx, protoKey{}, strings.ToLower(proto))
		}
		r = r.WithContext(ctx)
		if host := firstHop(r.Header.Get("X-Forwarded-Host")); host != "" {
			r.Host = host
		}
		next.ServeHTTP(w, r)
	})
	return chimw.RealIP(forwarded)
}

// Protocol returns "https" or "http" for r, honouring X-Forwarded-Proto only
// when TrustProxy ran.
func Protocol(r *http.Request) string {
	if proto, ok := r.Context().Value(protoKey{}).(string); ok {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// IsSecure reports whether the client connection is HTTPS.
func IsSecure(r *http.Request) bool { return Protocol(r) == "https" }

func firstHop(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
