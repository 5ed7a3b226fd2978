package session

import (
	"net/http"
	"time"
)

// DefaultCookieName is the cookie used when Options.Cookie.Name is empty.
const DefaultCookieName = "serverkit.sid"

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name     string
	Path     string
	MaxAge   time.Duration // zero means a browser-session cookie
	HTTPOnly bool
	// Secure cookies are only sent back over HTTPS. With Secure set the
	// cookie is not issued on plain HTTP requests at all.
	Secure   bool
	SameSite http.SameSite
}

// Options configures a Manager.
type Options struct {
	// Secret signs the session id cookie. Required.
	Secret string
	// SaveUninitialized stores sessions that are new and untouched.
	SaveUninitialized bool
	// Resave stores sessions on every request even when unchanged.
	Resave bool
	Cookie CookieOptions
	// Store holds session data. Defaults to a MemoryStore.
	Store Store
	// TTL bounds how long the store keeps an idle session.
	TTL time.Duration
}

// DefaultOptions returns the defaults every empty field falls back to.
func DefaultOptions() Options {
	return Options{
		Cookie: CookieOptions{
			Name:     DefaultCookieName,
			Path:     "/",
			HTTPOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		TTL: 24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Cookie.Name == "" {
		o.Cookie.Name = d.Cookie.Name
	}
	if o.Cookie.Path == "" {
		o.Cookie.Path = d.Cookie.Path
	}
	if o.Cookie.SameSite == 0 {
		o.Cookie.SameSite = d.Cookie.SameSite
	}
	if o.TTL <= 0 {
		o.TTL = d.TTL
		if o.Cookie.MaxAge > 0 {
			o.TTL = o.Cookie.MaxAge
		}
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	return o
}
