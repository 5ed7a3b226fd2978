package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/metrics"
	"github.com/shashiranjanraj/serverkit/pkg/middleware"
)

// ErrNoSecret is returned by New when Options.Secret is empty.
var ErrNoSecret = errors.New("session: secret is required")

// Manager loads sessions for incoming requests and commits them before the
// response goes out.
type Manager struct {
	opts   Options
	signer *signer
}

func New(opts Options) (*Manager, error) {
	if opts.Secret == "" {
		return nil, ErrNoSecret
	}
	s, err := newSigner(opts.Secret)
	if err != nil {
		return nil, err
	}
	return &Manager{opts: opts.withDefaults(), signer: s}, nil
}

// Options returns the effective options.
func (m *Manager) Options() Options { return m.opts }

// Middleware loads (or creates) the session for every request and injects
// it into the request context. Handlers call session.FromCtx(r).
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess))

		cw := &commitWriter{ResponseWriter: w, commit: func(w http.ResponseWriter) {
			m.commit(w, r, sess)
		}}
		next.ServeHTTP(cw, r)
		cw.ensureCommitted()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.opts.Cookie.Name)
	if err != nil {
		return newSession()
	}
	id, err := m.signer.verify(cookie.Value)
	if err != nil {
		return newSession()
	}

	data, err := m.opts.Store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithCtx(r.Context()).Warn("session: load failed", "error", err)
		}
		return newSession()
	}
	return loadedSession(id, data)
}

// commit decides, like express-session, whether to write the store and
// whether to issue the cookie.
func (m *Manager) commit(w http.ResponseWriter, r *http.Request, s *Session) {
	ctx := r.Context()
	log := logger.WithCtx(ctx)

	if s.oldID != "" {
		if err := m.opts.Store.Destroy(ctx, s.oldID); err != nil {
			log.Warn("session: destroy regenerated", "error", err)
		}
	}

	if s.destroyed {
		if !s.isNew {
			if err := m.opts.Store.Destroy(ctx, s.id); err != nil {
				log.Warn("session: destroy failed", "error", err)
			}
			m.expireCookie(w)
		}
		return
	}

	var save bool
	if s.isNew {
		save = m.opts.SaveUninitialized || s.Modified()
	} else {
		save = m.opts.Resave || s.Modified()
	}
	if !save {
		return
	}

	err := m.opts.Store.Set(ctx, s.id, s.data, m.opts.TTL)
	metrics.ObserveSessionSave(err)
	if err != nil {
		log.Error("session: save failed", "error", err)
		return
	}

	if m.opts.Cookie.Secure && !middleware.IsSecure(r) {
		log.Debug("session: not issuing secure cookie over http")
		return
	}

	value, err := m.signer.sign(s.id)
	if err != nil {
		log.Error("session: sign failed", "error", err)
		return
	}

	c := &http.Cookie{
		Name:     m.opts.Cookie.Name,
		Value:    value,
		Path:     m.opts.Cookie.Path,
		HttpOnly: m.opts.Cookie.HTTPOnly,
		Secure:   m.opts.Cookie.Secure,
		SameSite: m.opts.Cookie.SameSite,
	}
	if m.opts.Cookie.MaxAge > 0 {
		c.MaxAge = int(m.opts.Cookie.MaxAge.Seconds())
	}
	http.SetCookie(w, c)
}

func (m *Manager) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.Cookie.Name,
		Value:    "",
		Path:     m.opts.Cookie.Path,
		MaxAge:   -1,
		HttpOnly: m.opts.Cookie.HTTPOnly,
		Secure:   m.opts.Cookie.Secure,
		SameSite: m.opts.Cookie.SameSite,
	})
}

// commitWriter runs commit once, right before the header is written.
type commitWriter struct {
	http.ResponseWriter
	commit    func(http.ResponseWriter)
	committed bool
}

func (cw *commitWriter) ensureCommitted() {
	if !cw.committed {
		cw.committed = true
		cw.commit(cw.ResponseWriter)
	}
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.ensureCommitted()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.ensureCommitted()
	return cw.ResponseWriter.Write(b)
}

func (cw *commitWriter) Flush() {
	cw.ensureCommitted()
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *commitWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }
