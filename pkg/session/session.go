// Package session provides cookie sessions with pluggable server-side
// stores.
//
// Usage (middleware):
//
//	m, err := session.New(session.Options{Secret: "keyboard cat"})
//	r.Use(m.Middleware)
//
// Usage (handler):
//
//	sess := session.FromCtx(r)
//	sess.Set("user_id", 42)
//	n, _ := sess.GetInt("user_id")
//
// The session is saved automatically before the response header is
// written. The cookie carries only a signed session id; data lives in the
// Store (memory, Redis or SQL).
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

type ctxKey struct{}

// Session is an in-request session handle. It is not safe for use by
// several goroutines of the same request.
type Session struct {
	id        string
	data      map[string]any
	isNew     bool
	original  []byte
	destroyed bool
	oldID     string
}

// newID generates a cryptographically random 32-byte hex session ID.
func newID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

func newSession() *Session {
	s := &Session{id: newID(), data: map[string]any{}, isNew: true}
	s.original = s.snapshot()
	return s
}

func loadedSession(id string, data map[string]any) *Session {
	if data == nil {
		data = map[string]any{}
	}
	s := &Session{id: id, data: data}
	s.original = s.snapshot()
	return s
}

func (s *Session) snapshot() []byte {
	b, _ := json.Marshal(s.data)
	return b
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.isNew }

// Modified reports whether the data differs from what was loaded.
func (s *Session) Modified() bool {
	return string(s.snapshot()) != string(s.original)
}

// Set stores a value under key in the session.
func (s *Session) Set(key string, value any) {
	s.data[key] = value
}

// Get retrieves a value from the session.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetString is a typed convenience getter.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.data[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// GetInt is a typed convenience getter.
func (s *Session) GetInt(key string) (int, bool) {
	v, ok := s.data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64: // JSON numbers unmarshal as float64
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// Delete removes a key from the session.
func (s *Session) Delete(key string) {
	delete(s.data, key)
}

// Flash stores a value that is removed by the next GetFlash.
func (s *Session) Flash(key string, value any) {
	s.Set("_flash_"+key, value)
}

// GetFlash retrieves and removes a flash value.
func (s *Session) GetFlash(key string) (any, bool) {
	v, ok := s.Get("_flash_" + key)
	if ok {
		s.Delete("_flash_" + key)
	}
	return v, ok
}

// Regenerate replaces the session with an empty one under a fresh id. The
// old record is removed from the store when the response is committed.
func (s *Session) Regenerate() {
	if !s.isNew && s.oldID == "" {
		s.oldID = s.id
	}
	s.id = newID()
	s.data = map[string]any{}
	s.isNew = true
	s.original = nil
}

// Destroy removes the session from the store and expires the cookie.
func (s *Session) Destroy() {
	s.destroyed = true
	s.data = map[string]any{}
}

// FromCtx retrieves the session from the request context, or nil when the
// session middleware did not run.
func FromCtx(r *http.Request) *Session {
	s, _ := r.Context().Value(ctxKey{}).(*Session)
	return s
}
