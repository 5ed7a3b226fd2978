// Package server owns the listen and serve lifecycle of the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// HTTP is a server bound to a listener and serving in the background.
type HTTP struct {
	srv  *http.Server
	ln   net.Listener
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Listen binds addr synchronously so bind errors surface to the caller.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve starts serving h on ln in a goroutine. There are no write
// timeouts: hot-reload streams stay open indefinitely.
func Serve(ln net.Listener, h http.Handler) *HTTP {
	s := &HTTP{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		ln:   ln,
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Addr is the bound address.
func (s *HTTP) Addr() net.Addr { return s.ln.Addr() }

// Handler is the handler being served.
func (s *HTTP) Handler() http.Handler { return s.srv.Handler }

// Done is closed once the server stops serving.
func (s *HTTP) Done() <-chan struct{} { return s.done }

// Err is the error that stopped the server, nil after a clean shutdown.
func (s *HTTP) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Shutdown stops accepting connections and waits for active requests until
// ctx expires, then closes whatever is left.
func (s *HTTP) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	<-s.done
	return err
}
