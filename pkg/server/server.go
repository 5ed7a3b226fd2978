// Package server assembles an HTTP server from a declarative settings
// record.
//
//	srv, err := server.Create(ctx, map[string]any{
//	    "viewEngine":  "html",
//	    "viewsPath":   "./views",
//	    "staticPaths": []string{"./public"},
//	    "session":     map[string]any{"secret": os.Getenv("SESSION_SECRET")},
//	    "plugins":     []any{routes},
//	})
//
// Middleware is registered in a fixed order: views, static paths, JSON
// bodies, urlencoded bodies, proxy trust, sessions, hot reload, then the
// plugins, which run concurrently. The socket is bound last.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	httpserver "github.com/shashiranjanraj/serverkit/internal/server"
	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/body"
	"github.com/shashiranjanraj/serverkit/pkg/hmr"
	"github.com/shashiranjanraj/serverkit/pkg/metrics"
	"github.com/shashiranjanraj/serverkit/pkg/middleware"
	"github.com/shashiranjanraj/serverkit/pkg/session"
	"github.com/shashiranjanraj/serverkit/pkg/static"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

// Server is an assembled application that is listening.
type Server struct {
	App      *app.App
	Settings *Settings

	hs       *httpserver.HTTP
	pipeline *hmr.Pipeline

	stopOnce sync.Once
}

// Assembly is an application built from settings that is not listening
// yet.
type Assembly struct {
	App      *app.App
	Settings *Settings

	pipeline *hmr.Pipeline
}

// Create validates raw, assembles the application and binds the socket.
// Validation failures are *schema.ValidationErrors; anything after that is
// a *StartupError. On error nothing is listening and the returned Server
// is nil.
func Create(ctx context.Context, raw map[string]any) (*Server, error) {
	a, err := Build(ctx, raw)
	if err != nil {
		return nil, err
	}
	return a.Listen()
}

// Build validates raw and assembles the application without binding a
// socket.
func Build(ctx context.Context, raw map[string]any) (*Assembly, error) {
	validated, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	s, err := Decode(validated)
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, s)
}

// Assemble registers everything s describes on a new application. A
// failure is logged and returned as a *StartupError.
func Assemble(ctx context.Context, s *Settings) (*Assembly, error) {
	asm := &Assembly{App: app.New(), Settings: s}
	if err := asm.register(ctx); err != nil {
		asm.close()
		asm.App.Logger().Error("server: failed to start", "error", err)
		return nil, err
	}
	return asm, nil
}

func (asm *Assembly) register(ctx context.Context) error {
	a, s := asm.App, asm.Settings

	if s.ViewEngine != "" && s.ViewsPath != "" {
		engine, err := view.New(s.ViewEngine, s.ViewsPath)
		if err != nil {
			return &StartupError{Stage: StageViews, Err: err}
		}
		a.Set(app.SettingViewEngine, s.ViewEngine).
			Set(app.SettingViews, s.ViewsPath).
			SetViews(engine)
	}

	for _, root := range s.StaticPaths {
		disk, err := static.New(ctx, root)
		if err != nil {
			return &StartupError{Stage: StageStatic, Err: err}
		}
		a.Use(static.Middleware(disk))
	}

	if s.SupportJSONRequest != nil {
		limit, err := body.ParseLimit(s.SupportJSONRequest.Limit)
		if err != nil {
			return &StartupError{Stage: StageBody, Err: err}
		}
		a.Use(body.JSON(limit))
	}

	if s.SupportGet != nil {
		limit, err := body.ParseLimit(s.SupportGet.Limit)
		if err != nil {
			return &StartupError{Stage: StageBody, Err: err}
		}
		a.Use(body.URLEncoded(s.SupportGet.Extended, limit))
	}

	if s.TrustProxy {
		a.Enable(app.SettingTrustProxy).Use(middleware.TrustProxy)
	}

	if s.Session != nil {
		opts := session.DefaultOptions()
		opts.Secret = s.Session.Secret
		opts.SaveUninitialized = s.Session.SaveUninitialized
		opts.Resave = s.Session.Resave
		opts.Cookie.Secure = s.Session.Cookie.Secure
		opts.Store = s.Session.Store

		m, err := session.New(opts)
		if err != nil {
			return &StartupError{Stage: StageSession, Err: err}
		}
		a.Use(m.Middleware)
	}

	if s.HMR != nil {
		p, err := hmr.New(s.HMR.WebpackConfigFilePath, hmr.HotOptions{
			Path:      hmr.DefaultPath,
			Heartbeat: hmr.DefaultHeartbeat,
		})
		if err != nil {
			return &StartupError{Stage: StageHMR, Err: err}
		}
		a.Use(p.DevMiddleware(), p.HotMiddleware())
		if err := p.Start(context.WithoutCancel(ctx)); err != nil {
			return &StartupError{Stage: StageHMR, Err: err}
		}
		asm.pipeline = p
	}

	if len(s.Plugins) > 0 {
		if err := runPlugins(ctx, a, s.Plugins); err != nil {
			return err
		}
		a.Logger().Debug("server: plugins initialized", "count", len(s.Plugins))
	}

	return nil
}

// runPlugins launches every plugin at once and waits for all of them. The
// first failure is returned; the context handed to the others is cancelled.
func runPlugins(ctx context.Context, a *app.App, plugins []NamedPlugin) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range plugins {
		g.Go(func() (err error) {
			start := time.Now()
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic: %v", rec)
				}
				metrics.ObservePlugin(p.Name, start, err)
				if err != nil {
					err = &StartupError{Stage: StagePlugin, Plugin: p.Name, Err: err}
				}
			}()
			return p.Run(gctx, a)
		})
	}
	return g.Wait()
}

// Listen binds host:port and starts serving. A bind failure is logged and
// returned as a *StartupError; the hot-reload pipeline is stopped with it.
func (asm *Assembly) Listen() (*Server, error) {
	log := asm.App.Logger()
	addr := net.JoinHostPort(asm.Settings.Host, strconv.Itoa(asm.Settings.Port))

	ln, err := httpserver.Listen(addr)
	if err != nil {
		log.Error("server: failed to start", "addr", addr, "error", err)
		asm.close()
		return nil, &StartupError{Stage: StageListen, Err: err}
	}

	srv := &Server{
		App:      asm.App,
		Settings: asm.Settings,
		hs:       httpserver.Serve(ln, asm.App.Handler()),
		pipeline: asm.pipeline,
	}
	log.Info(fmt.Sprintf("Server running on http://localhost:%d", srv.Port()), "addr", srv.Addr().String())
	return srv, nil
}

// Close stops the hot-reload pipeline of an assembly that will not be
// listened on.
func (asm *Assembly) Close() { asm.close() }

func (asm *Assembly) close() {
	if asm.pipeline != nil {
		_ = asm.pipeline.Close()
	}
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.hs.Addr() }

// Port is the bound port, which differs from Settings.Port when that was 0.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.Settings.Port
}

// Handler is the compiled request handler being served.
func (s *Server) Handler() http.Handler { return s.hs.Handler() }

// Done is closed once the server stops serving.
func (s *Server) Done() <-chan struct{} { return s.hs.Done() }

// Err reports why the server stopped, nil after Shutdown.
func (s *Server) Err() error { return s.hs.Err() }

// Shutdown stops serving, waiting for in-flight requests until ctx
// expires, and stops the hot-reload pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.hs.Shutdown(ctx)
		if s.pipeline != nil {
			err = errors.Join(err, s.pipeline.Close())
		}
	})
	return err
}
