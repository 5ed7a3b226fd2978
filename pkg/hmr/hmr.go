// Package hmr is the development rebuild pipeline: a bundler config, a
// compiler that runs the build command, a watcher that re-runs it on source
// changes, a dev middleware serving the output and a hot middleware telling
// browsers when to reload.
//
//	p, err := hmr.New("bundler.yaml", hmr.HotOptions{})
//	r.Use(p.DevMiddleware(), p.HotMiddleware())
//	err = p.Start(ctx)
//	defer p.Close()
package hmr

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
)

// Pipeline ties the compiler, watcher and middleware together.
type Pipeline struct {
	cfg      *Config
	compiler *Compiler
	hot      *Hot
	watcher  *Watcher

	closeOnce sync.Once
}

// New loads the bundler config at configPath and builds the compiler.
// Nothing runs until Start.
func New(configPath string, opts HotOptions) (*Pipeline, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	c, err := NewCompiler(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, compiler: c, hot: NewHot(c, opts)}, nil
}

func (p *Pipeline) Config() *Config     { return p.cfg }
func (p *Pipeline) Compiler() *Compiler { return p.compiler }

func (p *Pipeline) DevMiddleware() func(http.Handler) http.Handler {
	return DevMiddleware(p.compiler)
}

func (p *Pipeline) HotMiddleware() func(http.Handler) http.Handler {
	return p.hot.Middleware
}

// Start kicks off the first build and begins watching. It does not wait
// for the build.
func (p *Pipeline) Start(ctx context.Context) error {
	p.hot.Start()

	w, err := NewWatcher(p.cfg.Watch, p.cfg.Ignore, p.cfg.Debounce, func() {
		_, _ = p.compiler.Run(ctx)
	})
	if err != nil {
		p.hot.Close()
		return fmt.Errorf("hmr: watch: %w", err)
	}
	p.watcher = w

	p.compiler.Start(ctx)
	w.Start()

	logger.Info("hmr: watching", "bundle", p.cfg.Name, "dirs", p.cfg.Watch, "publicPath", p.cfg.Output.PublicPath)
	return nil
}

// Close stops the watcher and disconnects hot-reload clients.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		if p.watcher != nil {
			p.watcher.Stop()
		}
		p.hot.Close()
	})
	return nil
}
