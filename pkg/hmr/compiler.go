package hmr

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/metrics"
)

// Event actions, as understood by webpack-hot-middleware clients.
const (
	ActionBuilding = "building"
	ActionBuilt    = "built"
	ActionSync     = "sync"
)

// Event is one message on the hot-reload stream.
type Event struct {
	Action   string            `json:"action"`
	Name     string            `json:"name"`
	Time     int64             `json:"time,omitempty"` // build duration, ms
	Hash     string            `json:"hash,omitempty"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
	Modules  map[string]string `json:"modules"`
}

// Stats describes a finished build.
type Stats struct {
	Hash     string
	Duration time.Duration
	Errors   []string
	Warnings []string
	Assets   []string
	Finished time.Time
}

func (s *Stats) HasErrors() bool { return s != nil && len(s.Errors) > 0 }

type runner func(ctx context.Context, dir string, argv []string) ([]byte, error)

func execRunner(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Compiler runs the bundler command and tells subscribers about it. With no
// command configured a build only rescans the output directory.
type Compiler struct {
	cfg  *Config
	argv []string
	run  runner

	buildMu sync.Mutex // one build at a time

	mu      sync.Mutex
	pending int
	idle    chan struct{} // closed while no build is pending
	last    *Stats
	subs    map[chan Event]struct{}
}

func NewCompiler(cfg *Config) (*Compiler, error) {
	var argv []string
	if cfg.Command != "" {
		var err error
		argv, err = shlex.Split(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("hmr: parse command: %w", err)
		}
	}

	idle := make(chan struct{})
	close(idle)
	return &Compiler{
		cfg:  cfg,
		argv: argv,
		run:  execRunner,
		idle: idle,
		subs: make(map[chan Event]struct{}),
	}, nil
}

func (c *Compiler) Config() *Config { return c.cfg }

// Run builds once and returns the stats. A failing command is reported in
// the stats and as the error.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	c.begin()
	return c.build(ctx)
}

// Start marks a build as pending before returning and runs it in the
// background, so requests arriving right after Start wait for it.
func (c *Compiler) Start(ctx context.Context) <-chan error {
	c.begin()
	done := make(chan error, 1)
	go func() {
		_, err := c.build(ctx)
		done <- err
		close(done)
	}()
	return done
}

// Wait blocks while a build is pending and returns the latest stats, which
// are nil before the first build.
func (c *Compiler) Wait(ctx context.Context) (*Stats, error) {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return c.Last(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Building reports whether a build is pending.
func (c *Compiler) Building() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Last returns the stats of the latest finished build.
func (c *Compiler) Last() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Subscribe returns a channel of build events and a function that ends the
// subscription. Slow subscribers miss events rather than stall builds.
func (c *Compiler) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

// SyncEvent describes the latest build for a newly connected client.
func (c *Compiler) SyncEvent() (Event, bool) {
	s := c.Last()
	if s == nil {
		return Event{}, false
	}
	return c.event(ActionSync, s), true
}

func (c *Compiler) begin() {
	c.mu.Lock()
	c.pending++
	if c.pending == 1 {
		c.idle = make(chan struct{})
	}
	c.mu.Unlock()
	c.publish(Event{Action: ActionBuilding, Name: c.cfg.Name})
}

func (c *Compiler) finish(s *Stats) {
	c.mu.Lock()
	c.last = s
	c.pending--
	if c.pending == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
	c.publish(c.event(ActionBuilt, s))
}

func (c *Compiler) build(ctx context.Context) (*Stats, error) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	log := logger.WithCtx(ctx).With("bundle", c.cfg.Name)
	log.Info("hmr: building")

	start := time.Now()
	var buildErr error
	var out []byte
	if len(c.argv) > 0 {
		out, buildErr = c.run(ctx, c.cfg.Context, c.argv)
	}

	stats := &Stats{Errors: []string{}, Warnings: []string{}}
	stats.Warnings = append(stats.Warnings, grepLines(out, "warn")...)
	if buildErr != nil {
		stats.Errors = append(stats.Errors, buildErr.Error())
		stats.Errors = append(stats.Errors, grepLines(out, "error")...)
		buildErr = fmt.Errorf("hmr: build %s: %w", c.cfg.Name, buildErr)
	}

	assets, hash, err := scanOutput(c.cfg.Output.Path)
	if err != nil && buildErr == nil {
		stats.Errors = append(stats.Errors, err.Error())
		buildErr = fmt.Errorf("hmr: scan output: %w", err)
	}
	stats.Assets = assets
	stats.Hash = hash
	stats.Duration = time.Since(start)
	stats.Finished = time.Now()

	metrics.ObserveBuild(stats.Duration, buildErr)
	if buildErr != nil {
		log.Error("hmr: build failed", "error", buildErr, "duration", stats.Duration)
	} else {
		log.Info("hmr: built", "hash", stats.Hash, "assets", len(stats.Assets), "duration", stats.Duration)
	}

	c.finish(stats)
	return stats, buildErr
}

func (c *Compiler) event(action string, s *Stats) Event {
	modules := make(map[string]string, len(s.Assets))
	for i, a := range s.Assets {
		modules[strconv.Itoa(i)] = a
	}
	return Event{
		Action:   action,
		Name:     c.cfg.Name,
		Time:     s.Duration.Milliseconds(),
		Hash:     s.Hash,
		Errors:   s.Errors,
		Warnings: s.Warnings,
		Modules:  modules,
	}
}

func (c *Compiler) publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// scanOutput lists the files under dir and hashes their names, sizes and
// modification times. A missing directory yields no assets.
func scanOutput(dir string) ([]string, string, error) {
	var assets []string
	h := sha256.New()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		assets = append(assets, rel)
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", rel, info.Size(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	sort.Strings(assets)
	return assets, hex.EncodeToString(h.Sum(nil))[:20], nil
}

func grepLines(out []byte, needle string) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(strings.ToLower(line), needle) {
			lines = append(lines, line)
		}
	}
	return lines
}
