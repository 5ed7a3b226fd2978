package hmr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 200 * time.Millisecond

// Config is the bundler configuration file. It is YAML; JSON files parse
// as well.
//
//	name: web
//	context: ./frontend
//	command: npx esbuild src/app.ts --bundle --outdir=dist
//	watch: [src]
//	debounce: 300ms
//	output:
//	  path: dist
//	  publicPath: /assets/
//
// Relative paths resolve against the file's directory (context) or against
// context (watch, ignore, output.path).
type Config struct {
	Name     string        `yaml:"name"`
	Context  string        `yaml:"context"`
	Command  string        `yaml:"command"`
	Watch    []string      `yaml:"watch"`
	Ignore   []string      `yaml:"ignore"`
	Debounce time.Duration `yaml:"debounce"`
	Output   Output        `yaml:"output"`

	file string
}

// Output says where built assets land and where they are served from.
type Output struct {
	Path       string `yaml:"path"`
	PublicPath string `yaml:"publicPath"`
}

// File is the path the config was loaded from.
func (c *Config) File() string { return c.file }

// LoadConfig reads and normalises the bundler config at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hmr: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("hmr: parse config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("hmr: resolve %s: %w", path, err)
	}
	cfg.file = abs

	if err := cfg.normalize(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("hmr: config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) normalize(base string) error {
	if c.Output.Path == "" {
		return errors.New("output.path is required")
	}

	c.Context = resolve(base, c.Context)
	c.Output.Path = resolve(c.Context, c.Output.Path)

	pub := "/" + strings.Trim(c.Output.PublicPath, "/")
	if pub != "/" {
		pub += "/"
	}
	c.Output.PublicPath = pub

	if c.Name == "" {
		c.Name = filepath.Base(c.Context)
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}

	if len(c.Watch) == 0 {
		if c.Command == "" {
			// An external bundler writes the output; follow it.
			c.Watch = []string{c.Output.Path}
		} else {
			c.Watch = []string{c.Context}
		}
	}
	for i, w := range c.Watch {
		c.Watch[i] = resolve(c.Context, w)
	}
	for i, ig := range c.Ignore {
		c.Ignore[i] = resolve(c.Context, ig)
	}
	if c.Command != "" {
		c.Ignore = append(c.Ignore, c.Output.Path)
	}
	return nil
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
