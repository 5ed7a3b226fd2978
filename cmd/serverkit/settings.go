package main

import (
	"context"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shashiranjanraj/serverkit/pkg/database"
	"github.com/shashiranjanraj/serverkit/pkg/plugins"
	"github.com/shashiranjanraj/serverkit/pkg/server"
	"github.com/shashiranjanraj/serverkit/pkg/session"
)

// loadSettings reads a YAML or JSON settings file. Plugin names and the
// session store shorthand are left as written; see resolve.
func loadSettings(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return raw, nil
}

// resolve replaces plugin names with the registered plugins and turns the
// session store shorthand into a store:
//
//	store: memory
//	store: redis              # REDIS_ADDR / REDIS_PASSWORD
//	store: database           # DB_DRIVER / DATABASE_DSN
//	store: {driver: sqlite, dsn: sessions.db}
//
// Values it does not recognise are left for validation to reject.
func resolve(ctx context.Context, raw map[string]any) (map[string]any, error) {
	out, err := resolvePlugins(raw)
	if err != nil {
		return nil, err
	}

	if sess, ok := raw["session"].(map[string]any); ok && sess["store"] != nil {
		store, err := openStore(ctx, sess["store"])
		if err != nil {
			return nil, err
		}
		copied := maps.Clone(sess)
		copied["store"] = store
		out["session"] = copied
	}
	return out, nil
}

// resolvePlugins replaces plugin names only. It opens nothing.
func resolvePlugins(raw map[string]any) (map[string]any, error) {
	out := maps.Clone(raw)
	items, ok := raw["plugins"].([]any)
	if !ok {
		return out, nil
	}

	resolved := make([]any, len(items))
	for i, item := range items {
		name, ok := item.(string)
		if !ok {
			resolved[i] = item
			continue
		}
		p, err := plugins.Lookup(name)
		if err != nil {
			return nil, err
		}
		resolved[i] = server.Named(name, p)
	}
	out["plugins"] = resolved
	return out, nil
}

func openStore(ctx context.Context, shorthand any) (any, error) {
	switch v := shorthand.(type) {
	case string:
		switch v {
		case "memory":
			return session.NewMemoryStore(), nil
		case "redis":
			return session.DialRedis(ctx)
		case "database":
			db, err := database.Connect()
			if err != nil {
				return nil, err
			}
			return session.NewGormStore(db)
		}
	case map[string]any:
		driver, _ := v["driver"].(string)
		dsn, _ := v["dsn"].(string)
		db, err := database.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		return session.NewGormStore(db)
	}
	return shorthand, nil
}
