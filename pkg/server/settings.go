package server

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/shashiranjanraj/serverkit/config"
	"github.com/shashiranjanraj/serverkit/pkg/app"
	"github.com/shashiranjanraj/serverkit/pkg/body"
	"github.com/shashiranjanraj/serverkit/pkg/schema"
	"github.com/shashiranjanraj/serverkit/pkg/session"
	"github.com/shashiranjanraj/serverkit/pkg/view"
)

// Settings is the validated, defaulted settings record.
type Settings struct {
	ViewEngine         string           `mapstructure:"viewEngine"`
	ViewsPath          string           `mapstructure:"viewsPath"`
	StaticPaths        []string         `mapstructure:"staticPaths"`
	SupportJSONRequest *JSONSettings    `mapstructure:"supportJSONRequest"`
	SupportGet         *FormSettings    `mapstructure:"supportGet"`
	TrustProxy         bool             `mapstructure:"trustProxy"`
	Session            *SessionSettings `mapstructure:"session"`
	HMR                *HMRSettings     `mapstructure:"hmr"`
	Host               string           `mapstructure:"host"`
	Port               int              `mapstructure:"port"`
	Plugins            []NamedPlugin    `mapstructure:"-"`
}

type JSONSettings struct {
	Limit string `mapstructure:"limit"`
}

type FormSettings struct {
	Extended bool   `mapstructure:"extended"`
	Limit    string `mapstructure:"limit"`
}

type SessionSettings struct {
	Secret            string         `mapstructure:"secret"`
	SaveUninitialized bool           `mapstructure:"saveUninitialized"`
	Resave            bool           `mapstructure:"resave"`
	Cookie            CookieSettings `mapstructure:"cookie"`
	Store             session.Store  `mapstructure:"-"`
}

type CookieSettings struct {
	Secure bool `mapstructure:"secure"`
}

type HMRSettings struct {
	WebpackConfigFilePath string `mapstructure:"webpackConfigFilePath"`
}

// NamedPlugin is a plugin with the name it is logged and measured under.
type NamedPlugin struct {
	Name string
	Run  app.Plugin
}

// Schema is the settings schema. The port default is read from APP_PORT
// (then PORT) when Schema is called.
func Schema() schema.Shape {
	limit := func() *schema.Rule {
		return schema.String().Default(body.DefaultLimit).Check(checkLimit)
	}

	return schema.Shape{
		"viewEngine":  schema.String().RequiredWith("viewsPath").Check(checkEngine),
		"viewsPath":   schema.String().RequiredWith("viewEngine"),
		"staticPaths": schema.Array(schema.String().Check(checkNonEmpty)),
		"supportJSONRequest": schema.Object(schema.Shape{
			"limit": limit(),
		}),
		"supportGet": schema.Object(schema.Shape{
			"extended": schema.Boolean().Default(true),
			"limit":    limit(),
		}),
		"trustProxy": schema.Boolean().Default(false),
		"session": schema.Object(schema.Shape{
			"secret":            schema.String().Required().Check(checkNonEmpty),
			"saveUninitialized": schema.Boolean().Default(false),
			"resave":            schema.Boolean().Default(false),
			"cookie": schema.Object(schema.Shape{
				"secure": schema.Boolean().Default(true),
			}).Default(map[string]any{}),
			"store": schema.Opaque().Check(checkStore),
		}),
		"hmr": schema.Object(schema.Shape{
			"webpackConfigFilePath": schema.String().Required().Check(checkNonEmpty),
		}),
		"host":    schema.String().Default(""),
		"port":    schema.Integer().Default(config.AppPort()).Check(checkPort),
		"plugins": schema.Array(schema.Opaque().Check(checkPlugin)),
	}
}

// Validate checks raw against Schema and returns the defaulted record.
func Validate(raw map[string]any, opts ...schema.Option) (map[string]any, error) {
	return schema.Validate(raw, Schema(), opts...)
}

// Decode converts a validated record into Settings.
func Decode(validated map[string]any) (*Settings, error) {
	var s Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &s,
	})
	if err != nil {
		return nil, fmt.Errorf("server: decoder: %w", err)
	}
	if err := dec.Decode(validated); err != nil {
		return nil, fmt.Errorf("server: decode settings: %w", err)
	}

	if s.Session != nil {
		if sess, ok := validated["session"].(map[string]any); ok && sess["store"] != nil {
			s.Session.Store = sess["store"].(session.Store)
		}
	}

	if items, ok := validated["plugins"].([]any); ok {
		for i, item := range items {
			p, err := AsPlugin(item)
			if err != nil {
				return nil, fmt.Errorf("server: plugins[%d]: %w", i, err)
			}
			s.Plugins = append(s.Plugins, NamedPlugin{Name: pluginName(item, i), Run: p})
		}
	}
	return &s, nil
}

var errPluginSignature = errors.New("unsupported plugin signature")

// AsPlugin accepts the supported plugin shapes:
//
//	func(context.Context, *app.App) error
//	func(*app.App) error
//	func(*app.App)
func AsPlugin(v any) (app.Plugin, error) {
	switch fn := v.(type) {
	case app.Plugin:
		return fn, nil
	case func(context.Context, *app.App) error:
		return fn, nil
	case func(*app.App) error:
		return func(_ context.Context, a *app.App) error { return fn(a) }, nil
	case func(*app.App):
		return func(_ context.Context, a *app.App) error { fn(a); return nil }, nil
	case NamedPlugin:
		return fn.Run, nil
	}
	return nil, fmt.Errorf("%w %T", errPluginSignature, v)
}

// Named attaches a name to a plugin for logs and metrics.
func Named(name string, p app.Plugin) NamedPlugin {
	return NamedPlugin{Name: name, Run: p}
}

func pluginName(v any, i int) string {
	if np, ok := v.(NamedPlugin); ok {
		if np.Name != "" {
			return np.Name
		}
		v = np.Run
	}
	if fn := runtime.FuncForPC(reflect.ValueOf(v).Pointer()); fn != nil {
		name := fn.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return fmt.Sprintf("plugin#%d", i)
}

func checkLimit(v any) error {
	_, err := body.ParseLimit(v.(string))
	return err
}

func checkEngine(v any) error {
	if !view.Registered(v.(string)) {
		return fmt.Errorf("unknown view engine %q (available: %s)", v, strings.Join(view.Names(), ", "))
	}
	return nil
}

func checkNonEmpty(v any) error {
	if strings.TrimSpace(v.(string)) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func checkStore(v any) error {
	if _, ok := v.(session.Store); !ok {
		return fmt.Errorf("%T does not implement session.Store", v)
	}
	return nil
}

func checkPort(v any) error {
	if p := v.(int); p < 0 || p > 65535 {
		return fmt.Errorf("port %d out of range 0-65535", p)
	}
	return nil
}

func checkPlugin(v any) error {
	_, err := AsPlugin(v)
	return err
}
