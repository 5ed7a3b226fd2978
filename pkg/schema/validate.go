package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"

	"github.com/kaptinlin/jsonschema"
)

// Mode selects how much work Validate does.
type Mode int

const (
	// ModeFull enforces every rule and injects defaults.
	ModeFull Mode = iota
	// ModeReduced only enforces unconditional requirements and types. It
	// injects no defaults and skips conditional requirements and checks.
	ModeReduced
)

type options struct {
	mode Mode
}

// Option configures Validate.
type Option func(*options)

// WithMode selects the validation mode.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// Validate checks input against shape and returns a new record with defaults
// injected. input is never modified. Keys not declared in shape are copied
// through unchanged. On failure the returned error is a *ValidationErrors
// listing every violation.
//
// Requirements, types and defaults are read from the JSON Schema documents
// the shape renders to (see Document). Function and opaque fields, and the
// Check constraints, are evaluated in Go.
func Validate(input map[string]any, shape Shape, opts ...Option) (map[string]any, error) {
	o := options{mode: ModeFull}
	for _, opt := range opts {
		opt(&o)
	}

	v := &validator{mode: o.mode}
	out := v.object("", input, shape)
	if v.err != nil {
		return nil, v.err
	}
	if len(v.errs) > 0 {
		return nil, &ValidationErrors{Errs: v.errs}
	}
	return out, nil
}

type validator struct {
	mode Mode
	errs []*ValidationError
	err  error
}

func (v *validator) fail(path, rule, msg string) {
	v.errs = append(v.errs, &ValidationError{Path: path, Rule: rule, Message: msg})
}

// compile returns the compiled document for doc, recording the first
// compilation failure.
func (v *validator) compile(doc map[string]any) *jsonschema.Schema {
	s, err := compile(doc)
	if err != nil && v.err == nil {
		v.err = err
	}
	return s
}

// object validates in against shape. Conditional requirements look at in,
// the record as supplied, so the order fields are visited in cannot change
// the outcome.
func (v *validator) object(prefix string, in map[string]any, shape Shape) map[string]any {
	out := make(map[string]any, len(in)+len(shape))
	for k, val := range in {
		if _, declared := shape[k]; !declared {
			out[k] = val
		}
	}

	present := presence(in)
	for _, name := range sortedKeys(shape) {
		rule := shape[name]
		path := joinPath(prefix, name)

		if _, ok := present[name]; ok {
			if cv, ok := v.value(path, in[name], rule); ok {
				out[name] = cv
			}
			continue
		}

		if rule.required && !v.satisfies(present, map[string]any{"required": []string{name}}) {
			v.fail(path, RuleRequired, fmt.Sprintf("The %s field is required.", path))
			continue
		}
		if v.mode == ModeReduced {
			continue
		}
		if len(rule.requiredIf) > 0 {
			deps := make(map[string][]string, len(rule.requiredIf))
			for _, sibling := range rule.requiredIf {
				deps[sibling] = []string{name}
			}
			if !v.satisfies(present, map[string]any{"dependentRequired": deps}) {
				v.fail(path, RuleRequiredWith, fmt.Sprintf("The %s field is required when %s is present.",
					path, joinPath(prefix, declaredSibling(present, rule.requiredIf))))
				continue
			}
		}
		if rule.hasDef {
			def, err := rule.defaultValue()
			if err != nil {
				if v.err == nil {
					v.err = err
				}
				continue
			}
			// Defaults go through the rule too so nested defaults of an
			// object default are filled in.
			if cv, ok := v.value(path, cloneValue(def), rule); ok {
				out[name] = cv
			}
		}
	}

	return out
}

// satisfies validates doc against the presence projection of a record.
func (v *validator) satisfies(present map[string]any, doc map[string]any) bool {
	s := v.compile(doc)
	if s == nil {
		return true
	}
	return s.Validate(present).Valid
}

// value type-checks val against rule and returns the normalised value.
func (v *validator) value(path string, val any, rule *Rule) (any, bool) {
	before := len(v.errs)
	var result any

	switch rule.kind {
	case KindFunc:
		if val == nil || reflect.TypeOf(val).Kind() != reflect.Func {
			return v.typeError(path, rule)
		}
		result = val

	case KindOpaque:
		result = val

	default:
		jv, ok := jsonValue(val)
		if !ok {
			return v.typeError(path, rule)
		}
		s, err := rule.typeSchema()
		if err != nil {
			if v.err == nil {
				v.err = err
			}
			return nil, false
		}
		if !s.Validate(jv).Valid {
			return v.typeError(path, rule)
		}
		result, ok = v.normalise(path, val, jv, rule)
		if !ok {
			return nil, false
		}
	}

	if len(v.errs) > before {
		return nil, false
	}

	if v.mode == ModeFull {
		for _, check := range rule.checks {
			if err := check(result); err != nil {
				v.fail(path, RuleCheck, fmt.Sprintf("The %s field is invalid: %v.", path, err))
				return nil, false
			}
		}
	}

	return result, true
}

// normalise converts a value the compiled document accepted into the Go
// type the rule's kind decodes to, descending into items and properties.
func (v *validator) normalise(path string, val, jv any, rule *Rule) (any, bool) {
	switch rule.kind {
	case KindInteger:
		n, ok := toInt(val)
		if !ok {
			return v.typeError(path, rule)
		}
		return n, true

	case KindArray:
		items := jv.([]any)
		out := make([]any, len(items))
		for i, elem := range items {
			if rule.of == nil {
				out[i] = elem
				continue
			}
			if cv, ok := v.value(fmt.Sprintf("%s[%d]", path, i), elem, rule.of); ok {
				out[i] = cv
			}
		}
		return out, true

	case KindObject:
		m := jv.(map[string]any)
		if rule.shape == nil {
			return m, true
		}
		return v.object(path, m, rule.shape), true
	}
	return jv, true
}

func (v *validator) typeError(path string, rule *Rule) (any, bool) {
	v.fail(path, RuleType, fmt.Sprintf("The %s field must be of type %s.", path, rule.describe()))
	return nil, false
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// declaredSibling names the first of fields present in the projection.
func declaredSibling(present map[string]any, fields []string) string {
	for _, f := range fields {
		if _, ok := present[f]; ok {
			return f
		}
	}
	return fields[0]
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func toInt(val any) (int, bool) {
	switch n := val.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, false
		}
		return int(n), true
	case uint:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(i)
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

// toStringMap accepts any map keyed by strings (or by interface values that
// hold strings, as some YAML decoders produce).
func toStringMap(val any) (map[string]any, bool) {
	if m, ok := val.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Map {
		return nil, false
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}
		if k.Kind() != reflect.String {
			return nil, false
		}
		out[k.String()] = iter.Value().Interface()
	}
	return out, true
}

// cloneValue deep-copies maps and slices so injected defaults are never
// shared between validated records.
func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(v)
	}
	return val
}
