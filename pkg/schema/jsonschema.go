package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// compiled holds every JSON Schema document compiled so far, keyed by its
// encoding. Shapes are rebuilt on every Validate call; the documents they
// produce are not.
var compiled sync.Map

func compile(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	if s, ok := compiled.Load(string(raw)); ok {
		return s.(*jsonschema.Schema), nil
	}

	s, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	actual, _ := compiled.LoadOrStore(string(raw), s)
	return actual.(*jsonschema.Schema), nil
}

// Document renders shape as a JSON Schema object document. Function and
// opaque fields accept any value; their checks run outside the document.
func Document(shape Shape) map[string]any {
	return objectDocument(shape)
}

func objectDocument(shape Shape) map[string]any {
	doc := map[string]any{"type": "object"}

	var required []string
	dependent := map[string][]string{}
	props := make(map[string]any, len(shape))
	for _, name := range sortedKeys(shape) {
		rule := shape[name]
		if rule.required {
			required = append(required, name)
		}
		for _, sibling := range rule.requiredIf {
			dependent[sibling] = append(dependent[sibling], name)
		}
		props[name] = rule.document(true)
	}

	if len(props) > 0 {
		doc["properties"] = props
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if len(dependent) > 0 {
		doc["dependentRequired"] = dependent
	}
	return doc
}

// document renders r. With deep unset only the value's own type and default
// are described, not its items or properties.
func (r *Rule) document(deep bool) map[string]any {
	doc := map[string]any{}
	switch r.kind {
	case KindString:
		doc["type"] = "string"
	case KindBoolean:
		doc["type"] = "boolean"
	case KindInteger:
		doc["type"] = "integer"
	case KindArray:
		doc["type"] = "array"
		if deep && r.of != nil {
			doc["items"] = r.of.document(true)
		}
	case KindObject:
		if deep && r.shape != nil {
			doc = objectDocument(r.shape)
		} else {
			doc["type"] = "object"
		}
	}
	if r.hasDef && r.native() {
		doc["default"] = r.def
	}
	return doc
}

// native reports whether r describes a JSON value the compiled document can
// check.
func (r *Rule) native() bool {
	return r.kind != KindFunc && r.kind != KindOpaque
}

// typeSchema is the compiled document checking a single value against r.
func (r *Rule) typeSchema() (*jsonschema.Schema, error) {
	return compile(r.document(false))
}

// defaultValue returns the default as the compiled document carries it.
func (r *Rule) defaultValue() (any, error) {
	if !r.native() {
		return r.def, nil
	}
	s, err := r.typeSchema()
	if err != nil {
		return nil, err
	}
	return s.Default, nil
}

// presence projects in onto the keys holding a value, which is what the
// required and dependentRequired keywords look at.
func presence(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v != nil {
			out[k] = true
		}
	}
	return out
}

// jsonValue maps val onto the JSON data model one level deep: numbers become
// float64, maps map[string]any and slices []any. Values with no JSON
// counterpart report false.
func jsonValue(val any) (any, bool) {
	switch v := val.(type) {
	case string, bool, float64, map[string]any, []any:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, true
	case reflect.Map:
		return toStringMap(val)
	}
	return nil, false
}
