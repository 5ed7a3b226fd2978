// Package schema validates declarative settings records and injects their
// defaults.
//
// A Shape maps field names to rules. Rules are built fluently:
//
//	shape := schema.Shape{
//	    "viewEngine": schema.String().RequiredWith("viewsPath"),
//	    "viewsPath":  schema.String().RequiredWith("viewEngine"),
//	    "port":       schema.Integer().Default(8080),
//	    "session": schema.Object(schema.Shape{
//	        "secret": schema.String().Required(),
//	        "resave": schema.Boolean().Default(false),
//	    }),
//	}
//
//	out, err := schema.Validate(settings, shape)
//
// Each shape renders to a JSON Schema document (required, dependentRequired,
// type and default keywords) that is compiled and evaluated with
// github.com/kaptinlin/jsonschema. Conditional requirements are always
// evaluated against the input record as the caller supplied it, never
// against a partially defaulted copy.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the value type a Rule accepts.
type Kind int

const (
	KindString Kind = iota
	KindBoolean
	KindInteger
	KindFunc
	KindArray
	KindObject
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFunc:
		return "function"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindOpaque:
		return "value"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shape declares the fields of an object.
type Shape map[string]*Rule

// CheckFunc is an extra constraint run on a present, well-typed value.
type CheckFunc func(v any) error

// Rule describes one field.
type Rule struct {
	kind  Kind
	of    *Rule
	shape Shape

	required   bool
	requiredIf []string

	def    any
	hasDef bool

	checks []CheckFunc
}

func String() *Rule  { return &Rule{kind: KindString} }
func Boolean() *Rule { return &Rule{kind: KindBoolean} }
func Integer() *Rule { return &Rule{kind: KindInteger} }
func Func() *Rule    { return &Rule{kind: KindFunc} }

// Opaque accepts any non-nil value. Use it for handles the validator cannot
// inspect, such as a store client.
func Opaque() *Rule { return &Rule{kind: KindOpaque} }

// Array accepts a slice whose elements all satisfy of. A nil of accepts any
// element.
func Array(of *Rule) *Rule { return &Rule{kind: KindArray, of: of} }

// Object accepts a map[string]any validated against shape.
func Object(shape Shape) *Rule { return &Rule{kind: KindObject, shape: shape} }

// Required marks the field as unconditionally required.
func (r *Rule) Required() *Rule {
	r.required = true
	return r
}

// RequiredWith marks the field as required only when any of the named
// sibling fields is declared.
func (r *Rule) RequiredWith(fields ...string) *Rule {
	r.requiredIf = append(r.requiredIf, fields...)
	return r
}

// Default sets the value injected when the field is absent.
func (r *Rule) Default(v any) *Rule {
	r.def = v
	r.hasDef = true
	return r
}

// Check adds a constraint evaluated after the type check.
func (r *Rule) Check(fn CheckFunc) *Rule {
	r.checks = append(r.checks, fn)
	return r
}

// Kind returns the accepted value type.
func (r *Rule) Kind() Kind { return r.kind }

func (r *Rule) describe() string {
	switch r.kind {
	case KindArray:
		if r.of != nil {
			return "array of " + r.of.describe()
		}
	case KindObject:
		if len(r.shape) > 0 {
			names := sortedKeys(r.shape)
			return "object {" + strings.Join(names, ", ") + "}"
		}
	}
	return r.kind.String()
}
