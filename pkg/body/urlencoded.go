package body

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shashiranjanraj/serverkit/pkg/response"
)

type formKey struct{}

const (
	// maxDepth bounds bracket nesting; deeper segments stay a literal key.
	maxDepth = 5
	// maxIndex is the largest a[N] index turned into an array slot.
	maxIndex = 20
)

// URLEncoded parses application/x-www-form-urlencoded bodies up to limit
// bytes. With extended set, bracketed keys nest: a[b]=c yields
// {"a": {"b": "c"}} and a[]=1&a[]=2 yields {"a": ["1", "2"]}. Without it,
// keys are flat and repeated keys collect into a []string.
//
// r.PostForm and r.Form are filled with the flat values as well.
func URLEncoded(extended bool, limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) || mediaType(r) != "application/x-www-form-urlencoded" {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := readLimited(r, limit)
			if errors.Is(err, errTooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body too large (max %d bytes)", limit))
				return
			}
			if err != nil {
				response.Error(w, http.StatusBadRequest, err.Error())
				return
			}

			values, err := url.ParseQuery(string(raw))
			if err != nil {
				response.Error(w, http.StatusBadRequest, "invalid form body: "+err.Error())
				return
			}

			var form map[string]any
			if extended {
				form = ParseExtended(values)
			} else {
				form = ParseSimple(values)
			}

			r.PostForm = values
			if r.Form == nil {
				r.Form = url.Values{}
			}
			for k, vs := range values {
				r.Form[k] = append(r.Form[k], vs...)
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), formKey{}, form)))
		})
	}
}

// FormFrom returns the parsed form body, or nil when the urlencoded parser
// did not handle the request.
func FormFrom(r *http.Request) map[string]any {
	form, _ := r.Context().Value(formKey{}).(map[string]any)
	return form
}

// ParseSimple flattens values: single values become strings, repeated keys
// a []string.
func ParseSimple(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = append([]string(nil), vs...)
		}
	}
	return out
}

// ParseExtended nests bracketed keys into maps and slices.
func ParseExtended(values url.Values) map[string]any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]any{}
	for _, k := range keys {
		path := splitKey(k)
		for _, v := range values[k] {
			assign(root, path, v)
		}
	}
	for k, child := range root {
		root[k] = compact(child)
	}
	return root
}

// splitKey turns "a[b][]" into ["a", "b", ""]. Keys without a well-formed
// bracket suffix are returned whole.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return []string{key}
	}

	path := []string{key[:open]}
	rest := key[open:]
	for rest != "" && len(path)-1 < maxDepth {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		path = append(path, rest)
	}
	return path
}

func assign(node map[string]any, path []string, value string) {
	key := path[0]
	if key == "" {
		key = strconv.Itoa(len(node))
	}

	if len(path) == 1 {
		switch existing := node[key].(type) {
		case nil:
			node[key] = value
		case string:
			node[key] = []string{existing, value}
		case []string:
			node[key] = append(existing, value)
		case map[string]any:
			existing[strconv.Itoa(len(existing))] = value
		default:
			node[key] = value
		}
		return
	}

	var child map[string]any
	switch existing := node[key].(type) {
	case map[string]any:
		child = existing
	case string:
		// a=1&a[b]=2 keeps the plain value at index 0: {"0": "1", "b": "2"}.
		child = map[string]any{"0": existing}
	case []string:
		child = make(map[string]any, len(existing))
		for i, s := range existing {
			child[strconv.Itoa(i)] = s
		}
	default:
		child = map[string]any{}
	}
	node[key] = child
	assign(child, path[1:], value)
}

// compact converts maps whose keys are all small indexes into slices
// ordered by index.
func compact(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = compact(child)
	}
	if len(m) == 0 {
		return m
	}

	idx := make([]int, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 || n > maxIndex || strconv.Itoa(n) != k {
			return m
		}
		idx = append(idx, n)
	}
	sort.Ints(idx)

	out := make([]any, 0, len(idx))
	for _, n := range idx {
		val := m[strconv.Itoa(n)]
		if vs, ok := val.([]string); ok {
			for _, s := range vs {
				out = append(out, s)
			}
			continue
		}
		out = append(out, val)
	}
	return out
}
