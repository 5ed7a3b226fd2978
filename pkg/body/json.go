package body

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shashiranjanraj/serverkit/pkg/response"
)

type jsonKey struct{}

func isJSON(mt string) bool {
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// JSON parses application/json (and */*+json) bodies up to limit bytes.
// Oversized bodies get 413, malformed ones 400. Other requests pass through
// untouched.
func JSON(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) || !isJSON(mediaType(r)) {
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

			var v any
			if len(bytes.TrimSpace(raw)) > 0 {
				dec := json.NewDecoder(bytes.NewReader(raw))
				dec.UseNumber()
				if err := dec.Decode(&v); err != nil {
					response.Error(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
					return
				}
				if dec.More() {
					response.Error(w, http.StatusBadRequest, "invalid JSON: trailing data")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), jsonKey{}, parsedJSON{v})))
		})
	}
}

// JSONFrom returns the parsed JSON body. ok is false when the JSON parser
// did not handle the request. An empty body parses to nil.
func JSONFrom(r *http.Request) (v any, ok bool) {
	p, ok := r.Context().Value(jsonKey{}).(parsedJSON)
	return p.v, ok
}

type parsedJSON struct{ v any }

// Decode decodes the request body as JSON into dst. It can be called after
// the JSON middleware has consumed the body.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("body: empty body")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("body: decode: %w", err)
	}
	if r.GetBody != nil {
		if rc, err := r.GetBody(); err == nil {
			r.Body = rc
		}
	}
	return nil
}
