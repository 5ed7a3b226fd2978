// Package body parses JSON and urlencoded request bodies ahead of the
// handlers, like the body-parser middleware of Express.
//
//	r.Use(body.JSON(limit))
//	r.Use(body.URLEncoded(true, limit))
//
// Parsed values are stored in the request context (JSONFrom, FormFrom) and
// the raw body is put back so handlers may decode it again.
package body

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/docker/go-units"
)

// DefaultLimit is the body size limit applied when none is configured.
const DefaultLimit = "100mb"

var errTooLarge = errors.New("body: request entity too large")

// ParseLimit converts a human size such as "100mb" or "512kb" into bytes.
// Multiples are binary (1kb = 1024 bytes). A bare number is taken as bytes.
func ParseLimit(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("body: invalid limit %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("body: limit %q must be positive", s)
	}
	return n, nil
}

// mediaType returns the lower-cased media type of r, or "".
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

// readLimited reads at most limit bytes of r.Body and restores it for the
// next reader.
func readLimited(r *http.Request, limit int64) ([]byte, error) {
	if r.ContentLength > limit {
		return nil, errTooLarge
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("body: read: %w", err)
	}
	if int64(len(raw)) > limit {
		return nil, errTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return raw, nil
}
