// Package sse writes Server-Sent Events streams.
//
// Usage:
//
//	stream, err := sse.New(w, r)
//	if err != nil { return }
//	stream.Send("update", map[string]any{"tick": 1})
//	<-stream.Done()
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotSupported is returned by New when w cannot flush.
var ErrNotSupported = errors.New("sse: streaming not supported")

// Stream represents an active SSE connection to one client. It is not safe
// for concurrent writers.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

// New writes the SSE headers and flushes them to the client.
func New(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return nil, ErrNotSupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}, nil
}

// Send writes a named event with a JSON-encoded payload.
func (s *Stream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	return s.write("event: %s\ndata: %s\n\n", event, payload)
}

// Data writes an unnamed event. Multi-line payloads are split into several
// data lines.
func (s *Stream) Data(payload string) error {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return s.write("%s", b.String())
}

// JSON writes an unnamed event with a JSON-encoded payload.
func (s *Stream) JSON(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	return s.Data(string(payload))
}

// Comment writes an SSE comment line.
func (s *Stream) Comment(msg string) error {
	return s.write(": %s\n\n", msg)
}

// Done is closed when the client goes away.
func (s *Stream) Done() <-chan struct{} { return s.r.Context().Done() }

func (s *Stream) write(format string, args ...any) error {
	select {
	case <-s.Done():
		return s.r.Context().Err()
	default:
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	s.flusher.Flush()
	return nil
}
