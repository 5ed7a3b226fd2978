package hmr

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
	"github.com/shashiranjanraj/serverkit/pkg/metrics"
	"github.com/shashiranjanraj/serverkit/pkg/sse"
	"github.com/shashiranjanraj/serverkit/pkg/ws"
)

const (
	// DefaultPath is where hot-reload clients connect.
	DefaultPath = "/__webpack_hmr"
	// DefaultHeartbeat is the keep-alive interval on the event stream.
	DefaultHeartbeat = 10 * time.Second

	heartbeatPayload = "\U0001F493"
)

// HotOptions configures the hot-reload endpoint.
type HotOptions struct {
	Path      string
	Heartbeat time.Duration
}

// Hot pushes build events to browsers over Server-Sent Events, or over a
// WebSocket when the client asks for an upgrade.
type Hot struct {
	c    *Compiler
	opts HotOptions
	hub  *ws.Hub

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHot(c *Compiler, opts HotOptions) *Hot {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hot{c: c, opts: opts, hub: ws.NewHub(), ctx: ctx, cancel: cancel}
	h.hub.OnConnect = func(cl *ws.Client) {
		if ev, ok := c.SyncEvent(); ok {
			if b, err := json.Marshal(ev); err == nil {
				cl.Send(b)
			}
		}
	}
	h.hub.OnCountChange = func(n int) {
		metrics.HMRClients.WithLabelValues("websocket").Set(float64(n))
	}
	return h
}

func (h *Hot) Options() HotOptions { return h.opts }

// Start runs the WebSocket hub and forwards build events to it until Close.
func (h *Hot) Start() {
	events, unsubscribe := h.c.Subscribe()
	go h.hub.Run(h.ctx)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-h.ctx.Done():
				return
			case ev := <-events:
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				h.hub.Broadcast(b)
			}
		}
	}()
}

// Close disconnects every client.
func (h *Hot) Close() {
	h.cancel()
}

// Middleware answers requests for the hot-reload path and passes everything
// else on.
func (h *Hot) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != h.opts.Path {
			next.ServeHTTP(w, r)
			return
		}
		if ws.IsUpgrade(r) {
			if _, err := h.hub.Upgrade(w, r); err != nil {
				logger.WithCtx(r.Context()).Warn("hmr: websocket upgrade failed", "error", err)
			}
			return
		}
		h.serveSSE(w, r)
	})
}

func (h *Hot) serveSSE(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := h.c.Subscribe()
	defer unsubscribe()

	stream, err := sse.New(w, r)
	if err != nil {
		return
	}

	gauge := metrics.HMRClients.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	if ev, ok := h.c.SyncEvent(); ok {
		if err := stream.JSON(ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Done():
			return
		case <-h.ctx.Done():
			return
		case ev := <-events:
			if err := stream.JSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.Data(heartbeatPayload); err != nil {
				return
			}
		}
	}
}
