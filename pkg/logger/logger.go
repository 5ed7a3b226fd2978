// Package logger provides the structured, levelled slog logger shared by the
// server and its middleware.
//
// Development builds log human-readable text at DEBUG; production builds
// (APP_ENV=production) log JSON at INFO. When LOG_MONGO_URI is set, every
// record is also shipped asynchronously to MongoDB.
//
// Request handlers get a logger already tagged with the request id:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("rendered view", "view", name)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/shashiranjanraj/serverkit/config"
)

var L *slog.Logger

// closers holds sinks that must be flushed on shutdown.
var closers []func()

func init() {
	L = New(os.Stdout, config.IsProduction())

	if uri := config.LogMongoURI(); uri != "" {
		sink, err := NewMongoHandler(uri, config.LogMongoDB(), "logs")
		if err != nil {
			L.Warn("logger: mongo sink disabled", "error", err)
		} else {
			L = slog.New(NewMultiHandler(L.Handler(), sink))
			closers = append(closers, sink.Close)
		}
	}

	slog.SetDefault(L)
}

// New builds a logger writing to w: JSON at INFO when production is set,
// text at DEBUG otherwise.
func New(w io.Writer, production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Close flushes asynchronous sinks.
func Close() {
	for _, c := range closers {
		c()
	}
	closers = nil
}

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger stored in ctx by InjectLogger, or the base
// logger when there is none.
func WithCtx(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores log in ctx. Called by the request logging middleware.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// ─────────────────────────────────────────────
// Short-hand helpers (use base logger)
// ─────────────────────────────────────────────

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
