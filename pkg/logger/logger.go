// Package logger configures the process-wide slog logger and carries
// request-scoped attributes (request ID, book, search session) through a
// context so every log line of one search can be correlated.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type (
	requestIDKey struct{}
	loggerKey    struct{}
)

func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination. The stdio MCP server
// and the CLI log to stderr because stdout carries their output.
func SetupWriter(w io.Writer, level string, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID stores id and adds it to the context logger.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return With(ctx, "request_id", id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// With returns a context whose logger carries args in addition to those
// already attached. Empty string values are dropped so optional fields
// such as a missing session do not clutter the output.
func With(ctx context.Context, args ...any) context.Context {
	kept := make([]any, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		if s, ok := args[i+1].(string); ok && s == "" {
			continue
		}
		kept = append(kept, args[i], args[i+1])
	}
	if len(kept) == 0 {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, FromContext(ctx).With(kept...))
}

// FromContext returns the logger attached by With, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ParseLevel accepts slog level names in any case, including offsets such
// as "debug+2". Unknown names mean info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
