package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SendFunc delivers one plain-text message to the logs chat.
type SendFunc func(ctx context.Context, text string) error

// mirrorHandler wraps another slog.Handler and forwards records at or
// above slog.LevelWarn to a Telegram chat. Delivery is best-effort: a
// failed send never fails the log call.
type mirrorHandler struct {
	inner slog.Handler
	send  SendFunc
	attrs []slog.Attr
}

// WithChatMirror returns a logger whose warning and error records are
// additionally sent through send. The returned logger shares the original
// logger's handler for console output.
func WithChatMirror(log *slog.Logger, send SendFunc) *slog.Logger {
	return slog.New(&mirrorHandler{inner: log.Handler(), send: send})
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *mirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelWarn {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] %s", record.Level, record.Message)
		for _, attr := range h.attrs {
			fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
		}
		record.Attrs(func(attr slog.Attr) bool {
			fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
			return true
		})
		// Errors are swallowed on purpose: the mirror must never take
		// down the component that is trying to log.
		_ = h.send(ctx, sb.String())
	}
	return h.inner.Handle(ctx, record)
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &mirrorHandler{inner: h.inner.WithAttrs(attrs), send: h.send, attrs: merged}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{inner: h.inner.WithGroup(name), send: h.send, attrs: h.attrs}
}
