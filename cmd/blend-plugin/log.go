package main

import (
	"context"
	"log/slog"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// serviceHandler forwards slog records to a Benthos logger, which applies
// its own level filtering.
type serviceHandler struct {
	logger *service.Logger
	attrs  []any
	prefix string
}

func newSlogLogger(l *service.Logger) *slog.Logger {
	return slog.New(&serviceHandler{logger: l})
}

func (h *serviceHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *serviceHandler) Handle(_ context.Context, r slog.Record) error {
	kv := append([]any(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		kv = flatten(kv, h.prefix, a)
		return true
	})
	l := h.logger
	if len(kv) > 0 {
		l = l.With(kv...)
	}
	switch {
	case r.Level < slog.LevelInfo:
		l.Debug(r.Message)
	case r.Level < slog.LevelWarn:
		l.Info(r.Message)
	case r.Level < slog.LevelError:
		l.Warn(r.Message)
	default:
		l.Error(r.Message)
	}
	return nil
}

func (h *serviceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	kv := append([]any(nil), h.attrs...)
	for _, a := range attrs {
		kv = flatten(kv, h.prefix, a)
	}
	return &serviceHandler{logger: h.logger, attrs: kv, prefix: h.prefix}
}

func (h *serviceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &serviceHandler{logger: h.logger, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// flatten appends a as key/value pairs, expanding groups into dotted keys.
func flatten(kv []any, prefix string, a slog.Attr) []any {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return kv
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			kv = flatten(kv, p, ga)
		}
		return kv
	}
	return append(kv, prefix+a.Key, a.Value.Any())
}
