package logbuf

import (
	"context"
	"log/slog"
)

// Handler tees slog records into a Buffer while delegating output to an
// inner handler. The buffer captures every level; the inner handler keeps
// its own filter.
type Handler struct {
	inner slog.Handler
	buf   *Buffer
	attrs []slog.Attr
}

// NewHandler wraps inner so every record is also captured in buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var attrs map[string]any
	put := func(a slog.Attr) {
		if attrs == nil {
			attrs = make(map[string]any)
		}
		attrs[a.Key] = flatten(a.Value)
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(a)
		return true
	})

	h.buf.Add(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

// flatten converts an attr value into something that JSON-marshals usefully.
// Errors in particular would otherwise serialize as {}.
func flatten(v slog.Value) any {
	v = v.Resolve()
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		buf:   h.buf,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

// WithGroup groups only affect the inner handler's rendering; buffered
// entries keep flat keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner: h.inner.WithGroup(name),
		buf:   h.buf,
		attrs: h.attrs,
	}
}
