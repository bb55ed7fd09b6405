// Package logging carries diagram, scenario and session correlation ids
// through contexts into slog records.
package logging

import (
	"context"
	"log/slog"
	"slices"
)

// Attribute keys of the correlation ids.
const (
	KeySlug      = "slug"
	KeyScenario  = "scenario"
	KeySessionID = "session_id"
)

type idsKey struct{}

// ids is the correlation set stored in a context. Unset fields are empty.
type ids struct {
	slug, scenario, session string
}

func fromContext(ctx context.Context) ids {
	v, _ := ctx.Value(idsKey{}).(ids)
	return v
}

func (c ids) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 3)
	for _, kv := range [...][2]string{
		{KeySlug, c.slug},
		{KeyScenario, c.scenario},
		{KeySessionID, c.session},
	} {
		if kv[1] != "" {
			out = append(out, slog.String(kv[0], kv[1]))
		}
	}
	return out
}

func update(ctx context.Context, fn func(*ids)) context.Context {
	c := fromContext(ctx)
	fn(&c)
	return context.WithValue(ctx, idsKey{}, c)
}

// WithSlug tags ctx with a diagram slug.
func WithSlug(ctx context.Context, slug string) context.Context {
	return update(ctx, func(c *ids) { c.slug = slug })
}

// WithScenario tags ctx with a scenario id.
func WithScenario(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *ids) { c.scenario = id })
}

// WithSessionID tags ctx with a playback session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return update(ctx, func(c *ids) { c.session = id })
}

// WithIDs tags ctx with all three ids.
func WithIDs(ctx context.Context, slug, scenario, sessionID string) context.Context {
	return context.WithValue(ctx, idsKey{}, ids{slug: slug, scenario: scenario, session: sessionID})
}

// Slug, Scenario and SessionID read an id back from ctx; absent ids are "".
func Slug(ctx context.Context) string { return fromContext(ctx).slug }
func Scenario(ctx context.Context) string { return fromContext(ctx).scenario }
func SessionID(ctx context.Context) string { return fromContext(ctx).session }

// LogWith binds the ids found in ctx to logger.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := fromContext(ctx).attrs()
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds the ids of the record's context to every record,
// except ids the logger already carries through With.
type CorrelationHandler struct {
	inner slog.Handler
	bound []string // correlation keys attached at the top level
	group bool     // a group is open; later attrs are nested
}

// NewCorrelationHandler wraps inner. NewLogger installs it on every logger it
// builds, so logger.InfoContext(ctx, ...) is enough to tag a record.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range fromContext(ctx).attrs() {
		if !slices.Contains(h.bound, a.Key) {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := slices.Clone(h.bound)
	if !h.group {
		for _, a := range attrs {
			switch a.Key {
			case KeySlug, KeyScenario, KeySessionID:
				bound = append(bound, a.Key)
			}
		}
	}
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs), bound: bound, group: h.group}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CorrelationHandler{inner: h.inner.WithGroup(name), bound: h.bound, group: true}
}
