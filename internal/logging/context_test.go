package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", Slug(ctx))
	assert.Equal(t, "", Scenario(ctx))
	assert.Equal(t, "", SessionID(ctx))

	ctx = WithSlug(ctx, "checkout")
	ctx = WithScenario(ctx, "spike")
	ctx = WithSessionID(ctx, "sess-42")

	assert.Equal(t, "checkout", Slug(ctx))
	assert.Equal(t, "spike", Scenario(ctx))
	assert.Equal(t, "sess-42", SessionID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "checkout", "failover", "sess-7")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "slug=checkout")
	assert.Contains(t, output, "scenario=failover")
	assert.Contains(t, output, "session_id=sess-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Only the slug is set.
	LogWith(WithSlug(context.Background(), "only"), logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "slug=only")
	assert.NotContains(t, output, "scenario=")
	assert.NotContains(t, output, "session_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "checkout", "cache", "sess-auto")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"slug":"checkout"`)
	assert.Contains(t, output, `"scenario":"cache"`)
	assert.Contains(t, output, `"session_id":"sess-auto"`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "slug")
	assert.NotContains(t, output, "session_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "viewer")}).WithGroup("req"))

	logger.InfoContext(WithSlug(context.Background(), "grp"), "grouped", "path", "/")

	output := buf.String()
	assert.Contains(t, output, `"component":"viewer"`)
	assert.Contains(t, output, "grp")
}

func TestCorrelationHandlerSkipsBoundKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With(KeySessionID, "sess-1", KeySlug, "checkout")

	logger.WarnContext(WithIDs(context.Background(), "checkout", "spike", "sess-1"), "once")

	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, `"session_id"`))
	assert.Equal(t, 1, strings.Count(output, `"slug"`))
	assert.Contains(t, output, `"scenario":"spike"`, "unbound ids still come from the context")
}

func TestCorrelationHandlerGroupedAttrsDoNotBind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		WithGroup("req").With(KeySlug, "inner")

	logger.InfoContext(WithSlug(context.Background(), "outer"), "nested")

	assert.Contains(t, buf.String(), `"slug":"inner"`)
	assert.Contains(t, buf.String(), `"slug":"outer"`)
}

func TestWithSlugKeepsOtherIDs(t *testing.T) {
	ctx := WithIDs(context.Background(), "a", "baseline", "s1")
	ctx = WithSlug(ctx, "b")

	assert.Equal(t, "b", Slug(ctx))
	assert.Equal(t, "baseline", Scenario(ctx))
	assert.Equal(t, "s1", SessionID(ctx))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.WarnContext(WithSessionID(context.Background(), "s1"), "shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, `"session_id":"s1"`)

	buf.Reset()
	NewLogger(&buf, "debug", "text").Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := NewLeveledLogger(&buf, level, "text")

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelInfo)
	logger.Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
