package logbridge

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CategoryKey is the zap field key that pins an entry's category.
const CategoryKey = "category"

// Field attaches an explicit category to a zap log entry.
func Field(c Category) zap.Field {
	return zap.String(CategoryKey, string(c))
}

// CoreOption tunes the zap core returned by Core.
type CoreOption func(*core)

// WithExcludedLoggers skips entries from loggers whose name starts with any of
// the given prefixes, e.g. per-request API logs.
func WithExcludedLoggers(prefixes ...string) CoreOption {
	return func(c *core) {
		c.excluded = append(c.excluded, prefixes...)
	}
}

// Core returns a zapcore.Core that records every enabled entry in the bridge.
// Tee it with the console core so log output is captured and still printed.
func Core(b *Bridge, enab zapcore.LevelEnabler, opts ...CoreOption) zapcore.Core {
	c := &core{LevelEnabler: enab, bridge: b}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type core struct {
	zapcore.LevelEnabler
	bridge   *Bridge
	category Category
	excluded []string
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	if cat, ok := categoryFrom(fields); ok {
		clone.category = cat
	}
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) || c.isExcluded(ent.LoggerName) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	category := c.category
	if cat, ok := categoryFrom(fields); ok {
		category = cat
	}
	if category == "" {
		category = classifyEntry(ent)
	}
	c.bridge.emitAt(category, ent.Message, ent.Time)
	return nil
}

func (c *core) Sync() error {
	return nil
}

func (c *core) isExcluded(name string) bool {
	for _, prefix := range c.excluded {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// classifyEntry prefers text markers and falls back to the zap level when the
// message carries none.
func classifyEntry(ent zapcore.Entry) Category {
	category := Classify(ent.Message)
	if category != CategoryInfo {
		return category
	}
	switch {
	case ent.Level >= zapcore.ErrorLevel:
		return CategoryError
	case ent.Level == zapcore.WarnLevel:
		return CategoryWarning
	default:
		return CategoryInfo
	}
}

func categoryFrom(fields []zapcore.Field) (Category, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if f.Key != CategoryKey || f.Type != zapcore.StringType {
			continue
		}
		if cat, ok := ParseCategory(f.String); ok {
			return cat, true
		}
	}
	return "", false
}
