package log

import (
	"go.uber.org/zap/zapcore"
)

// unfilteredCore wraps a core so Check accepts every entry regardless of
// level. The logger applies the level filter itself so debug subsystems can
// bypass it.
type unfilteredCore struct {
	inner zapcore.Core
}

func (c *unfilteredCore) Enabled(lvl zapcore.Level) bool {
	return c.inner.Enabled(lvl)
}

func (c *unfilteredCore) With(fields []zapcore.Field) zapcore.Core {
	return &unfilteredCore{inner: c.inner.With(fields)}
}

func (c *unfilteredCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(ent, c.inner)
}

func (c *unfilteredCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.inner.Write(ent, fields)
}

func (c *unfilteredCore) Sync() error {
	return c.inner.Sync()
}
