package interference

import (
	"go.uber.org/zap/zapcore"
)

// noiseCore drops log entries whose message or string fields carry extension
// noise, e.g. a proxied browser error that made it into the server log.
type noiseCore struct {
	zapcore.Core
	filter  *Filter
	context []string
}

// NewCore wraps core so that matching entries are counted as dropped console
// output and never written. Install with zap.WrapCore.
func NewCore(core zapcore.Core, f *Filter) zapcore.Core {
	return &noiseCore{Core: core, filter: f}
}

func (c *noiseCore) With(fields []zapcore.Field) zapcore.Core {
	ctx := append(append([]string(nil), c.context...), stringValues(fields)...)
	return &noiseCore{Core: c.Core.With(fields), filter: c.filter, context: ctx}
}

// Check defers to the wrapped core first so its sampling and level decisions
// still apply.
func (c *noiseCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(ent, nil) != nil {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *noiseCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	for _, s := range c.signals(ent, fields) {
		if c.filter.IsRelated(s) {
			c.filter.record(KindConsole, s)
			return nil
		}
	}
	return c.Core.Write(ent, fields)
}

func (c *noiseCore) signals(ent zapcore.Entry, fields []zapcore.Field) []string {
	out := make([]string, 0, 1+len(c.context)+len(fields))
	out = append(out, ent.Message)
	out = append(out, c.context...)
	return append(out, stringValues(fields)...)
}

func stringValues(fields []zapcore.Field) []string {
	var out []string
	for _, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			out = append(out, f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				out = append(out, err.Error())
			}
		case zapcore.StringerType:
			out = append(out, signalText(f.Interface))
		}
	}
	return out
}
