package interference

import (
	"fmt"
	"strings"

	"github.com/poku-e/foodadmin/internal/logger"
)

// Console is the page console surface.
type Console interface {
	Error(args ...any)
	Warn(args ...any)
	Log(args ...any)
	Info(args ...any)
	Debug(args ...any)
}

// JoinArgs joins console arguments with single spaces; nil arguments become
// empty strings.
func JoinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = signalText(a)
	}
	return strings.Join(parts, " ")
}

// BlocksConsole reports whether a console call with args must be dropped,
// and counts it when so.
func (f *Filter) BlocksConsole(args ...any) bool {
	msg := JoinArgs(args)
	if !f.IsRelated(msg) {
		return false
	}
	f.record(KindConsole, msg)
	return true
}

// FilteredConsole drops extension noise and forwards everything else.
type FilteredConsole struct {
	next   Console
	filter *Filter
}

// Console wraps next so that matching calls never reach it.
func (f *Filter) Console(next Console) *FilteredConsole {
	return &FilteredConsole{next: next, filter: f}
}

func (c *FilteredConsole) Error(args ...any) {
	if !c.filter.BlocksConsole(args...) {
		c.next.Error(args...)
	}
}

func (c *FilteredConsole) Warn(args ...any) {
	if !c.filter.BlocksConsole(args...) {
		c.next.Warn(args...)
	}
}

func (c *FilteredConsole) Log(args ...any) {
	if !c.filter.BlocksConsole(args...) {
		c.next.Log(args...)
	}
}

func (c *FilteredConsole) Info(args ...any) {
	if !c.filter.BlocksConsole(args...) {
		c.next.Info(args...)
	}
}

func (c *FilteredConsole) Debug(args ...any) {
	if !c.filter.BlocksConsole(args...) {
		c.next.Debug(args...)
	}
}

// LoggerConsole writes console calls to a structured logger. Log maps to
// info.
type LoggerConsole struct {
	Logger logger.Logger
}

func (c LoggerConsole) Error(args ...any) { c.Logger.Error(JoinArgs(args)) }
func (c LoggerConsole) Warn(args ...any)  { c.Logger.Warn(JoinArgs(args)) }
func (c LoggerConsole) Log(args ...any)   { c.Logger.Info(JoinArgs(args)) }
func (c LoggerConsole) Info(args ...any)  { c.Logger.Info(JoinArgs(args)) }
func (c LoggerConsole) Debug(args ...any) { c.Logger.Debug(JoinArgs(args)) }

// ConsoleLevel names a console method.
type ConsoleLevel string

const (
	ConsoleError ConsoleLevel = "error"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleLog   ConsoleLevel = "log"
	ConsoleInfo  ConsoleLevel = "info"
	ConsoleDebug ConsoleLevel = "debug"
)

// Call invokes the console method named by level.
func Call(c Console, level ConsoleLevel, args ...any) error {
	switch level {
	case ConsoleError:
		c.Error(args...)
	case ConsoleWarn:
		c.Warn(args...)
	case ConsoleLog, "":
		c.Log(args...)
	case ConsoleInfo:
		c.Info(args...)
	case ConsoleDebug:
		c.Debug(args...)
	default:
		return fmt.Errorf("unknown console level %q", level)
	}
	return nil
}
