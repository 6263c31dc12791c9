package interference

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/poku-e/foodadmin/internal/logger"
)

func newTestFilter(opts ...Option) *Filter {
	return New(MustDenylist(DefaultRevision), opts...)
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestFilter_IsRelated(t *testing.T) {
	f := newTestFilter()

	assert.False(t, f.IsRelated(""))
	assert.True(t, f.IsRelated("Unchecked runtime.lastError: Could not establish connection"))
	assert.True(t, f.IsRelated("moz-extension://1234/content.js"))
	assert.False(t, f.IsRelated("TypeError: cannot read properties of undefined"))

	assert.True(t, f.IsRelated("Unchecked runtime.lastError: message channel closed"))
	assert.False(t, f.IsRelated("Null pointer in application code"))
	assert.True(t, f.IsRelated("https://chrome-extension://abcd/page.html"))
}

func TestFilter_IsRelatedValue(t *testing.T) {
	f := newTestFilter()
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"string", "background page missing", true},
		{"error", errors.New("message channel closed before a response"), true},
		{"stringer", stringer("sendMessageToTab failed"), true},
		{"number", 42, false},
		{"unrelated error", fmt.Errorf("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IsRelatedValue(tt.v))
		})
	}
}

func TestFilter_SnapshotAndReset(t *testing.T) {
	f := newTestFilter(WithJournal(10))

	f.HandleError(&ErrorEvent{Message: "runtime.lastError"})
	f.HandleRejection(&RejectionEvent{Reason: "extension port closed"})
	f.BlocksRequest("chrome-extension://abc/x.json")
	f.BlocksConsole("background page")
	f.BlocksListener(MessageEvent, "function(){ chrome-extension:// }")

	s := f.Snapshot()
	assert.Equal(t, Stats{
		ErrorsBlocked:     1,
		RejectionsBlocked: 1,
		RequestsBlocked:   1,
		ConsoleDropped:    1,
		ListenersRefused:  1,
		Total:             5,
	}, s)
	assert.Equal(t, 5, f.Journal().Len())

	f.Reset()
	assert.Equal(t, Stats{}, f.Snapshot())
	assert.Equal(t, 0, f.Journal().Len())
}

func TestFilter_InstancesAreIndependent(t *testing.T) {
	a := newTestFilter()
	b := newTestFilter()

	a.BlocksConsole("runtime.lastError")
	assert.Equal(t, int64(1), a.Snapshot().Total)
	assert.Equal(t, int64(0), b.Snapshot().Total)
}

func TestFilter_ConcurrentCounting(t *testing.T) {
	f := newTestFilter(WithJournal(8))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.BlocksRequest("chrome-extension://x")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1600), f.Snapshot().RequestsBlocked)
	assert.Equal(t, 8, f.Journal().Len())
}

func TestFilter_DebugLogIsThrottled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newTestFilter(WithLogger(logger.FromZap(zap.New(core))))

	for i := 0; i < 50; i++ {
		f.BlocksConsole("runtime.lastError")
	}
	assert.Equal(t, int64(50), f.Snapshot().ConsoleDropped)
	assert.Equal(t, 20, logs.FilterMessage("suppressed extension signal").Len())
}

func TestHandleError(t *testing.T) {
	f := newTestFilter()
	tests := []struct {
		name  string
		event ErrorEvent
		want  bool
	}{
		{"message", ErrorEvent{Message: "Unchecked runtime.lastError"}, true},
		{"filename", ErrorEvent{Message: "Script error.", Filename: "chrome-extension://abc/content.js"}, true},
		{"source", ErrorEvent{Message: "x", Source: "contentScript.js"}, true},
		{"unrelated", ErrorEvent{Message: "ReferenceError: foo is not defined", Filename: "/static/js/admin.js"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			assert.Equal(t, tt.want, f.HandleError(&e))
			assert.Equal(t, tt.want, e.DefaultPrevented())
			assert.Equal(t, tt.want, e.PropagationStopped())
		})
	}
	assert.Equal(t, int64(3), f.Snapshot().ErrorsBlocked)
	assert.False(t, f.HandleError(nil))
}

func TestHandleRejection(t *testing.T) {
	f := newTestFilter()

	e := &RejectionEvent{Reason: errors.New("The message channel closed before a response was received")}
	assert.True(t, f.HandleRejection(e))
	assert.True(t, e.DefaultPrevented())
	assert.True(t, e.PropagationStopped())

	absent := &RejectionEvent{}
	assert.False(t, f.HandleRejection(absent))
	assert.False(t, absent.DefaultPrevented())

	assert.False(t, f.HandleRejection(&RejectionEvent{Reason: "HTTP 500"}))
	assert.Equal(t, int64(1), f.Snapshot().RejectionsBlocked)
}

type spyConsole struct {
	calls []string
}

func (s *spyConsole) rec(level string, args []any) {
	s.calls = append(s.calls, level+": "+JoinArgs(args))
}

func (s *spyConsole) Error(args ...any) { s.rec("error", args) }
func (s *spyConsole) Warn(args ...any)  { s.rec("warn", args) }
func (s *spyConsole) Log(args ...any)   { s.rec("log", args) }
func (s *spyConsole) Info(args ...any)  { s.rec("info", args) }
func (s *spyConsole) Debug(args ...any) { s.rec("debug", args) }

func TestFilteredConsole(t *testing.T) {
	f := newTestFilter()
	spy := &spyConsole{}
	c := f.Console(spy)

	c.Error("Unchecked", "runtime.lastError:", "port closed")
	c.Warn("chart data", 3, nil)
	c.Log("extension port moved")
	c.Info("loaded", 12, "foods")
	c.Debug(errors.New("background page unavailable"))

	assert.Equal(t, []string{
		"warn: chart data 3 ",
		"info: loaded 12 foods",
	}, spy.calls)
	assert.Equal(t, int64(3), f.Snapshot().ConsoleDropped)
}

func TestCall(t *testing.T) {
	spy := &spyConsole{}
	require.NoError(t, Call(spy, ConsoleWarn, "a"))
	require.NoError(t, Call(spy, "", "b"))
	assert.Error(t, Call(spy, "trace", "c"))
	assert.Equal(t, []string{"warn: a", "log: b"}, spy.calls)
}

func TestLoggerConsole(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := LoggerConsole{Logger: logger.FromZap(zap.New(core))}

	c.Log("hello", "world")
	c.Error("boom")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello world", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestNewCore(t *testing.T) {
	f := newTestFilter()
	inner, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(NewCore(inner, f))

	log.Info("request served", zap.String("path", "/api/foods"))
	log.Warn("browser error", zap.String("message", "Unchecked runtime.lastError"))
	log.Error("Could not establish connection: background page")
	log.Error("proxied", zap.Error(errors.New("message channel closed")))
	log.With(zap.String("origin", "chrome-extension://abc")).Info("beacon")
	log.Debug("below level runtime.lastError")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "request served", logs.All()[0].Message)
	assert.Equal(t, int64(4), f.Snapshot().ConsoleDropped)
}

func TestNewCore_KeepsSampling(t *testing.T) {
	f := newTestFilter()
	inner, logs := observer.New(zapcore.InfoLevel)
	sampled := zapcore.NewSamplerWithOptions(inner, time.Minute, 2, 0)
	log := zap.New(NewCore(sampled, f))

	for range 100 {
		log.Info("catalog reloaded")
	}
	assert.Equal(t, 2, logs.Len())

	log.Info("Unchecked runtime.lastError")
	assert.Equal(t, 2, logs.Len())
	assert.EqualValues(t, 1, f.Snapshot().ConsoleDropped)
}

func TestJournal_RecentNewestFirst(t *testing.T) {
	j := NewJournal(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		j.add(KindConsole, s)
	}

	got := j.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].Signal)
	assert.Equal(t, "b", got[2].Signal)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Len(t, j.Recent(1), 1)
}
