package jshost

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poku-e/foodadmin/internal/interference"
)

type recordingConsole struct{ lines []string }

func (c *recordingConsole) add(level string, args []any) {
	c.lines = append(c.lines, level+" "+interference.JoinArgs(args))
}
func (c *recordingConsole) Error(args ...any) { c.add("error", args) }
func (c *recordingConsole) Warn(args ...any)  { c.add("warn", args) }
func (c *recordingConsole) Log(args ...any)   { c.add("log", args) }
func (c *recordingConsole) Info(args ...any)  { c.add("info", args) }
func (c *recordingConsole) Debug(args ...any) { c.add("debug", args) }

func setup(t *testing.T, opts Options) (*Host, *interference.Filter) {
	t.Helper()
	f := interference.New(interference.MustDenylist(interference.DefaultRevision))
	h, err := Install(goja.New(), f, opts)
	require.NoError(t, err)
	return h, f
}

func run(t *testing.T, h *Host, src string) goja.Value {
	t.Helper()
	v, err := h.RunTimeout(src, "test.js", 5*time.Second)
	require.NoError(t, err)
	return v
}

func TestConsole(t *testing.T) {
	c := &recordingConsole{}
	h, f := setup(t, Options{Console: c})

	run(t, h, `
		console.error("Unchecked runtime.lastError:", "closed");
		console.log("meals", 3, null);
		console.warn("chrome-extension://abc/x.js failed");
		console.info("ready");
	`)

	assert.Equal(t, []string{"log meals 3 ", "info ready"}, c.lines)
	assert.Equal(t, int64(2), f.Snapshot().ConsoleDropped)
}

func TestFetch_RejectMode(t *testing.T) {
	var fetched []string
	h, f := setup(t, Options{Fetch: func(url string) (any, error) {
		fetched = append(fetched, url)
		return "body", nil
	}})

	run(t, h, `
		var outcome = [];
		fetch("chrome-extension://abc/data.json")
			.then(function() { outcome.push("resolved"); })
			.catch(function(e) { outcome.push("rejected: " + e.message); });
		fetch("/api/foods").then(function(b) { outcome.push("ok " + b); });
	`)

	got := h.Runtime().Get("outcome").Export()
	assert.ElementsMatch(t, []any{"rejected: extension request blocked", "ok body"}, got)
	assert.Equal(t, []string{"/api/foods"}, fetched)
	assert.Equal(t, int64(1), f.Snapshot().RequestsBlocked)
}

func TestFetch_NoopMode(t *testing.T) {
	h, _ := setup(t, Options{Mode: interference.FetchNoop})

	run(t, h, `
		var status;
		fetch("moz-extension://abc").then(function(r) { status = r.status; });
	`)
	assert.Equal(t, int64(204), h.Runtime().Get("status").ToInteger())
}

func TestXMLHttpRequestOpen(t *testing.T) {
	var opened []string
	h, f := setup(t, Options{Opener: interference.OpenerFunc(func(method, url string) error {
		opened = append(opened, method+" "+url)
		return nil
	})})

	run(t, h, `
		var x = new XMLHttpRequest();
		x.open("GET", "chrome-extension://abc/inlineForm.html");
		x.open("GET", "/api/food/7");
	`)
	assert.Equal(t, []string{"GET /api/food/7"}, opened)
	assert.Equal(t, int64(1), f.Snapshot().RequestsBlocked)
}

func TestAddEventListener(t *testing.T) {
	h, f := setup(t, Options{})

	v := run(t, h, `
		var received = [];
		addEventListener("message", function(e) { received.push(e); });
		addEventListener("message", function(e) {
			// chrome-extension:// bridge
			received.push("extension saw " + e);
		});
		addEventListener("message", null);
		dispatchEvent("message", "hello");
	`)
	assert.Equal(t, int64(1), v.ToInteger())
	assert.Equal(t, []any{"hello"}, h.Runtime().Get("received").Export())
	assert.Equal(t, int64(1), f.Snapshot().ListenersRefused)
	assert.Equal(t, 1, h.Listeners().Len(interference.MessageEvent))
}

func TestDispatchErrorAndRejection(t *testing.T) {
	var unhandled []string
	h, f := setup(t, Options{
		OnError: func(e *interference.ErrorEvent) { unhandled = append(unhandled, e.Message) },
		OnRejection: func(e *interference.RejectionEvent) {
			unhandled = append(unhandled, "rejection")
		},
	})

	run(t, h, `
		var results = [
			dispatchError("Script error.", "chrome-extension://abc/content.js"),
			dispatchError("ReferenceError: chart is not defined", "/static/js/admin.js"),
			dispatchRejection(new Error("The message channel closed before a response was received")),
			dispatchRejection(undefined),
		];
	`)
	assert.Equal(t, []any{true, false, true, false}, h.Runtime().Get("results").Export())
	assert.Equal(t, []string{"ReferenceError: chart is not defined", "rejection"}, unhandled)

	s := f.Snapshot()
	assert.Equal(t, int64(1), s.ErrorsBlocked)
	assert.Equal(t, int64(1), s.RejectionsBlocked)
}

func TestInterferenceFilterExport(t *testing.T) {
	h, _ := setup(t, Options{})

	v := run(t, h, `
		console.log("background page");
		[InterferenceFilter.isRelated("runtime.lastError"), InterferenceFilter.stats().consoleDropped, InterferenceFilter.revision]
	`)
	assert.Equal(t, []any{true, int64(1), "v3"}, v.Export())
}

func TestBlockRuntimeMessaging(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`var chrome = { runtime: { sendMessage: function() { return "sent"; } } };`)
	require.NoError(t, err)

	f := interference.New(interference.MustDenylist(interference.DefaultRevision))
	h, err := Install(vm, f, Options{BlockRuntimeMessaging: true})
	require.NoError(t, err)

	run(t, h, `
		var reason;
		chrome.runtime.sendMessage("x").catch(function(e) { reason = e.message; });
		chrome.runtime.sendMessage = function() { return "again"; };
	`)
	assert.Equal(t, "extension API blocked", vm.Get("reason").String())
}

func TestRun_Cancelled(t *testing.T) {
	h, _ := setup(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.Run(ctx, `for (;;) {}`, "spin.js")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	v := run(t, h, `1 + 1`)
	assert.Equal(t, int64(2), v.ToInteger())
}
