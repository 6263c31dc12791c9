// Package jshost installs the interference adapters into a goja runtime that
// stands in for a page: console, fetch, XMLHttpRequest, message listeners
// and the global error and rejection events.
//
// The runtime is created and owned by the caller. Install only defines
// globals on it; the filter and its counters stay on the Go side.
package jshost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
)

// ErrRuntimeBlocked is the rejection reason of a blocked chrome.runtime.sendMessage.
var ErrRuntimeBlocked = errors.New("extension API blocked")

var errNotObject = errors.New("constructor is not an object")

// Options wires the page's own implementations behind the adapters.
type Options struct {
	// Console receives console calls that pass the filter. Nil logs them.
	Console interference.Console
	// Fetch performs requests that pass the filter. Nil resolves undefined.
	Fetch func(url string) (any, error)
	// Opener performs XHR opens that pass the filter. Nil accepts them.
	Opener interference.Opener
	// Mode selects what a blocked fetch returns.
	Mode interference.FetchMode
	// OnError is the default handling for errors that are not suppressed.
	OnError func(e *interference.ErrorEvent)
	// OnRejection is the default handling for rejections that are not suppressed.
	OnRejection func(e *interference.RejectionEvent)
	// BlockRuntimeMessaging replaces chrome.runtime.sendMessage, when the
	// page defines it, with a function returning a rejected promise.
	BlockRuntimeMessaging bool
	// Logger receives console output when Console is nil.
	Logger logger.Logger
}

// Host is a runtime with the adapters installed.
type Host struct {
	vm        *goja.Runtime
	filter    *interference.Filter
	console   interference.Console
	opener    interference.Opener
	listeners *interference.ListenerRegistry
	opts      Options
}

// Install defines console, fetch, XMLHttpRequest, addEventListener,
// dispatchEvent, dispatchError, dispatchRejection and InterferenceFilter on vm.
func Install(vm *goja.Runtime, f *interference.Filter, opts Options) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Console == nil {
		opts.Console = interference.LoggerConsole{Logger: opts.Logger}
	}
	if opts.Opener == nil {
		opts.Opener = interference.OpenerFunc(func(string, string) error { return nil })
	}
	if opts.Mode == "" {
		opts.Mode = interference.FetchReject
	}

	h := &Host{
		vm:        vm,
		filter:    f,
		console:   f.Console(opts.Console),
		opener:    f.Opener(opts.Opener),
		listeners: interference.NewListenerRegistry(f),
		opts:      opts,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"console", h.installConsole},
		{"fetch", func() error { return vm.Set("fetch", h.fetch) }},
		{"XMLHttpRequest", h.installXHR},
		{"addEventListener", func() error { return vm.Set("addEventListener", h.addEventListener) }},
		{"dispatchEvent", func() error { return vm.Set("dispatchEvent", h.dispatchEvent) }},
		{"dispatchError", func() error { return vm.Set("dispatchError", h.dispatchError) }},
		{"dispatchRejection", func() error { return vm.Set("dispatchRejection", h.dispatchRejection) }},
		{"InterferenceFilter", h.installDebug},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return nil, fmt.Errorf("install %s: %w", s.name, err)
		}
	}
	if opts.BlockRuntimeMessaging {
		if err := h.blockRuntimeMessaging(); err != nil {
			return nil, fmt.Errorf("install chrome.runtime: %w", err)
		}
	}
	return h, nil
}

// Runtime returns the underlying runtime.
func (h *Host) Runtime() *goja.Runtime { return h.vm }

// Listeners returns the registry behind addEventListener.
func (h *Host) Listeners() *interference.ListenerRegistry { return h.listeners }

// Run evaluates src, interrupting it when ctx is done.
func (h *Host) Run(ctx context.Context, src, name string) (goja.Value, error) {
	type result struct {
		val goja.Value
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		val, err := h.vm.RunScript(name, src)
		resultCh <- result{val, err}
	}()

	select {
	case <-ctx.Done():
		h.vm.Interrupt("cancelled")
		<-resultCh
		h.vm.ClearInterrupt()
		return nil, fmt.Errorf("script %s: %w", name, ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("run script %s: %w", name, res.err)
		}
		return res.val, nil
	}
}

// RunTimeout is Run with a deadline.
func (h *Host) RunTimeout(src, name string, timeout time.Duration) (goja.Value, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.Run(ctx, src, name)
}

// present reports whether v carries a value; undefined and null do not.
func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// text converts a JS value the way String(v) would; absent values become "".
func text(v goja.Value) string {
	if !present(v) {
		return ""
	}
	return v.ToString().String()
}

func isString(v goja.Value) bool {
	if !present(v) {
		return false
	}
	_, ok := v.Export().(string)
	return ok
}
