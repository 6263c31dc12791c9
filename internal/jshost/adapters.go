package jshost

import (
	"github.com/dop251/goja"

	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
)

func (h *Host) installConsole() error {
	obj := h.vm.NewObject()
	levels := []interference.ConsoleLevel{
		interference.ConsoleError,
		interference.ConsoleWarn,
		interference.ConsoleLog,
		interference.ConsoleInfo,
		interference.ConsoleDebug,
	}
	for _, level := range levels {
		fn := func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				if present(a) {
					args[i] = text(a)
				}
			}
			_ = interference.Call(h.console, level, args...)
			return goja.Undefined()
		}
		if err := obj.Set(string(level), fn); err != nil {
			return err
		}
	}
	return h.vm.Set("console", obj)
}

func (h *Host) fetch(call goja.FunctionCall) goja.Value {
	target := call.Argument(0)
	promise, resolve, reject := h.vm.NewPromise()

	if isString(target) && h.filter.BlocksRequest(target.String()) {
		if h.opts.Mode == interference.FetchNoop {
			resolve(h.emptyResponse())
		} else {
			reject(h.vm.NewGoError(interference.ErrRequestBlocked))
		}
		return h.vm.ToValue(promise)
	}

	if h.opts.Fetch == nil {
		resolve(goja.Undefined())
		return h.vm.ToValue(promise)
	}
	res, err := h.opts.Fetch(text(target))
	if err != nil {
		reject(h.vm.NewGoError(err))
	} else {
		resolve(res)
	}
	return h.vm.ToValue(promise)
}

func (h *Host) emptyResponse() *goja.Object {
	r := h.vm.NewObject()
	_ = r.Set("ok", true)
	_ = r.Set("status", 204)
	_ = r.Set("text", func(goja.FunctionCall) goja.Value { return h.vm.ToValue("") })
	return r
}

func (h *Host) installXHR() error {
	ctor, ok := h.vm.ToValue(func(goja.ConstructorCall) *goja.Object { return nil }).(*goja.Object)
	if !ok {
		return errNotObject
	}
	proto := ctor.Get("prototype").ToObject(h.vm)
	open := func(call goja.FunctionCall) goja.Value {
		method, target := text(call.Argument(0)), call.Argument(1)
		var err error
		if isString(target) {
			err = h.opener.Open(method, target.String())
		} else {
			err = h.opts.Opener.Open(method, text(target))
		}
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return goja.Undefined()
	}
	if err := proto.Set("open", open); err != nil {
		return err
	}
	return h.vm.Set("XMLHttpRequest", ctor)
}

func (h *Host) addEventListener(call goja.FunctionCall) goja.Value {
	eventType, listener := text(call.Argument(0)), call.Argument(1)
	if !present(listener) {
		return goja.Undefined()
	}
	fn, ok := goja.AssertFunction(listener)
	if !ok {
		panic(h.vm.NewTypeError("listener is not a function"))
	}
	h.listeners.AddEventListener(eventType, interference.ListenerFunc{
		Src: text(listener),
		Fn: func(data any) {
			if _, err := fn(goja.Undefined(), h.vm.ToValue(data)); err != nil {
				h.opts.Logger.Warn("event listener failed", logger.String("type", eventType), logger.Error(err))
			}
		},
	})
	return goja.Undefined()
}

func (h *Host) dispatchEvent(call goja.FunctionCall) goja.Value {
	var data any
	if d := call.Argument(1); present(d) {
		data = d.Export()
	}
	return h.vm.ToValue(h.listeners.Dispatch(text(call.Argument(0)), data))
}

// dispatchError raises a global error event and returns whether it was
// suppressed.
func (h *Host) dispatchError(call goja.FunctionCall) goja.Value {
	e := &interference.ErrorEvent{
		Message:  text(call.Argument(0)),
		Filename: text(call.Argument(1)),
		Source:   text(call.Argument(2)),
	}
	suppressed := h.filter.HandleError(e)
	if !suppressed && h.opts.OnError != nil {
		h.opts.OnError(e)
	}
	return h.vm.ToValue(suppressed)
}

// dispatchRejection raises an unhandled rejection and returns whether it was
// suppressed.
func (h *Host) dispatchRejection(call goja.FunctionCall) goja.Value {
	e := &interference.RejectionEvent{}
	if r := call.Argument(0); present(r) {
		e.Reason = text(r)
	}
	suppressed := h.filter.HandleRejection(e)
	if !suppressed && h.opts.OnRejection != nil {
		h.opts.OnRejection(e)
	}
	return h.vm.ToValue(suppressed)
}

func (h *Host) installDebug() error {
	obj := h.vm.NewObject()
	fields := map[string]any{
		"isRelated": func(call goja.FunctionCall) goja.Value {
			return h.vm.ToValue(h.filter.IsRelated(text(call.Argument(0))))
		},
		"stats": func(goja.FunctionCall) goja.Value {
			s := h.filter.Snapshot()
			return h.vm.ToValue(map[string]any{
				"errorsBlocked":     s.ErrorsBlocked,
				"rejectionsBlocked": s.RejectionsBlocked,
				"requestsBlocked":   s.RequestsBlocked,
				"elementsRemoved":   s.ElementsRemoved,
				"consoleDropped":    s.ConsoleDropped,
				"listenersRefused":  s.ListenersRefused,
				"total":             s.Total,
			})
		},
		"revision": string(h.filter.Denylist().Revision()),
	}
	for k, v := range fields {
		if err := obj.Set(k, v); err != nil {
			return err
		}
	}
	return h.vm.Set("InterferenceFilter", obj)
}

func (h *Host) blockRuntimeMessaging() error {
	chrome := h.vm.Get("chrome")
	if !present(chrome) {
		return nil
	}
	runtime := chrome.ToObject(h.vm).Get("runtime")
	if !present(runtime) {
		return nil
	}
	send := func(goja.FunctionCall) goja.Value {
		promise, _, reject := h.vm.NewPromise()
		reject(h.vm.NewGoError(ErrRuntimeBlocked))
		return h.vm.ToValue(promise)
	}
	return runtime.ToObject(h.vm).DefineDataProperty("sendMessage", h.vm.ToValue(send),
		goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
}
