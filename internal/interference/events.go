package interference

// ErrorEvent mirrors a page's global error event.
type ErrorEvent struct {
	Message  string
	Filename string
	Source   string

	defaultPrevented   bool
	propagationStopped bool
	immediateStopped   bool
}

// PreventDefault suppresses the host's default error reporting.
func (e *ErrorEvent) PreventDefault() { e.defaultPrevented = true }

// StopPropagation stops delivery to further handlers.
func (e *ErrorEvent) StopPropagation() { e.propagationStopped = true }

// StopImmediatePropagation also skips remaining handlers on the same target.
func (e *ErrorEvent) StopImmediatePropagation() {
	e.propagationStopped = true
	e.immediateStopped = true
}

func (e *ErrorEvent) DefaultPrevented() bool   { return e.defaultPrevented }
func (e *ErrorEvent) PropagationStopped() bool { return e.propagationStopped }

// RejectionEvent mirrors an unhandled promise rejection. Reason may be nil.
type RejectionEvent struct {
	Reason any

	defaultPrevented   bool
	propagationStopped bool
}

func (e *RejectionEvent) PreventDefault()          { e.defaultPrevented = true }
func (e *RejectionEvent) StopPropagation()         { e.propagationStopped = true }
func (e *RejectionEvent) DefaultPrevented() bool   { return e.defaultPrevented }
func (e *RejectionEvent) PropagationStopped() bool { return e.propagationStopped }

// HandleError swallows extension errors. It returns true when the event was
// suppressed; otherwise the event is untouched and default handling proceeds.
func (f *Filter) HandleError(e *ErrorEvent) bool {
	if e == nil {
		return false
	}
	var signal string
	switch {
	case f.IsRelated(e.Message):
		signal = e.Message
	case f.IsRelated(e.Filename):
		signal = e.Filename
	case f.IsRelated(e.Source):
		signal = e.Source
	default:
		return false
	}
	e.PreventDefault()
	e.StopImmediatePropagation()
	f.record(KindError, signal)
	return true
}

// HandleRejection swallows extension promise rejections.
func (f *Filter) HandleRejection(e *RejectionEvent) bool {
	if e == nil {
		return false
	}
	reason := signalText(e.Reason)
	if !f.IsRelated(reason) {
		return false
	}
	e.PreventDefault()
	e.StopPropagation()
	f.record(KindRejection, reason)
	return true
}
