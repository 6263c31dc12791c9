package interference

import "sync"

// MessageEvent is the event type whose listeners are screened.
const MessageEvent = "message"

// Listener is an event listener whose source text can be inspected.
type Listener interface {
	Source() string
	Handle(data any)
}

// ListenerFunc is a Listener built from a function and its source text.
type ListenerFunc struct {
	Src string
	Fn  func(data any)
}

func (l ListenerFunc) Source() string { return l.Src }

func (l ListenerFunc) Handle(data any) {
	if l.Fn != nil {
		l.Fn(data)
	}
}

// BlocksListener reports whether registering a listener for eventType with
// the given source text must be refused, and counts it when so. Only
// "message" listeners are screened.
func (f *Filter) BlocksListener(eventType, source string) bool {
	if eventType != MessageEvent || !f.IsRelated(source) {
		return false
	}
	f.record(KindListener, source)
	return true
}

// ListenerRegistry is an event target that refuses extension message
// listeners at registration time.
type ListenerRegistry struct {
	filter *Filter

	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewListenerRegistry creates an empty registry screened by f.
func NewListenerRegistry(f *Filter) *ListenerRegistry {
	return &ListenerRegistry{filter: f, listeners: make(map[string][]Listener)}
}

// AddEventListener registers l for eventType. It returns false when l is nil
// or was refused.
func (r *ListenerRegistry) AddEventListener(eventType string, l Listener) bool {
	if l == nil {
		return false
	}
	if r.filter.BlocksListener(eventType, l.Source()) {
		return false
	}
	r.mu.Lock()
	r.listeners[eventType] = append(r.listeners[eventType], l)
	r.mu.Unlock()
	return true
}

// Dispatch calls every listener for eventType in registration order and
// returns how many ran.
func (r *ListenerRegistry) Dispatch(eventType string, data any) int {
	r.mu.RLock()
	ls := append([]Listener(nil), r.listeners[eventType]...)
	r.mu.RUnlock()

	for _, l := range ls {
		l.Handle(data)
	}
	return len(ls)
}

// Len is the number of listeners registered for eventType.
func (r *ListenerRegistry) Len(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[eventType])
}
