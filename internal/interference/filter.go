// Package interference suppresses noise injected into the admin pages by
// third-party browser extensions: console spam, cross-context messaging
// errors, extension URLs and injected iframes or overlays.
//
// A Filter holds a Denylist and a set of counters. Every adapter in this
// package (error and rejection events, console, log core, HTTP transport,
// XHR opener, listener registry, DOM observer and sweeper) funnels into the
// same predicate, IsRelated. The filter is a noise gate, not a security
// boundary: it hides the side effects of extension code from the page's own
// error and console surfaces, it cannot stop that code from running.
package interference

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/poku-e/foodadmin/internal/logger"
)

// Kind classifies what an adapter suppressed.
type Kind string

const (
	KindError     Kind = "error"
	KindRejection Kind = "rejection"
	KindRequest   Kind = "request"
	KindElement   Kind = "element"
	KindConsole   Kind = "console"
	KindListener  Kind = "listener"
)

// Kinds lists every suppression kind in reporting order.
var Kinds = []Kind{KindError, KindRejection, KindRequest, KindElement, KindConsole, KindListener}

// Stats is a point-in-time copy of the suppression counters.
type Stats struct {
	ErrorsBlocked     int64 `json:"errors_blocked"`
	RejectionsBlocked int64 `json:"rejections_blocked"`
	RequestsBlocked   int64 `json:"requests_blocked"`
	ElementsRemoved   int64 `json:"elements_removed"`
	ConsoleDropped    int64 `json:"console_dropped"`
	ListenersRefused  int64 `json:"listeners_refused"`
	Total             int64 `json:"total"`
}

// Count returns the counter for kind.
func (s Stats) Count(kind Kind) int64 {
	switch kind {
	case KindError:
		return s.ErrorsBlocked
	case KindRejection:
		return s.RejectionsBlocked
	case KindRequest:
		return s.RequestsBlocked
	case KindElement:
		return s.ElementsRemoved
	case KindConsole:
		return s.ConsoleDropped
	case KindListener:
		return s.ListenersRefused
	}
	return 0
}

// Filter decides whether a signal comes from a browser extension and counts
// what it suppresses. Filters share no state with each other.
type Filter struct {
	denylist       *Denylist
	styleHeuristic bool
	log            logger.Logger
	logSometimes   *rate.Sometimes
	journal        *Journal

	errors     atomic.Int64
	rejections atomic.Int64
	requests   atomic.Int64
	elements   atomic.Int64
	console    atomic.Int64
	listeners  atomic.Int64
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger used for suppression debug lines. It should not
// be a logger that is itself wrapped by NewCore with the same filter.
func WithLogger(l logger.Logger) Option {
	return func(f *Filter) { f.log = l }
}

// WithJournal keeps the last n suppressed signals for debugging. Zero
// disables the journal.
func WithJournal(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.journal = NewJournal(n)
		} else {
			f.journal = nil
		}
	}
}

// WithStyleHeuristic toggles the max-z-index overlay check on inline styles.
func WithStyleHeuristic(on bool) Option {
	return func(f *Filter) { f.styleHeuristic = on }
}

// New creates a filter over d.
func New(d *Denylist, opts ...Option) *Filter {
	f := &Filter{
		denylist:       d,
		styleHeuristic: true,
		log:            logger.NewNop(),
		logSometimes:   &rate.Sometimes{First: 20, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Denylist returns the filter's denylist.
func (f *Filter) Denylist() *Denylist { return f.denylist }

// IsRelated reports whether signal contains any denylist entry, ignoring
// case. The empty string is never related.
func (f *Filter) IsRelated(signal string) bool {
	return f.denylist.Contains(signal)
}

// IsRelatedValue is IsRelated for text-or-absent values: nil is never
// related, errors and Stringers use their text, anything else fmt.Sprint.
func (f *Filter) IsRelatedValue(v any) bool {
	return f.IsRelated(signalText(v))
}

func signalText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// record counts one suppression and leaves a throttled debug line.
func (f *Filter) record(kind Kind, signal string) {
	switch kind {
	case KindError:
		f.errors.Add(1)
	case KindRejection:
		f.rejections.Add(1)
	case KindRequest:
		f.requests.Add(1)
	case KindElement:
		f.elements.Add(1)
	case KindConsole:
		f.console.Add(1)
	case KindListener:
		f.listeners.Add(1)
	}
	if f.journal != nil {
		f.journal.add(kind, signal)
	}
	f.logSometimes.Do(func() {
		f.log.Debug("suppressed extension signal",
			logger.String("kind", string(kind)),
			logger.String("signal", truncate(signal, 200)))
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "…"
}

// Snapshot returns the current counters and their sum.
func (f *Filter) Snapshot() Stats {
	s := Stats{
		ErrorsBlocked:     f.errors.Load(),
		RejectionsBlocked: f.rejections.Load(),
		RequestsBlocked:   f.requests.Load(),
		ElementsRemoved:   f.elements.Load(),
		ConsoleDropped:    f.console.Load(),
		ListenersRefused:  f.listeners.Load(),
	}
	s.Total = s.ErrorsBlocked + s.RejectionsBlocked + s.RequestsBlocked +
		s.ElementsRemoved + s.ConsoleDropped + s.ListenersRefused
	return s
}

// Reset zeroes the counters and clears the journal.
func (f *Filter) Reset() {
	f.errors.Store(0)
	f.rejections.Store(0)
	f.requests.Store(0)
	f.elements.Store(0)
	f.console.Store(0)
	f.listeners.Store(0)
	if f.journal != nil {
		f.journal.reset()
	}
}

// Journal returns the suppression journal, or nil when disabled.
func (f *Filter) Journal() *Journal { return f.journal }

// BlocksRequest reports whether a request to url must not be sent, and
// counts it when so.
func (f *Filter) BlocksRequest(url string) bool {
	if !f.IsRelated(url) {
		return false
	}
	f.record(KindRequest, url)
	return true
}
