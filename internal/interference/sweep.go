package interference

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/poku-e/foodadmin/internal/logger"
)

// DefaultSelectors locate extension-injected elements by attribute substring.
var DefaultSelectors = []string{
	`[id*="extension"]`,
	`[class*="extension"]`,
	`[id*="chrome-extension"]`,
	`[class*="chrome-extension"]`,
	`iframe[src*="chrome-extension"]`,
	`iframe[src*="moz-extension"]`,
	`[data-extension]`,
	`[id*="inlineForm"]`,
	`[class*="inlineForm"]`,
	`script[src*="chrome-extension"]`,
	`script[src*="moz-extension"]`,
}

type compiledSelector struct {
	source  string
	matcher cascadia.Selector
}

// Ticker delivers sweep ticks. Stop releases its resources.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker for an interval.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker is the wall-clock TickerFunc.
func NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Sweeper periodically removes elements matching a fixed selector list.
type Sweeper struct {
	filter    *Filter
	selectors []compiledSelector
	skipped   []string
	interval  time.Duration
	ticker    TickerFunc
	log       logger.Logger
}

// SweepOption configures a Sweeper.
type SweepOption func(*Sweeper)

// WithSelectors replaces DefaultSelectors.
func WithSelectors(selectors ...string) SweepOption {
	return func(s *Sweeper) { s.compile(selectors) }
}

// WithInterval sets the time between sweeps in Run.
func WithInterval(d time.Duration) SweepOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker, mostly for tests.
func WithTicker(fn TickerFunc) SweepOption {
	return func(s *Sweeper) { s.ticker = fn }
}

// WithSweepLogger sets the logger for sweep diagnostics.
func WithSweepLogger(l logger.Logger) SweepOption {
	return func(s *Sweeper) { s.log = l }
}

// Sweeper creates a sweeper that counts removals on f.
func (f *Filter) Sweeper(opts ...SweepOption) *Sweeper {
	s := &Sweeper{
		filter:   f,
		interval: DefaultSweepInterval,
		ticker:   NewTicker,
		log:      logger.NewNop(),
	}
	s.compile(DefaultSelectors)
	for _, opt := range opts {
		opt(s)
	}
	for _, sel := range s.skipped {
		s.log.Warn("skipping invalid sweep selector", logger.String("selector", sel))
	}
	return s
}

// compile keeps the selectors that parse; the rest are remembered as skipped.
func (s *Sweeper) compile(selectors []string) {
	s.selectors = s.selectors[:0]
	s.skipped = nil
	for _, src := range selectors {
		m, err := cascadia.Compile(src)
		if err != nil {
			s.skipped = append(s.skipped, src)
			continue
		}
		s.selectors = append(s.selectors, compiledSelector{source: src, matcher: m})
	}
}

// Selectors returns the active selectors in sweep order.
func (s *Sweeper) Selectors() []string {
	out := make([]string, len(s.selectors))
	for i, c := range s.selectors {
		out[i] = c.source
	}
	return out
}

// Skipped returns the selectors that failed to compile.
func (s *Sweeper) Skipped() []string {
	return append([]string(nil), s.skipped...)
}

// Sweep removes every element matching a selector and returns how many
// were removed. A sweep over a clean page removes nothing.
func (s *Sweeper) Sweep(page *Page) int {
	page.mu.Lock()
	defer page.mu.Unlock()
	return s.sweep(page.doc)
}

func (s *Sweeper) sweep(doc *goquery.Document) int {
	removed := 0
	for _, c := range s.selectors {
		doc.FindMatcher(c.matcher).Each(func(_ int, sel *goquery.Selection) {
			n := sel.Nodes[0]
			if !inDocument(n) || !detach(n) {
				return
			}
			s.filter.record(KindElement, describe(n))
			removed++
		})
	}
	return removed
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, page *Page) {
	s.Sweep(page)

	t := s.ticker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if n := s.Sweep(page); n > 0 {
				s.log.Debug("sweep removed elements", logger.Int("removed", n))
			}
		}
	}
}
