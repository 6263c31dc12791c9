package interference

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Debug bundles what a developer needs to inspect the filter at runtime.
type Debug struct {
	IsRelated func(signal string) bool
	Sweep     func(page *Page) int
	Observer  func(page *Page) *Observer
	Stats     func() Stats
	Revision  Revision
}

// Debug returns the filter's debug export. sweeper may be nil.
func (f *Filter) Debug(sweeper *Sweeper) Debug {
	if sweeper == nil {
		sweeper = f.Sweeper()
	}
	return Debug{
		IsRelated: f.IsRelated,
		Sweep:     sweeper.Sweep,
		Observer:  f.Observer,
		Stats:     f.Snapshot,
		Revision:  f.denylist.Revision(),
	}
}

// DebugReport is the JSON body served by DebugHandler.
type DebugReport struct {
	Revision Revision       `json:"revision"`
	Entries  int            `json:"entries"`
	Stats    Stats          `json:"stats"`
	Recent   []JournalEntry `json:"recent,omitempty"`
}

// Report builds a DebugReport with up to n journal entries, newest first.
// n <= 0 omits the journal.
func (f *Filter) Report(n int) DebugReport {
	r := DebugReport{
		Revision: f.denylist.Revision(),
		Entries:  f.denylist.Len(),
		Stats:    f.Snapshot(),
	}
	if f.journal != nil && n > 0 {
		r.Recent = f.journal.Recent(n)
	}
	return r
}

// DebugHandler serves Report as JSON. The optional "limit" query parameter
// caps the journal entries (default 20); limit=0 returns counters only.
func (f *Filter) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.Report(limit))
	})
}

// Collector exposes the filter counters to Prometheus.
type Collector struct {
	filter *Filter
	desc   *prometheus.Desc
}

// NewCollector creates a collector for f. Register it with a
// prometheus.Registerer of the caller's choosing.
func NewCollector(f *Filter) *Collector {
	return &Collector{
		filter: f,
		desc: prometheus.NewDesc(
			"foodadmin_interference_suppressed_total",
			"Extension signals suppressed by the interference filter.",
			[]string{"kind"},
			prometheus.Labels{"revision": string(f.denylist.Revision())},
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.filter.Snapshot()
	for _, k := range Kinds {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(s.Count(k)), string(k))
	}
}
