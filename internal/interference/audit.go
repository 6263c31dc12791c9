package interference

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Finding is one extension element located by Audit.
type Finding struct {
	Rule     string `json:"rule"`
	Tag      string `json:"tag"`
	ID       string `json:"id,omitempty"`
	Class    string `json:"class,omitempty"`
	Src      string `json:"src,omitempty"`
	Evidence string `json:"evidence"`
}

// RuleAttribute names findings produced by the element predicate.
const RuleAttribute = "attribute"

// Audit reports what the sweep and the observer would remove from page
// without modifying it or touching the counters. Each element is reported
// once, under the first rule that matches it.
func (s *Sweeper) Audit(page *Page) []Finding {
	page.mu.Lock()
	defer page.mu.Unlock()

	seen := make(map[*html.Node]bool)
	var out []Finding
	add := func(rule, evidence string, n *html.Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, Finding{
			Rule:     rule,
			Tag:      n.Data,
			ID:       attr(n, "id"),
			Class:    attr(n, "class"),
			Src:      attr(n, "src"),
			Evidence: evidence,
		})
	}

	for _, c := range s.selectors {
		page.doc.FindMatcher(c.matcher).Each(func(_ int, sel *goquery.Selection) {
			n := sel.Nodes[0]
			add(c.source, describe(n), n)
		})
	}
	page.doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Nodes[0]
		if v, ok := s.filter.relatedAttr(n); ok {
			add(RuleAttribute, v, n)
		}
	})
	return out
}
