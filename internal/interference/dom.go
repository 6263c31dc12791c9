package interference

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// overlayMarker is the prefix of 2147483647, the z-index extensions use to
// pin overlays above page content.
const overlayMarker = "214748"

// IsRelatedNode reports whether an element's src, id, class or inline style
// marks it as extension-injected. Non-element nodes are never related.
func (f *Filter) IsRelatedNode(n *html.Node) bool {
	_, ok := f.relatedAttr(n)
	return ok
}

// BlocksElement reports whether n must be removed, and counts it when so.
// The node itself is left untouched.
func (f *Filter) BlocksElement(n *html.Node) bool {
	if !f.IsRelatedNode(n) {
		return false
	}
	f.record(KindElement, describe(n))
	return true
}

func (f *Filter) relatedAttr(n *html.Node) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, key := range []string{"src", "id", "class"} {
		if v := attr(n, key); f.IsRelated(v) {
			return v, true
		}
	}
	style := attr(n, "style")
	if f.styleHeuristic && isOverlayStyle(style) {
		return style, true
	}
	return "", false
}

func isOverlayStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.Contains(s, "z-index") && strings.Contains(s, overlayMarker)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func describe(n *html.Node) string {
	label := attr(n, "id")
	if label == "" {
		label = attr(n, "class")
	}
	if label == "" {
		label = attr(n, "src")
	}
	return fmt.Sprintf("<%s> %s", n.Data, label)
}

func detach(n *html.Node) bool {
	if n.Parent == nil {
		return false
	}
	n.Parent.RemoveChild(n)
	return true
}

// inDocument reports whether n is still reachable from a document root,
// i.e. neither it nor an ancestor has been removed.
func inDocument(n *html.Node) bool {
	for n.Parent != nil {
		n = n.Parent
	}
	return n.Type == html.DocumentNode
}

// Page is a parsed document that adapters mutate under a single lock.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// NewPage parses an HTML document.
func NewPage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{doc: doc}, nil
}

// ParsePage is NewPage over a string.
func ParsePage(s string) (*Page, error) {
	return NewPage(strings.NewReader(s))
}

// Do runs fn with exclusive access to the document.
func (p *Page) Do(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// HTML renders the whole document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	for _, n := range p.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render page: %w", err)
		}
	}
	return buf.String(), nil
}

// Count returns the number of elements matching selector.
func (p *Page) Count(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).Length()
}

// Observer removes extension elements as they are added to a page.
type Observer struct {
	filter *Filter
	page   *Page
}

// Observer returns an observer bound to page.
func (f *Filter) Observer(page *Page) *Observer {
	return &Observer{filter: f, page: page}
}

// Added inspects newly inserted nodes and removes the related ones. Only the
// added nodes themselves are checked, not their descendants. It returns how
// many were removed.
func (o *Observer) Added(nodes ...*html.Node) int {
	o.page.mu.Lock()
	defer o.page.mu.Unlock()
	return o.added(nodes)
}

func (o *Observer) added(nodes []*html.Node) int {
	removed := 0
	for _, n := range nodes {
		if !o.filter.IsRelatedNode(n) || !detach(n) {
			continue
		}
		o.filter.record(KindElement, describe(n))
		removed++
	}
	return removed
}

// AppendHTML parses fragment, appends it to every element matching
// selector and reports the inserted top-level nodes to the observer.
func (o *Observer) AppendHTML(selector, fragment string) (int, error) {
	o.page.mu.Lock()
	defer o.page.mu.Unlock()

	var added []*html.Node
	var parseErr error
	o.page.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		parent := s.Nodes[0]
		nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
			Type:     html.ElementNode,
			Data:     parent.Data,
			DataAtom: atom.Lookup([]byte(parent.Data)),
		})
		if err != nil {
			parseErr = fmt.Errorf("parse fragment: %w", err)
			return false
		}
		for _, n := range nodes {
			parent.AppendChild(n)
			added = append(added, n)
		}
		return true
	})
	if parseErr != nil {
		return 0, parseErr
	}
	return o.added(added), nil
}

// Scan treats every element in the document as freshly added, in document
// order. Descendants of a removed element are not visited.
func (o *Observer) Scan() int {
	o.page.mu.Lock()
	defer o.page.mu.Unlock()

	removed := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if o.added([]*html.Node{c}) == 1 {
				removed++
			} else {
				walk(c)
			}
			c = next
		}
	}
	for _, root := range o.page.doc.Nodes {
		walk(root)
	}
	return removed
}
