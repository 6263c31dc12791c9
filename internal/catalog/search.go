package catalog

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinQueryLen is the shortest query Search answers.
const MinQueryLen = 2

// maxDistance caps the edit distance accepted as a fuzzy match. Short
// queries get a third of their length instead.
const maxDistance = 2.5

// Search returns foods whose names match query, best first: exact and
// prefix matches, then substrings, then near misses by edit distance.
// Queries shorter than MinQueryLen return nothing.
func (c *Catalog) Search(query string, limit int) []Food {
	q := normKey(query)
	qlen := utf8.RuneCountInString(q)
	if qlen < MinQueryLen {
		return nil
	}
	threshold := min(maxDistance, float64(qlen)/3)

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, name := range c.norm {
		var s float64
		switch {
		case name == q:
			s = 0
		case strings.HasPrefix(name, q):
			s = 1
		case strings.Contains(name, q):
			s = 2
		default:
			d := float64(bestWordDistance(q, name))
			if d > threshold {
				continue
			}
			s = 3 + d
		}
		hits = append(hits, scored{i, s})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Food, len(hits))
	for i, h := range hits {
		out[i] = c.Foods[h.idx]
	}
	return out
}

// bestWordDistance compares q against the whole name and each of its words.
func bestWordDistance(q, name string) int {
	best := lev(q, name)
	for _, w := range strings.Fields(name) {
		if d := lev(q, w); d < best {
			best = d
		}
	}
	return best
}

// ---------- Fuzzy matching helpers ----------

func normKey(s string) string {
	s = norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r == 'đ' {
			r = 'd'
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func lev(a, b string) int {
	if a == b {
		return 0
	}
	ar := []rune(a)
	br := []rune(b)
	la, lb := len(ar), len(br)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}
