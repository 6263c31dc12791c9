package interference

import (
	"fmt"
	"os"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

// Revision names a built-in denylist revision. Each revision is a superset of
// the one before it.
type Revision string

const (
	RevisionV1 Revision = "v1"
	RevisionV2 Revision = "v2"
	RevisionV3 Revision = "v3"
	// RevisionV4 adds broad entries such as "i18next" and "<url>" that can
	// also match first-party logs.
	RevisionV4 Revision = "v4"

	DefaultRevision = RevisionV3
)

// revisionDeltas lists what each revision appends to the previous one.
var revisionDeltas = []struct {
	rev     Revision
	entries []string
}{
	{RevisionV1, []string{
		"chrome-extension://",
		"moz-extension://",
		"safari-extension://",
		"runtime.lastError",
		"message channel closed",
		"listener indicated an asynchronous response",
		"background page",
		"extensionAdapter",
		"sendMessageToTab",
		"inlineForm.html",
		"invalid arguments to extensionAdapter",
		"You do not have a background page",
	}},
	{RevisionV2, []string{
		"unchecked runtime.lastError",
		"message channel is closed",
		"listener indicated",
		"asynchronous response",
	}},
	{RevisionV3, []string{
		"back/forward cache",
		"extension port",
		"The page keeping the extension port is moved into back/forward cache",
		"contentScript.js",
	}},
	{RevisionV4, []string{
		"i18next",
		"languagechanged",
		"initialized object",
		"error in event handler",
		"<url>",
		"event handler: error: invalid arguments",
	}},
}

// Revisions returns the known revisions, oldest first.
func Revisions() []Revision {
	out := make([]Revision, len(revisionDeltas))
	for i, d := range revisionDeltas {
		out[i] = d.rev
	}
	return out
}

// ParseRevision validates a revision name.
func ParseRevision(s string) (Revision, error) {
	r := Revision(strings.ToLower(strings.TrimSpace(s)))
	for _, d := range revisionDeltas {
		if d.rev == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown denylist revision %q", s)
}

// Denylist is an ordered, append-only set of lowercase substrings. It is
// immutable once built and safe for concurrent use.
type Denylist struct {
	revision Revision
	entries  []string
	matcher  *ahocorasick.Matcher
}

// NewDenylist builds the denylist for rev plus any extra entries.
func NewDenylist(rev Revision, extra ...string) (*Denylist, error) {
	var base []string
	found := false
	for _, d := range revisionDeltas {
		base = append(base, d.entries...)
		if d.rev == rev {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown denylist revision %q", rev)
	}
	return buildDenylist(rev, append(base, extra...)), nil
}

// MustDenylist is NewDenylist for package-level defaults and tests.
func MustDenylist(rev Revision, extra ...string) *Denylist {
	d, err := NewDenylist(rev, extra...)
	if err != nil {
		panic(err)
	}
	return d
}

func buildDenylist(rev Revision, raw []string) *Denylist {
	seen := make(map[string]struct{}, len(raw))
	entries := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		entries = append(entries, e)
	}

	d := &Denylist{revision: rev, entries: entries}
	if len(entries) > 0 {
		d.matcher = ahocorasick.NewStringMatcher(entries)
	}
	return d
}

// Append returns a new denylist with entries added after the existing ones.
func (d *Denylist) Append(entries ...string) *Denylist {
	if len(entries) == 0 {
		return d
	}
	all := make([]string, 0, len(d.entries)+len(entries))
	all = append(all, d.entries...)
	all = append(all, entries...)
	return buildDenylist(d.revision, all)
}

// Revision reports the built-in revision the list started from.
func (d *Denylist) Revision() Revision { return d.revision }

// Len is the number of distinct entries.
func (d *Denylist) Len() int { return len(d.entries) }

// Entries returns a copy of the entries in insertion order.
func (d *Denylist) Entries() []string {
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}

// Contains reports whether the case-folded text contains any entry.
func (d *Denylist) Contains(text string) bool {
	if text == "" || d.matcher == nil {
		return false
	}
	return len(d.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))) > 0
}

// Matches returns the entries found in text, in denylist order.
func (d *Denylist) Matches(text string) []string {
	if text == "" || d.matcher == nil {
		return nil
	}
	hits := d.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}
	hit := make(map[int]bool, len(hits))
	for _, h := range hits {
		hit[h] = true
	}
	out := make([]string, 0, len(hit))
	for i, e := range d.entries {
		if hit[i] {
			out = append(out, e)
		}
	}
	return out
}

// denylistFile is the on-disk YAML shape:
//
//	revision: v2
//	entries:
//	  - some-extension-id
type denylistFile struct {
	Revision string   `yaml:"revision"`
	Entries  []string `yaml:"entries"`
}

// LoadDenylist reads a YAML denylist file. Entries are appended to the named
// revision; an empty revision means entries only.
func LoadDenylist(path string) (*Denylist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read denylist %s: %w", path, err)
	}
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse denylist %s: %w", path, err)
	}
	if f.Revision == "" {
		return buildDenylist("", f.Entries), nil
	}
	rev, err := ParseRevision(f.Revision)
	if err != nil {
		return nil, fmt.Errorf("denylist %s: %w", path, err)
	}
	return NewDenylist(rev, f.Entries...)
}
