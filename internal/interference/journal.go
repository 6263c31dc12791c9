package interference

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one suppressed signal.
type JournalEntry struct {
	ID     string    `json:"id"`
	Kind   Kind      `json:"kind"`
	Signal string    `json:"signal"`
	At     time.Time `json:"at"`
}

// Journal is a fixed-size ring of the most recent suppressions.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
	next    int
	full    bool
	now     func() time.Time
}

// NewJournal creates a journal holding at most capacity entries.
func NewJournal(capacity int) *Journal {
	if capacity < 1 {
		capacity = 1
	}
	return &Journal{entries: make([]JournalEntry, capacity), now: time.Now}
}

func (j *Journal) add(kind Kind, signal string) {
	e := JournalEntry{
		ID:     uuid.NewString(),
		Kind:   kind,
		Signal: truncate(signal, 500),
		At:     j.now().UTC(),
	}
	j.mu.Lock()
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
	j.mu.Unlock()
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (j *Journal) Recent(n int) []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := j.next
	if j.full {
		size = len(j.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]JournalEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.next - i + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out
}

// Len is the number of entries held.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.full {
		return len(j.entries)
	}
	return j.next
}

func (j *Journal) reset() {
	j.mu.Lock()
	clear(j.entries)
	j.next = 0
	j.full = false
	j.mu.Unlock()
}
