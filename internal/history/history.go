package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultLimit = 50

type Entry struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	SQL      string    `json:"sql"`
	Status   string    `json:"status"`
	AskedAt  time.Time `json:"asked_at"`
}

// Store keeps the most recent entries in arrival order. It is display-only
// state and is lost on restart.
type Store struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit}
}

// Add appends entry, assigning an ID and timestamp when missing, and evicts
// the oldest entries beyond the limit.
func (s *Store) Add(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AskedAt.IsZero() {
		entry.AskedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return entry
}

// Recent returns up to n entries, newest first. n <= 0 returns everything kept.
func (s *Store) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Limit() int {
	return s.limit
}
