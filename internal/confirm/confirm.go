// Package confirm holds commands that matched a sensitive pattern until the
// user approves or denies them. Records live in memory only; a restart drops
// anything still pending.
package confirm

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
)

// Pending is a command awaiting explicit approval.
type Pending struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Text      string        `json:"text"`
	Reason    string        `json:"reason"`
	Steps     []intent.Step `json:"steps"`
	CreatedAt string        `json:"created_at"`
}

// Store is a mutex-guarded map of pending confirmations.
type Store struct {
	mu      sync.Mutex
	pending map[string]Pending
}

// NewStore creates an empty confirmation store.
func NewStore() *Store {
	return &Store{pending: make(map[string]Pending)}
}

// Add records a command awaiting confirmation and returns the stored record.
func (s *Store) Add(source, text, reason string, steps []intent.Step) Pending {
	record := Pending{
		ID:        uuid.NewString(),
		Source:    source,
		Text:      text,
		Reason:    reason,
		Steps:     steps,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.pending[record.ID] = record
	s.mu.Unlock()

	logging.Confirm("pending %s: %q (%s)", record.ID, text, reason)
	return record
}

// Pop removes and returns the record for id. The second return is false when
// no such confirmation exists (already handled, or never created).
func (s *Store) Pop(id string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return record, ok
}

// Get returns the record for id without removing it.
func (s *Store) Get(id string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.pending[id]
	return record, ok
}

// List returns all pending confirmations, oldest first.
func (s *Store) List() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pending, 0, len(s.pending))
	for _, record := range s.pending {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// Len returns the number of pending confirmations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Clear drops every pending confirmation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]Pending)
}
