// Package devremote is an in-memory stand-in for the authoritative store,
// used for local development and end-to-end tests of the agent.
package devremote

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

const listLimit = 200

// Entry is a stored record plus who sent it and when.
type Entry struct {
	Record      models.CapturedRecord `json:"record"`
	ReceivedAt  time.Time             `json:"receivedAt"`
	SubmittedBy string                `json:"submittedBy"`
}

// Store keeps records keyed by their client-generated id.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[uuid.UUID]Entry)}
}

// Insert stores e unless its id is already present. The second return is
// false when an entry with that id existed; the stored entry is returned
// either way.
func (s *Store) Insert(e Entry) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[e.Record.ID]; ok {
		return existing, false
	}
	s.entries[e.Record.ID] = e
	return e, true
}

func (s *Store) Get(id uuid.UUID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Latest returns up to 200 entries, newest capture first.
func (s *Store) Latest() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Record.CapturedAt, out[j].Record.CapturedAt
		if a.Equal(b) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return a.After(b)
	})
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
