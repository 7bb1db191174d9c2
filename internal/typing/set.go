package typing

import (
	"sort"
	"sync"
	"time"
)

// StaleAfter is the age past which a typing entry counts as false no matter
// what its stored boolean says. Guards against clients that disconnect
// without sending a terminating false.
const StaleAfter = 5 * time.Second

// Set is the consumer-side view of who is composing in one conversation.
type Set struct {
	mu      sync.Mutex
	entries map[string]Indicator
	now     func() time.Time
}

func NewSet() *Set {
	return &Set{
		entries: make(map[string]Indicator),
		now:     time.Now,
	}
}

// Observe folds one indicator event into the set: true inserts or replaces
// the user's entry, false removes it.
func (s *Set) Observe(ind Indicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ind.IsTyping {
		s.entries[ind.UserID] = ind
	} else {
		delete(s.entries, ind.UserID)
	}
}

// Typing returns the ids of users currently composing, for display to
// viewerID. The viewer is always excluded from their own view, and entries
// older than StaleAfter are pruned.
func (s *Set) Typing(viewerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-StaleAfter)
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			continue
		}
		if id == viewerID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
