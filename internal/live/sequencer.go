// Package live holds the refresh bookkeeping shared by the materialized
// views. In-flight fetches triggered by rapid change notifications are not
// cancelled, so a newer fetch can complete before an older one; views tag
// every fetch at issue time and refuse to apply a response that is older
// than the last one applied.
package live

import "sync"

// Sequencer hands out fetch sequence numbers and decides whether a
// completed fetch may still be applied.
type Sequencer struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
}

// Next reserves the sequence number for a fetch about to be issued.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Apply reports whether a fetch with the given sequence number may be
// applied. It returns false when a later-issued fetch already landed; the
// caller must discard the stale result.
func (s *Sequencer) Apply(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		return false
	}
	s.applied = seq
	return true
}
