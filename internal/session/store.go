package session

import (
	"sync"
)

// Store keeps the current scan session state and the most recent finished
// ones, in memory only. Readers always receive copies.
type Store struct {
	mu      sync.RWMutex
	current *State
	recent  []*State
	limit   int
}

// DefaultRecentLimit caps how many finished sessions a Store remembers.
const DefaultRecentLimit = 20

func NewStore() *Store {
	return &Store{limit: DefaultRecentLimit}
}

// Current returns the state of the latest session.
func (s *Store) Current() (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.Clone(), true
}

// Recent returns finished sessions, oldest first.
func (s *Store) Recent() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*State, 0, len(s.recent))
	for _, st := range s.recent {
		result = append(result, st.Clone())
	}
	return result
}

// Update records state. A new session ID replaces the current session; a
// terminal state is also appended to the recent list once.
func (s *Store) Update(state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasTerminal := s.current != nil && s.current.ID == state.ID && s.current.IsTerminal()
	s.current = state.Clone()

	if state.IsTerminal() && !wasTerminal {
		s.recent = append(s.recent, state.Clone())
		if len(s.recent) > s.limit {
			s.recent = s.recent[len(s.recent)-s.limit:]
		}
	}
}

// ActiveCount is 1 while a non-terminal session exists.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil && !s.current.IsTerminal() {
		return 1
	}
	return 0
}
