// Package thought is a minimal in-memory stand-in for the node's thought state.
// The network layer only ever asks it for CurrentThoughtCount.
package thought

import (
	"math/rand"
	"sync"
)

type Store struct {
	mu       sync.Mutex
	thoughts []string
	memories []string
}

func NewStore() *Store {
	return &Store{}
}

// Enter replaces the current thoughts
func (s *Store) Enter(thoughts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thoughts = append([]string(nil), thoughts...)
}

// Collapse picks one thought at random, keeps it as a memory and clears the rest
func (s *Store) Collapse() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.thoughts) == 0 {
		return "", false
	}
	t := s.thoughts[rand.Intn(len(s.thoughts))]
	s.thoughts = nil
	s.memories = append(s.memories, t)
	return t, true
}

func (s *Store) Thoughts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.thoughts...)
}

func (s *Store) Memories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.memories...)
}

func (s *Store) CurrentThoughtCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.thoughts)
}
