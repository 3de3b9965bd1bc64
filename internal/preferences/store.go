package preferences

import (
	"context"
	"fmt"
	"sync"
)

// Persister saves the languages remembered for one domain. Other domains
// are left untouched.
type Persister interface {
	SaveLanguagePreference(ctx context.Context, domain string, languages []string) error
}

// Store is the in-memory map of domain to remembered slot languages.
// Writes go through the persister; reads never touch it.
type Store struct {
	mu        sync.RWMutex
	prefs     map[string][]string
	persister Persister
}

// NewStore creates a store seeded with initial
func NewStore(initial map[string][]string, persister Persister) *Store {
	s := &Store{persister: persister}
	s.Replace(initial)
	return s
}

// Get returns a copy of the languages remembered for domain
func (s *Store) Get(domain string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.prefs[domain])
}

// Set remembers languages for domain and persists that domain only. The
// in-memory value is kept even when persisting fails.
func (s *Store) Set(ctx context.Context, domain string, languages []string) error {
	s.mu.Lock()
	s.prefs[domain] = clone(languages)
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveLanguagePreference(ctx, domain, clone(languages)); err != nil {
		return fmt.Errorf("failed to persist language preferences: %w", err)
	}
	return nil
}

// Replace swaps the whole map, as after a settings refresh
func (s *Store) Replace(prefs map[string][]string) {
	next := make(map[string][]string, len(prefs))
	for domain, languages := range prefs {
		next[domain] = clone(languages)
	}

	s.mu.Lock()
	s.prefs = next
	s.mu.Unlock()
}

// Snapshot returns a copy of the whole map
func (s *Store) Snapshot() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(s.prefs))
	for domain, languages := range s.prefs {
		out[domain] = clone(languages)
	}
	return out
}

func clone(languages []string) []string {
	if languages == nil {
		return []string{}
	}
	out := make([]string, len(languages))
	copy(out, languages)
	return out
}
