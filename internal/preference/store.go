// Package preference keeps each sender's transcription language in memory.
// Nothing survives a restart.
package preference

import "sync"

// MemoryStore is a concurrent-safe sender -> language code map.
type MemoryStore struct {
	mu    sync.RWMutex
	langs map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{langs: make(map[string]string)}
}

// Set overwrites the sender's language.
func (s *MemoryStore) Set(sender, languageCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.langs[sender] = languageCode
}

// Get returns the sender's language, if one was set.
func (s *MemoryStore) Get(sender string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.langs[sender]
	return code, ok
}

// Len returns the number of senders with a stored preference.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.langs)
}
