package tokenstore

import (
	"sync"
	"time"

	"github.com/alexjbarnes/bff-proxy/internal/models"
)

// MemoryStore keeps session tokens in process memory. Tokens are lost on
// restart and are not shared between instances.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]models.TokenInfo // session ID -> token
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]models.TokenInfo),
	}
}

// Get returns a copy of the session's token, or nil if none is stored.
func (s *MemoryStore) Get(sessionID string) (*models.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ti, ok := s.tokens[sessionID]
	if !ok {
		return nil, nil
	}

	return &ti, nil
}

// Set replaces the session's token.
func (s *MemoryStore) Set(sessionID string, ti models.TokenInfo) error {
	s.mu.Lock()
	s.tokens[sessionID] = ti
	s.mu.Unlock()

	return nil
}

// Clear removes the session's token.
func (s *MemoryStore) Clear(sessionID string) error {
	s.mu.Lock()
	delete(s.tokens, sessionID)
	s.mu.Unlock()

	return nil
}

// Prune removes every token that is no longer valid at now.
func (s *MemoryStore) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for k, ti := range s.tokens {
		if !ti.ValidAt(now) {
			delete(s.tokens, k)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tokens)
}
