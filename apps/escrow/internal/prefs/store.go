package prefs

import (
	"sync"
)

// Storage keys for the three preference documents. The keys are part of the
// persisted contract; changing one orphans existing data.
const (
	KeyStarred        = "vesting-escrow-starred"
	KeyNames          = "vesting-escrow-names"
	KeyRecentlyViewed = "vesting-escrow-recently-viewed"
)

// KVStore is the persistence behind the preference stores: whole JSON
// documents under fixed keys. Get returns (nil, nil) when the key does not
// exist. Implementations must be safe for concurrent use.
type KVStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// MemoryStore is an in-memory KVStore, used in tests and as a fallback when
// no durable backend is configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.data[key]
	if !exists {
		return nil, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(value))
	copy(copied, value)
	s.data[key] = copied
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}
