package prefs

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// NameStore maps lowercase escrow addresses to user-chosen labels. Names are
// trimmed; setting an empty or whitespace-only name deletes the entry rather
// than storing a blank.
type NameStore struct {
	mu     sync.Mutex
	store  KVStore
	logger *zap.Logger
	names  map[string]string
}

// NewNameStore loads the persisted map. Corrupt or missing data defaults to
// an empty map.
func NewNameStore(store KVStore, logger *zap.Logger) *NameStore {
	s := &NameStore{store: store, logger: logger, names: make(map[string]string)}

	raw, err := store.Get(KeyNames)
	if err != nil {
		logger.Warn("Failed to load escrow names", zap.Error(err))
		return s
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &s.names); err != nil {
			logger.Warn("Corrupt escrow names document, starting empty", zap.Error(err))
			s.names = make(map[string]string)
		}
	}

	return s
}

// Get returns the name for an address, if set.
func (s *NameStore) Get(address string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, exists := s.names[strings.ToLower(address)]
	return name, exists
}

// Set stores a trimmed name for the address; an empty result deletes the
// entry.
func (s *NameStore) Set(address, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		delete(s.names, key)
	} else {
		s.names[key] = trimmed
	}

	return s.persist()
}

// Remove deletes the entry for the address.
func (s *NameStore) Remove(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.names, strings.ToLower(address))
	return s.persist()
}

// All returns a copy of the name map.
func (s *NameStore) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]string, len(s.names))
	for address, name := range s.names {
		copied[address] = name
	}
	return copied
}

func (s *NameStore) persist() error {
	raw, err := json.Marshal(s.names)
	if err != nil {
		return err
	}
	return s.store.Set(KeyNames, raw)
}
