package prefs

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// StarredStore keeps the ordered set of starred escrow addresses. Order is
// most-recently-starred first; toggling an address back on re-adds it at the
// front. Every mutation persists the whole document.
type StarredStore struct {
	mu        sync.Mutex
	store     KVStore
	logger    *zap.Logger
	addresses []string
}

// NewStarredStore loads the persisted list. Corrupt or missing data
// defaults to an empty set.
func NewStarredStore(store KVStore, logger *zap.Logger) *StarredStore {
	s := &StarredStore{store: store, logger: logger}

	raw, err := store.Get(KeyStarred)
	if err != nil {
		logger.Warn("Failed to load starred escrows", zap.Error(err))
		return s
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &s.addresses); err != nil {
			logger.Warn("Corrupt starred escrows document, starting empty", zap.Error(err))
			s.addresses = nil
		}
	}

	return s
}

// IsStarred reports whether the address is in the set, case-insensitively.
func (s *StarredStore) IsStarred(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(address) >= 0
}

// Add inserts the address at the front unless already present.
func (s *StarredStore) Add(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(address) >= 0 {
		return nil
	}
	s.addresses = append([]string{address}, s.addresses...)
	return s.persist()
}

// Remove drops the address from the set.
func (s *StarredStore) Remove(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(address)
	if i < 0 {
		return nil
	}
	s.addresses = append(s.addresses[:i], s.addresses[i+1:]...)
	return s.persist()
}

// Toggle flips membership and reports whether the address is now starred.
func (s *StarredStore) Toggle(address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(address); i >= 0 {
		s.addresses = append(s.addresses[:i], s.addresses[i+1:]...)
		return false, s.persist()
	}
	s.addresses = append([]string{address}, s.addresses...)
	return true, s.persist()
}

// All returns the starred addresses, most recently starred first.
func (s *StarredStore) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]string, len(s.addresses))
	copy(copied, s.addresses)
	return copied
}

func (s *StarredStore) indexOf(address string) int {
	for i, existing := range s.addresses {
		if strings.EqualFold(existing, address) {
			return i
		}
	}
	return -1
}

func (s *StarredStore) persist() error {
	raw, err := json.Marshal(s.addresses)
	if err != nil {
		return err
	}
	return s.store.Set(KeyStarred, raw)
}
