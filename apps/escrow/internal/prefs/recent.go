package prefs

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/model"
)

// RecentStore is the recently-viewed ring buffer. Adding an address that is
// already present moves it to the front with a refreshed timestamp instead
// of duplicating; overflow evicts the oldest entry.
type RecentStore struct {
	mu     sync.Mutex
	store  KVStore
	logger *zap.Logger
	items  []model.RecentlyViewedItem
	limit  int
	now    func() int64
}

// NewRecentStore loads the persisted list. Corrupt or missing data defaults
// to an empty list.
func NewRecentStore(store KVStore, logger *zap.Logger) *RecentStore {
	s := &RecentStore{
		store:  store,
		logger: logger,
		limit:  constants.RecentlyViewedLimit,
		now:    func() int64 { return time.Now().Unix() },
	}

	raw, err := store.Get(KeyRecentlyViewed)
	if err != nil {
		logger.Warn("Failed to load recently viewed", zap.Error(err))
		return s
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &s.items); err != nil {
			logger.Warn("Corrupt recently-viewed document, starting empty", zap.Error(err))
			s.items = nil
		}
	}

	return s
}

// Add records a visit, inserting at the front.
func (s *RecentStore) Add(item model.RecentlyViewedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.items[:0:0]
	for _, existing := range s.items {
		if !strings.EqualFold(existing.Address, item.Address) {
			filtered = append(filtered, existing)
		}
	}

	item.VisitedAt = s.now()
	s.items = append([]model.RecentlyViewedItem{item}, filtered...)
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}

	return s.persist()
}

// Clear empties the list.
func (s *RecentStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.persist()
}

// Items returns the list, most recently viewed first.
func (s *RecentStore) Items() []model.RecentlyViewedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.RecentlyViewedItem, len(s.items))
	copy(copied, s.items)
	return copied
}

func (s *RecentStore) persist() error {
	items := s.items
	if items == nil {
		items = []model.RecentlyViewedItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.store.Set(KeyRecentlyViewed, raw)
}
