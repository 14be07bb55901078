package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry Entry
	ttl   time.Duration
}

// MemoryStore keeps entries in a map. There is no native expiry, so every
// read compares the entry's CreatedAt against its TTL. Each instance is
// independent; construct one per process (or per test).
type MemoryStore struct {
	now func() time.Time

	mu    sync.RWMutex
	items map[string]memoryItem
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		now:   o.now,
		items: make(map[string]memoryItem),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || s.stale(item, s.now()) {
		return Entry{}, false, nil
	}
	return item.entry.Clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	entry = entry.Clone()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.items[key] = memoryItem{entry: entry, ttl: ttl}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.items = make(map[string]memoryItem)
	s.mu.Unlock()
	return nil
}

// Stats counts only fresh entries.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, item := range s.items {
		if !s.stale(item, now) {
			count++
		}
	}
	return Stats{Count: count, Backend: BackendMemory}, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, item := range s.items {
		if s.stale(item, now) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// stale matches the sqlite backend's expires_at > now filter: an entry is
// fresh strictly before CreatedAt+ttl.
func (s *MemoryStore) stale(item memoryItem, now time.Time) bool {
	return now.Sub(item.entry.CreatedAt) >= item.ttl
}
