package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// StoreConfig configures the in-memory credential store.
type StoreConfig struct {
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// StoreStats are simple counters for store behavior.
// These are intended for diagnostics and monitoring.
type StoreStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Expired int64 `json:"expired"`
	Clears  int64 `json:"clears"`
	Size    int   `json:"size"`
}

// InMemoryStore is a process-local CredentialStore. It does not survive a
// restart; use a persistent adapter for that.
type InMemoryStore struct {
	entries map[string]storedCredential
	mu      sync.RWMutex
	now     func() time.Time

	// counters
	hits    int64
	misses  int64
	sets    int64
	deletes int64
	expired int64
	clears  int64
}

type storedCredential struct {
	value     string
	expiresAt time.Time
}

var _ CredentialStore = (*InMemoryStore)(nil)

func NewInMemoryStore(c StoreConfig) *InMemoryStore {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &InMemoryStore{
		entries: make(map[string]storedCredential),
		now:     c.Now,
	}
}

// Set replaces the named credential. An empty value or a non-positive ttl
// deletes it.
func (s *InMemoryStore) Set(name, value string, ttl time.Duration) error {
	if ttl <= 0 || value == "" {
		return s.Delete(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = storedCredential{value: value, expiresAt: s.now().Add(ttl)}
	atomic.AddInt64(&s.sets, 1)
	return nil
}

func (s *InMemoryStore) Get(name string) (string, error) {
	s.mu.RLock()
	entry, exists := s.entries[name]
	s.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&s.misses, 1)
		return "", ErrCredentialNotFound
	}

	if !s.now().Before(entry.expiresAt) {
		// expired
		atomic.AddInt64(&s.misses, 1)
		s.mu.Lock()
		if current, ok := s.entries[name]; ok && current == entry {
			delete(s.entries, name)
			atomic.AddInt64(&s.expired, 1)
		}
		s.mu.Unlock()
		return "", ErrCredentialNotFound
	}

	atomic.AddInt64(&s.hits, 1)
	return entry.value, nil
}

func (s *InMemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, existed := s.entries[name]; existed {
		delete(s.entries, name)
		atomic.AddInt64(&s.deletes, 1)
	}
	return nil
}

// Clear removes every credential. Clearing an empty store is a no-op.
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]storedCredential)
	atomic.AddInt64(&s.clears, 1)
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) Stats() StoreStats {
	return StoreStats{
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		Sets:    atomic.LoadInt64(&s.sets),
		Deletes: atomic.LoadInt64(&s.deletes),
		Expired: atomic.LoadInt64(&s.expired),
		Clears:  atomic.LoadInt64(&s.clears),
		Size:    s.Len(),
	}
}
