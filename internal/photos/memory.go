package photos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMemoryTTL      = time.Hour
	DefaultMemoryMaxItems = 1000
)

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets how long a photo stays resolvable after Put.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxItems caps the number of stored photos; the oldest is dropped first.
func WithMaxItems(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

type memoryPhoto struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps photos in process memory. Used when no object store is
// configured. Entries expire after a TTL and the store holds at most maxItems.
type MemoryStore struct {
	mu       sync.Mutex
	photos   map[string]memoryPhoto
	order    []string // insertion order, which is also expiry order
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		photos:   make(map[string]memoryPhoto),
		ttl:      DefaultMemoryTTL,
		maxItems: DefaultMemoryMaxItems,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	handle := uuid.NewString()
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)
	for len(s.order) >= s.maxItems {
		s.dropOldestLocked()
	}
	s.photos[handle] = memoryPhoto{data: cp, expiresAt: now.Add(s.ttl)}
	s.order = append(s.order, handle)
	return handle, nil
}

func (s *MemoryStore) Resolve(_ context.Context, handle string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[handle]
	if !ok || !s.now().Before(p.expiresAt) {
		return nil, ErrNotFound
	}
	return p.data, nil
}

// Len reports how many photos are currently held, expired ones included
// until the next Put sweeps them.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.photos)
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for len(s.order) > 0 {
		p, ok := s.photos[s.order[0]]
		if ok && now.Before(p.expiresAt) {
			return
		}
		s.dropOldestLocked()
	}
}

func (s *MemoryStore) dropOldestLocked() {
	delete(s.photos, s.order[0])
	s.order[0] = ""
	s.order = s.order[1:]
}
