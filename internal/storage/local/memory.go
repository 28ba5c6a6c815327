// Package local provides size-bounded key-value stores for saved carts.
package local

import (
	"sync"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

var _ cart.Store = (*MemoryStore)(nil)

// MemoryStore keeps values in memory under a quota on the total number of
// bytes across all keys. A quota of 0 disables the limit.
type MemoryStore struct {
	mu     sync.Mutex
	quota  int
	used   int
	values map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore with the given quota in bytes.
func NewMemoryStore(quota int) *MemoryStore {
	return &MemoryStore{
		quota:  quota,
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return nil, cart.ErrNoValue
	}
	return append([]byte(nil), v...), nil
}

// Set stores value under key, replacing the previous value. It returns
// cart.ErrQuotaExceeded and keeps the previous value when the new total
// would exceed the quota.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used - len(s.values[key]) + len(value)
	if s.quota > 0 && used > s.quota {
		return cart.ErrQuotaExceeded
	}
	s.values[key] = append([]byte(nil), value...)
	s.used = used
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.used -= len(s.values[key])
	delete(s.values, key)
	return nil
}

// Used returns the number of bytes currently stored.
func (s *MemoryStore) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
