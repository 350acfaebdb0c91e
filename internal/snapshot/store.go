// Package snapshot provides storage for opaque environment snapshot blobs.
// Snapshots are produced by the sensor layer at route save time and reseed
// its internal map at replay time; their internal format is owned entirely
// by the sensor layer and never inspected here.
package snapshot

import (
	"context"
	"errors"
	"sync"
)

// Store errors.
var (
	// ErrSnapshotNotFound indicates no blob exists for the given key.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrStoreUnavailable indicates the blob store could not be reached.
	ErrStoreUnavailable = errors.New("snapshot store unavailable")
)

// Store defines the interface for snapshot blob persistence. Routes
// reference blobs by key; blob lifetime is tied to the owning route.
type Store interface {
	// Put persists a blob under the given key.
	Put(ctx context.Context, key string, blob []byte) error

	// Get retrieves the blob for a key.
	// Returns ErrSnapshotNotFound if no blob exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob for a key. Deleting an absent key is not an
	// error; orphan pruning relies on this being idempotent.
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate their keys. The
// maintenance sweep uses it to find blobs no route references anymore;
// stores without it simply skip orphan pruning.
type Lister interface {
	// Keys returns every stored blob key, in no particular order.
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory implementation of Store for tests and the
// single-node dev loop.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put persists a blob under the given key.
func (s *MemoryStore) Put(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

// Get retrieves the blob for a key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), blob...), nil
}

// Delete removes the blob for a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

// Keys returns every stored blob key.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Ensure MemoryStore implements Store and Lister interfaces.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)
