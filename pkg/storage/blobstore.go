package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/privata-io/consent-service/domain"
)

// BlobStore is content-addressed storage: the address of a blob is a
// deterministic digest of its bytes. Implemented outside the core; the memory
// store below backs local wiring and tests.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
	Exists(ctx context.Context, address string) (bool, error)
	Pin(ctx context.Context, address string) error
	Unpin(ctx context.Context, address string) error
}

// Address is the content address of a byte blob.
func Address(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryBlobStore keeps blobs in memory. New blobs start out pinned; Collect
// drops everything unpinned, after which retrieval fails.
type MemoryBlobStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	pinned map[string]bool
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs:  map[string][]byte{},
		pinned: map[string]bool{},
	}
}

func (s *MemoryBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.Validationf("cannot store an empty blob")
	}
	address := Address(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[address] = data
	s.pinned[address] = true
	return address, nil
}

func (s *MemoryBlobStore) Get(ctx context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[address]
	if !ok {
		return nil, domain.ContentNotFoundf("no content at address %s", address)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryBlobStore) Exists(ctx context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[address]
	return ok, nil
}

func (s *MemoryBlobStore) Pin(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[address]; !ok {
		return domain.ContentNotFoundf("no content at address %s", address)
	}
	s.pinned[address] = true
	return nil
}

func (s *MemoryBlobStore) Unpin(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[address]; !ok {
		return domain.ContentNotFoundf("no content at address %s", address)
	}
	s.pinned[address] = false
	return nil
}

// Collect drops every unpinned blob and reports how many were removed.
func (s *MemoryBlobStore) Collect() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for address, pinned := range s.pinned {
		if !pinned {
			delete(s.blobs, address)
			delete(s.pinned, address)
			removed++
		}
	}
	return removed
}
