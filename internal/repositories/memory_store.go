package repositories

import (
	"context"
	"sync"

	"github.com/bimmatch/guard/internal/models"
)

// MemoryStore keeps documents in process memory. Values are stored encoded so
// callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (models.Document, error) {
	s.mu.RLock()
	body, ok := s.docs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, models.ErrNotFound
	}
	return decodeDocument(body)
}

func (s *MemoryStore) Put(ctx context.Context, key string, doc models.Document) error {
	body, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[key] = body
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Len reports how many documents are held
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
