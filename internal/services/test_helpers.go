package services

import (
	"context"
	"sync"

	"github.com/bimmatch/guard/internal/models"
)

// MockDocumentStore implements DocumentStore for testing. Each hook, when set,
// replaces the in-memory behavior for that operation.
type MockDocumentStore struct {
	GetFunc    func(ctx context.Context, key string) (models.Document, error)
	PutFunc    func(ctx context.Context, key string, doc models.Document) error
	DeleteFunc func(ctx context.Context, key string) error

	mu      sync.Mutex
	docs    map[string]models.Document
	Gets    int
	Puts    int
	Deletes int
}

func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{docs: make(map[string]models.Document)}
}

func (m *MockDocumentStore) Get(ctx context.Context, key string) (models.Document, error) {
	m.mu.Lock()
	m.Gets++
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyDocument(doc), nil
}

func (m *MockDocumentStore) Put(ctx context.Context, key string, doc models.Document) error {
	m.mu.Lock()
	m.Puts++
	m.mu.Unlock()

	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, doc)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = copyDocument(doc)
	return nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.Deletes++
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

// Stored returns a copy of what is held under key, or nil
func (m *MockDocumentStore) Stored(key string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[key]; ok {
		return copyDocument(doc)
	}
	return nil
}

func copyDocument(doc models.Document) models.Document {
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
