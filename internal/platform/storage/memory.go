package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps objects in process. Used in test mode and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object
}

// Object is a stored attachment.
type Object struct {
	Body        []byte
	ContentType string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Put stores a copy of body.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects["mem://"+key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return "mem://" + key, nil
}

// Delete drops ref.
func (m *MemoryStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref)
	return nil
}

// Get returns the object behind ref.
func (m *MemoryStore) Get(ref string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[ref]
	return obj, ok
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
