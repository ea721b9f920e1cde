package storage

import (
	"sync"
)

// MemoryStore keeps values in memory (dev/test use).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailPuts makes every Put return this error when non-nil.
	FailPuts error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *MemoryStore) Put(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPuts != nil {
		return s.FailPuts
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SetFailPuts toggles write failures under the store lock.
func (s *MemoryStore) SetFailPuts(err error) {
	s.mu.Lock()
	s.FailPuts = err
	s.mu.Unlock()
}

// Raw stores bytes without encoding; tests use it to plant corrupt payloads.
func (s *MemoryStore) Raw(key string, value []byte) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
}
