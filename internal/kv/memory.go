package kv

import (
	"context"
	"strings"
	"sync"
)

// Memory implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type Memory struct {
	mu   sync.RWMutex
	data map[Partition]map[string][]byte
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Partition]map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, p Partition, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[p][key]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external mutation.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Memory) Put(_ context.Context, p Partition, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[p] == nil {
		s.data[p] = make(map[string][]byte)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[p][key] = v
	return nil
}

func (s *Memory) QueryByPrefix(_ context.Context, p Partition, prefix string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for k, v := range s.data[p] {
		if strings.HasPrefix(k, prefix) {
			value := make([]byte, len(v))
			copy(value, v)
			records = append(records, Record{Key: k, Value: value})
		}
	}
	return records, nil
}

func (s *Memory) Delete(_ context.Context, p Partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[p], key)
	return nil
}
