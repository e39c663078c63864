package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File implements Store with one JSON file per partition under a data
// directory. Every write is a whole-partition read-modify-write guarded by a
// mutex; the file is replaced via a temp-file rename so a crashed write never
// leaves a truncated partition behind.
//
// This backend provides no cross-key atomicity. Correctness for concurrent
// trades comes from the executor's per-player serialization, not from the
// store.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates a file-backed store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create data dir %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (s *File) path(p Partition) string {
	return filepath.Join(s.dir, strings.ToLower(string(p))+".json")
}

// load reads a partition file into a map. A missing file is an empty
// partition.
func (s *File) load(p Partition) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(p))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read partition %s: %w", p, err)
	}
	records := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("kv: decode partition %s: %w", p, err)
		}
	}
	return records, nil
}

func (s *File) save(p Partition, records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: encode partition %s: %w", p, err)
	}
	tmp := s.path(p) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("kv: write partition %s: %w", p, err)
	}
	if err := os.Rename(tmp, s.path(p)); err != nil {
		return fmt.Errorf("kv: replace partition %s: %w", p, err)
	}
	return nil
}

func (s *File) Get(_ context.Context, p Partition, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(p)
	if err != nil {
		return nil, err
	}
	v, ok := records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (s *File) Put(_ context.Context, p Partition, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(p)
	if err != nil {
		return err
	}
	records[key] = json.RawMessage(value)
	return s.save(p, records)
}

func (s *File) QueryByPrefix(_ context.Context, p Partition, prefix string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(p)
	if err != nil {
		return nil, err
	}
	var out []Record
	for k, v := range records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Record{Key: k, Value: []byte(v)})
		}
	}
	return out, nil
}

func (s *File) Delete(_ context.Context, p Partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(p)
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil // delete is idempotent
	}
	delete(records, key)
	return s.save(p, records)
}
