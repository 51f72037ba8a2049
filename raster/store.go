package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store holds the scratch rasters produced while a batch is in flight.
// Workers write their input blocks, the warper reads and rewrites them,
// and the dispatcher removes them once the block is collected.
type Store interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
}

// DiskStore keeps scratch rasters in a uniquely named directory so
// concurrent batches over the same base directory never collide.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a per-batch scratch directory under base.
func NewDiskStore(base string) (*DiskStore, error) {
	dir := filepath.Join(base, "vrbag-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Path returns the absolute path a name resolves to, for handing to
// external tools that need a real file.
func (s *DiskStore) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *DiskStore) WriteFile(name string, data []byte) error {
	return os.WriteFile(s.Path(name), data, 0o644)
}

func (s *DiskStore) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

func (s *DiskStore) Remove(name string) error {
	return os.Remove(s.Path(name))
}

// Destroy removes the whole batch directory.
func (s *DiskStore) Destroy() error { return os.RemoveAll(s.dir) }

// MemStore keeps scratch rasters in memory. It is safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) WriteFile(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files[name] = cp
	return nil
}

func (s *MemStore) ReadFile(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("scratch %q: %w", name, os.ErrNotExist)
	}
	return data, nil
}

func (s *MemStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("scratch %q: %w", name, os.ErrNotExist)
	}
	delete(s.files, name)
	return nil
}

// Len reports how many scratch files remain, for leak checks after a batch.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
