package hfile

import "sync"

// allocator hands out append-only space within the file. The container is
// never mutated in place; a rewrite produces a fresh file, so freed space is
// never tracked or reused.
type allocator struct {
	mu  sync.Mutex
	eof uint64
}

func newAllocator(base uint64) *allocator {
	return &allocator{eof: base}
}

// Alloc reserves size bytes and returns the address of the block.
func (a *allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.eof
	a.eof += size
	return addr
}

// EOF returns the current end-of-file address.
func (a *allocator) EOF() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}
