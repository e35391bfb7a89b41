package versionindex

import (
	"context"
	"sort"
	"sync"

	"github.com/ruteri/storage-adapter/interfaces"
)

// MemoryIndex keeps version sets in process memory.
type MemoryIndex struct {
	mu   sync.Mutex
	sets map[interfaces.BackendKey]*memorySet
}

type memorySet struct {
	last uint64
	refs map[uint64]interfaces.StoredFileReference
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		sets: make(map[interfaces.BackendKey]*memorySet),
	}
}

func (idx *MemoryIndex) set(stable interfaces.BackendKey) *memorySet {
	s, ok := idx.sets[stable]
	if !ok {
		s = &memorySet{refs: make(map[uint64]interfaces.StoredFileReference)}
		idx.sets[stable] = s
	}
	return s
}

// Reserve returns the next unused version index for stable.
func (idx *MemoryIndex) Reserve(ctx context.Context, stable interfaces.BackendKey) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := idx.set(stable)
	s.last++
	return s.last, nil
}

// Commit records ref under its version index.
func (idx *MemoryIndex) Commit(ctx context.Context, stable interfaces.BackendKey, ref interfaces.StoredFileReference) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := idx.set(stable)
	s.refs[ref.Version] = ref
	if ref.Version > s.last {
		s.last = ref.Version
	}
	return nil
}

// List returns the committed versions of stable, oldest first.
func (idx *MemoryIndex) List(ctx context.Context, stable interfaces.BackendKey) ([]interfaces.StoredFileReference, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s, ok := idx.sets[stable]
	if !ok || len(s.refs) == 0 {
		return nil, interfaces.ErrContentNotFound
	}

	refs := make([]interfaces.StoredFileReference, 0, len(s.refs))
	for _, ref := range s.refs {
		refs = append(refs, ref)
	}
	sortByVersion(refs)
	return refs, nil
}

// Remove forgets stable.
func (idx *MemoryIndex) Remove(ctx context.Context, stable interfaces.BackendKey) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.sets, stable)
	return nil
}

// Close is a no-op.
func (idx *MemoryIndex) Close() error {
	return nil
}

func sortByVersion(refs []interfaces.StoredFileReference) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Version < refs[j].Version
	})
}
