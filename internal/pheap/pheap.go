// Package pheap implements the kernel's persistent bump allocator: one
// global heap plus one per-task arena, each a monotone cursor into a
// fixed-size byte region that only ever moves forward, and moves back
// exactly to its pre-transaction value on abort (spec.md invariant 5).
// Grounded on original_source/src/heap.rs's BumpAllocator/
// PerTaskPMBumpAllocator and on ehrlich-b-go-ublk/backend/mem.go's
// fixed-size byte-region-plus-mutex shape.
package pheap

import (
	"sync"

	"github.com/introt/kernel/internal/txn"
)

// Bump is a monotone bump allocator over a fixed-size byte region.
// Allocation is O(1); there is no free(): memory is reclaimed only by
// resetting the whole arena (task restart) or rolling back a transaction
// that allocated from it.
type Bump struct {
	mu     sync.Mutex
	region []byte
	cursor int
}

// NewBump creates a bump allocator over a region of the given size.
func NewBump(size int) *Bump {
	return &Bump{region: make([]byte, size)}
}

// Mark returns the current cursor position, to be passed to Rollback on
// transaction abort.
func (b *Bump) Mark() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Rollback moves the cursor back to mark, discarding every allocation
// made since. It never moves the cursor forward.
func (b *Bump) Rollback(mark int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark < b.cursor {
		b.cursor = mark
	}
}

// Alloc reserves size bytes, returning the backing slice (zeroed) or
// ErrNoSpace if the region is exhausted. The cursor only ever advances.
func (b *Bump) Alloc(size int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursor+size > len(b.region) {
		return nil, ErrNoSpace
	}
	mem := b.region[b.cursor : b.cursor+size]
	clear(mem)
	b.cursor += size
	return mem, nil
}

// Used returns the number of bytes currently allocated.
func (b *Bump) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Cap returns the region's total size.
func (b *Bump) Cap() int {
	return len(b.region)
}

// AllocTx allocates size bytes inside tx: on ErrRetry/ErrExit from the
// enclosing transaction the caller is expected to call Rollback with the
// mark Alloc's caller took before entering, restoring heap monotonicity
// exactly per spec.md invariant 5. AllocTx exists mainly so callers don't
// have to import both pheap and txn to express that pattern.
func AllocTx(b *Bump, tx *txn.Transaction, size int) ([]byte, int, error) {
	mark := b.Mark()
	mem, err := b.Alloc(size)
	if err != nil {
		return nil, mark, err
	}
	return mem, mark, nil
}
