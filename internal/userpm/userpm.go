// Package userpm provides the user-facing persistent containers an
// application builds on top of the kernel's lower-level primitives:
// Box wraps a single persistent value, Mutex pairs one with exclusive
// access. Grounded on original_source/src/user/pbox.rs's PBox and
// src/user/pmutex.rs's PMutex, layered here on pmem.Var and
// syncobj.Semaphore rather than reimplementing allocation and locking —
// the same "reuse the kernel's own primitives" relationship the
// original's user module has to its own pmem/syscalls layer.
package userpm

import (
	"github.com/introt/kernel/internal/kcall"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/syncobj"
	"github.com/introt/kernel/internal/txn"
)

// Box is a persistent value journaled through whatever transaction its
// caller provides, the Go realization of PBox minus PBox's own
// allocator call: Box wraps a value already placed in a pmem.Var rather
// than allocating a new persistent cell on every call, since this
// kernel's bump allocator (internal/pheap) has no per-type static
// registry to recover a PBox's address from across a reboot.
type Box[T any] struct {
	v *pmem.Var[T]
}

// NewBox creates a persistent box holding the initial value v.
func NewBox[T any](v T) *Box[T] {
	return &Box[T]{v: pmem.NewVar(v)}
}

// Get returns the box's current value without journaling a read.
func (b *Box[T]) Get() T {
	return *b.v.Borrow()
}

// Set replaces the box's value, journaling the old one to j first so a
// crash before the enclosing transaction commits rolls it back.
func (b *Box[T]) Set(j *pmem.Journal, v T) {
	b.v.Set(v, j)
}

// With gives f a mutable view of the box's value under j's journal,
// for callers that want to mutate a field in place rather than
// replacing the whole value.
func (b *Box[T]) With(j *pmem.Journal, f func(*T)) {
	f(b.v.BorrowMut(j))
}

// Mutex pairs a persistent value with a binary semaphore used in mutex
// mode (syncobj.NewMutex), the Go realization of PMutex: With brackets
// the critical section with take/give exactly the way
// original_source/src/user/pmutex.rs's lock/unlock do, except here the
// bracket is a single call. Give is not deferred: if f panics, the
// mutex stays held.
type Mutex[T any] struct {
	sem  *syncobj.Semaphore
	data *pmem.Var[T]
}

// NewMutex creates a persistent mutex-guarded value, able to track up
// to waiters blocked takers at once. hooks is forwarded to the
// underlying semaphore's take/give syscalls (nil falls back to
// kcall.NoOpHooks).
func NewMutex[T any](v T, waiters int, journal *pmem.Journal, s *sched.Scheduler, hooks kcall.Hooks) *Mutex[T] {
	return &Mutex[T]{
		sem:  syncobj.NewMutex(waiters, journal, s, hooks),
		data: pmem.NewVar(v),
	}
}

// With takes the mutex (blocking the calling task, ref, until it is
// free), runs f against a mutable view of the guarded value journaled
// under tx, then releases the mutex. The take/give errors are
// original_source's sys_semaphore_take/give outcomes; under normal
// operation (no queue limits apply to a 1-slot semaphore) neither fails.
func (m *Mutex[T]) With(tx *txn.Transaction, ref pmem.Ref[sched.TCB], f func(*T)) error {
	if err := m.sem.Take(tx, ref); err != nil {
		return err
	}
	f(m.data.BorrowMut(tx.Journal()))
	return m.sem.Give(tx, ref)
}

// Get returns the guarded value's current snapshot without taking the
// mutex, for diagnostics or a test assertion where exclusivity does not
// matter.
func (m *Mutex[T]) Get() T {
	return *m.data.Borrow()
}
